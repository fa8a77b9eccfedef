package score

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sutekina/osu-gulag/internal/ratelimit"
)

// Register installs the submission and replay routes on e. limiter, when
// non-nil, throttles submissions per client IP.
func (p *Pipeline) Register(e *echo.Echo, limiter *ratelimit.Limiter) {
	e.POST("/web/osu-submit-modular-selector.php", func(c echo.Context) error {
		if limiter != nil && !limiter.Allow(c.RealIP()) {
			return c.NoContent(http.StatusTooManyRequests)
		}
		return p.handleSubmit(c)
	})
	e.GET("/web/osu-getreplay.php", p.handleGetReplay)
}

// handleSubmit adapts the multipart form the client posts into a
// SubmitRequest and writes the pipeline's response verbatim.
func (p *Pipeline) handleSubmit(c echo.Context) error {
	req := SubmitRequest{
		DataB64:     c.FormValue("score"),
		IVB64:       c.FormValue("iv"),
		OsuVersion:  c.FormValue("osuver"),
		PasswordMD5: c.FormValue("pass"),
	}
	if req.DataB64 == "" || req.IVB64 == "" || req.PasswordMD5 == "" {
		return c.Blob(http.StatusOK, "text/plain", RespError)
	}

	// st carries elapsed ms for passes, ft for fails; whichever is present wins.
	if st := c.FormValue("st"); st != "" {
		req.TimeElapsed = st
	} else {
		req.TimeElapsed = c.FormValue("ft")
	}
	if flags := c.FormValue("sbk"); flags != "" {
		if v, err := strconv.ParseInt(flags, 10, 32); err == nil {
			req.ClientFlags = int32(v)
		}
	}

	if fh, err := c.FormFile("score"); err == nil {
		if f, err := fh.Open(); err == nil {
			req.Replay, _ = io.ReadAll(io.LimitReader(f, 32<<20))
			f.Close()
		}
	}

	resp, err := p.Submit(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if resp == nil {
		return c.NoContent(http.StatusOK)
	}
	return c.Blob(http.StatusOK, "text/plain", resp)
}

// handleGetReplay re-authenticates the requester and streams a stored
// replay blob by score id.
func (p *Pipeline) handleGetReplay(c echo.Context) error {
	name, pw := c.QueryParam("u"), c.QueryParam("h")
	user, err := p.store.FindUserBySafeName(c.Request().Context(), normalizeName(name))
	if err != nil || !p.sessions.CheckPassword(user.PasswordHash, pw) {
		return c.NoContent(http.StatusUnauthorized)
	}

	id, err := strconv.ParseInt(c.QueryParam("c"), 10, 64)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	path := filepath.Join(p.replayDir, fmt.Sprintf("%d.osr", id))
	blob, err := os.ReadFile(path)
	if err != nil {
		return c.NoContent(http.StatusNotFound)
	}
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, blob)
}
