// Package webapi hosts the HTTP surfaces around the gateway: avatar and
// screenshot assets, account registration, a JSON read API and health and
// metrics endpoints. The gateway and score pipeline register their own
// routes onto this server's echo instance.
package webapi

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/sutekina/osu-gulag/internal/match"
	"github.com/sutekina/osu-gulag/internal/session"
	"github.com/sutekina/osu-gulag/internal/store"
)

// MaxAssetSize bounds avatar and screenshot uploads.
const MaxAssetSize = 8 << 20

// Server wraps the echo app and the registries the read API reports on.
type Server struct {
	sessions *session.Registry
	matches  *match.Registry
	store    *store.Store
	echo     *echo.Echo
	dataDir  string
}

// New constructs the server and registers its own routes. dataDir is the
// root of the on-disk asset layout (avatars/, ss/, osr/, osu/).
func New(sessions *session.Registry, matches *match.Registry, st *store.Store, dataDir string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[api] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &Server{sessions: sessions, matches: matches, store: st, echo: e, dataDir: dataDir}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying app so the gateway and score pipeline can
// install their routes before Run.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/metrics", s.handleMetrics)
	s.echo.GET("/api/players/:id", s.handleGetPlayer)
	s.echo.GET("/api/leaderboard", s.handleLeaderboard)
	s.echo.POST("/users", s.handleRegister)
	s.echo.POST("/api/avatar/:id", s.handleUploadAvatar)
	s.echo.GET("/avatars/:id", s.handleGetAvatar)
	s.echo.POST("/web/osu-screenshot.php", s.handleUploadScreenshot)
	s.echo.GET("/ss/:name", s.handleGetScreenshot)
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Online  int    `json:"online"`
	Matches int    `json:"matches"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Online:  len(s.sessions.All()),
		Matches: len(s.matches.All()),
	})
}

// MetricsResponse is the payload for GET /api/metrics.
type MetricsResponse struct {
	Online   int   `json:"online"`
	Matches  int   `json:"matches"`
	UptimeS  int64 `json:"uptime_s"`
}

var startTime = time.Now()

func (s *Server) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, MetricsResponse{
		Online:  len(s.sessions.All()),
		Matches: len(s.matches.All()),
		UptimeS: int64(time.Since(startTime).Seconds()),
	})
}

// PlayerResponse is the payload for GET /api/players/:id.
type PlayerResponse struct {
	ID      int32                `json:"id"`
	Name    string               `json:"name"`
	Country string               `json:"country"`
	Online  bool                 `json:"online"`
	Stats   map[string]StatsInfo `json:"stats"`
}

// StatsInfo is one mode's aggregate block in a PlayerResponse.
type StatsInfo struct {
	RankedScore int64   `json:"ranked_score"`
	TotalScore  int64   `json:"total_score"`
	PP          float64 `json:"pp"`
	Accuracy    float64 `json:"accuracy"`
	Plays       int64   `json:"plays"`
	Playtime    int64   `json:"playtime"`
	MaxCombo    int32   `json:"max_combo"`
	Rank        int64   `json:"rank"`
}

func (s *Server) handleGetPlayer(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid player id")
	}
	u, err := s.store.FindUserByID(c.Request().Context(), int32(id))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "player not found")
	}

	resp := PlayerResponse{
		ID:      u.ID,
		Name:    u.Name,
		Country: u.Country,
		Online:  s.sessions.ByID(u.ID) != nil,
		Stats:   make(map[string]StatsInfo, 4),
	}
	for mode := uint8(0); mode < 4; mode++ {
		st, err := s.store.GetStats(c.Request().Context(), u.ID, mode)
		if err != nil {
			continue
		}
		rank, _ := s.store.CountUnrestrictedWithGreaterPP(c.Request().Context(), mode, st.PP)
		resp.Stats[strconv.Itoa(int(mode))] = StatsInfo{
			RankedScore: st.RankedScore,
			TotalScore:  st.TotalScore,
			PP:          st.PP,
			Accuracy:    st.Accuracy,
			Plays:       st.Plays,
			Playtime:    st.Playtime,
			MaxCombo:    st.MaxCombo,
			Rank:        rank + 1,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// LeaderboardEntry is one row in GET /api/leaderboard.
type LeaderboardEntry struct {
	ID   int32   `json:"id"`
	Name string  `json:"name"`
	PP   float64 `json:"pp"`
}

func (s *Server) handleLeaderboard(c echo.Context) error {
	mode := uint8(0)
	if m := c.QueryParam("mode"); m != "" {
		v, err := strconv.ParseUint(m, 10, 8)
		if err != nil || v > 3 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid mode")
		}
		mode = uint8(v)
	}

	rows, err := s.store.TopPlayersByPP(c.Request().Context(), mode, 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, LeaderboardEntry{ID: r.UserID, Name: r.Name, PP: r.PP})
	}
	return c.JSON(http.StatusOK, out)
}

// RegisterRequest is the body for POST /users.
type RegisterRequest struct {
	Name        string `json:"name" form:"name"`
	Email       string `json:"email" form:"email"`
	PasswordMD5 string `json:"password_md5" form:"password_md5"`
}

// RegisterResponse is the created account's identity.
type RegisterResponse struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	name := strings.TrimSpace(req.Name)
	if len(name) < 2 || len(name) > 15 {
		return echo.NewHTTPError(http.StatusBadRequest, "name must be 2-15 characters")
	}
	if len(req.PasswordMD5) != 32 {
		return echo.NewHTTPError(http.StatusBadRequest, "password must be a 32-char md5")
	}

	safeName := strings.ReplaceAll(strings.ToLower(name), " ", "_")
	if _, err := s.store.FindUserBySafeName(c.Request().Context(), safeName); err == nil {
		return echo.NewHTTPError(http.StatusConflict, "name already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PasswordMD5), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	u, err := s.store.CreateUser(c.Request().Context(), name, safeName, req.Email, string(hash))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := s.store.EnsureStatsRows(c.Request().Context(), u.ID, []uint8{0, 1, 2, 3}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, RegisterResponse{ID: u.ID, Name: u.Name})
}

func (s *Server) handleUploadAvatar(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid player id")
	}

	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, MaxAssetSize+1024)
	file, header, err := c.Request().FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing or invalid file field")
	}
	defer file.Close()

	ext := assetExt(header.Filename)
	if ext == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "avatar must be jpg or png")
	}

	dir := filepath.Join(s.dataDir, "avatars")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	dst, err := os.Create(filepath.Join(dir, fmt.Sprintf("%d%s", id, ext)))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(file, MaxAssetSize)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetAvatar(c echo.Context) error {
	id := c.Param("id")
	if _, err := strconv.ParseInt(id, 10, 32); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid player id")
	}
	for _, ext := range []string{".jpg", ".png"} {
		path := filepath.Join(s.dataDir, "avatars", id+ext)
		if _, err := os.Stat(path); err == nil {
			return c.File(path)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "no avatar")
}

func (s *Server) handleUploadScreenshot(c echo.Context) error {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, MaxAssetSize+1024)
	file, header, err := c.Request().FormFile("ss")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing or invalid ss field")
	}
	defer file.Close()

	ext := assetExt(header.Filename)
	if ext == "" {
		ext = ".png"
	}

	// 8-char url-safe name, same scheme the client's screenshot URLs use.
	name := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	dir := filepath.Join(s.dataDir, "ss")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	dst, err := os.Create(filepath.Join(dir, name+ext))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(file, MaxAssetSize)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.String(http.StatusOK, name+ext)
}

func (s *Server) handleGetScreenshot(c echo.Context) error {
	name := filepath.Base(c.Param("name"))
	path := filepath.Join(s.dataDir, "ss", name)
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no such screenshot")
	}
	return c.File(path)
}

func assetExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return ".jpg"
	case ".png":
		return ".png"
	}
	return ""
}

// jsonErrorHandler ensures all error responses have a consistent JSON body:
//
//	{"error": "message"}
//
// This replaces Echo's default handler which varies between text and JSON.
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			c.NoContent(code) //nolint:errcheck
		} else {
			c.JSON(code, map[string]string{"error": msg}) //nolint:errcheck
		}
	}
}
