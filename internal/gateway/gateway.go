// Package gateway implements the client-session gateway: the single POST
// route that multiplexes the binary packet protocol over request/response
// polling, owning login, per-session packet dispatch, and outbound drains.
package gateway

import (
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sutekina/osu-gulag/internal/channel"
	"github.com/sutekina/osu-gulag/internal/codec"
	"github.com/sutekina/osu-gulag/internal/match"
	"github.com/sutekina/osu-gulag/internal/presence"
	"github.com/sutekina/osu-gulag/internal/ratelimit"
	"github.com/sutekina/osu-gulag/internal/session"
	"github.com/sutekina/osu-gulag/internal/store"
)

// handlerFunc processes one decoded client packet for a session. The
// session's mutex is NOT held on entry; handlers take it as needed and must
// acquire a session lock before any match lock, never the reverse.
type handlerFunc func(g *Gateway, s *session.Session, r *codec.Reader) error

// Gateway is the process-scoped context every packet handler receives.
type Gateway struct {
	sessions *session.Registry
	channels *channel.Registry
	matches  *match.Registry
	presence *presence.Broadcaster
	store    *store.Store

	loginLimiter *ratelimit.Limiter
	handlers     map[uint16]handlerFunc

	welcomeMessage string
	menuIcon       string
}

// New wires a Gateway and builds its static packet-id handler table.
func New(sessions *session.Registry, channels *channel.Registry, matches *match.Registry,
	pr *presence.Broadcaster, st *store.Store, loginLimiter *ratelimit.Limiter) *Gateway {
	g := &Gateway{
		sessions:       sessions,
		channels:       channels,
		matches:        matches,
		presence:       pr,
		store:          st,
		loginLimiter:   loginLimiter,
		welcomeMessage: "Welcome back!",
		menuIcon:       "",
	}
	g.handlers = buildHandlerTable()
	return g
}

// SetWelcome overrides the login notification text.
func (g *Gateway) SetWelcome(msg string) { g.welcomeMessage = msg }

// SetMenuIcon sets the main-menu icon spec string sent at login.
func (g *Gateway) SetMenuIcon(icon string) { g.menuIcon = icon }

// Register installs the gateway's single route on e: the root POST.
func (g *Gateway) Register(e *echo.Echo) {
	e.POST("/", g.handleBancho)
}

// handleBancho runs one gateway transaction: no token header means a login
// payload; otherwise dispatch the body's packets for the session and return
// its drained outbound buffer.
func (g *Gateway) handleBancho(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	// The client parses headers loosely; this exact content type keeps its
	// header parser happy on every gateway response.
	c.Response().Header().Set(echo.HeaderContentType, "text/html; charset=UTF-8")

	token := req.Header.Get("osu-token")
	if token == "" {
		ip := c.RealIP()
		if g.loginLimiter != nil && !g.loginLimiter.Allow(ip) {
			c.Response().Header().Set("cho-token", "no")
			return c.Blob(http.StatusOK, "text/html; charset=UTF-8", pktUserID(session.RejectionGenericError))
		}
		resp, tok := g.handleLogin(req.Context(), body, ip)
		c.Response().Header().Set("cho-token", tok)
		return c.Blob(http.StatusOK, "text/html; charset=UTF-8", resp)
	}

	sess := g.sessions.ByToken(token)
	if sess == nil {
		// Unknown token: most likely a server restart. Tell the client to
		// reconnect immediately; it will re-login and get a fresh session.
		out := append(pktNotification("Server is restarting"), pktRestart(0)...)
		return c.Blob(http.StatusOK, "text/html; charset=UTF-8", out)
	}

	packets, err := codec.DecodeAll(body)
	if err != nil {
		// Protocol violation: drop the session and hint a reconnect.
		log.Printf("[gateway] protocol error from %s: %v", sess.Name, err)
		g.destroySession(sess)
		out := append(pktNotification("Server is restarting"), pktRestart(0)...)
		return c.Blob(http.StatusOK, "text/html; charset=UTF-8", out)
	}

	for _, pkt := range packets {
		h, ok := g.handlers[pkt.ID]
		if !ok {
			continue // unknown opcode: skipped, alignment already handled by the decoder
		}
		if isChatPacket(pkt.ID) && g.silenceGate(sess) {
			continue
		}
		if err := h(g, sess, codec.NewReader(pkt.Payload)); err != nil {
			// Authorization and business-rule failures are logged and the
			// packet dropped; they never close the session.
			log.Printf("[gateway] packet %d from %s: %v", pkt.ID, sess.Name, err)
		}
	}

	sess.Mu.Lock()
	sess.Touch()
	out := sess.DrainOutbound()
	sess.Mu.Unlock()
	return c.Blob(http.StatusOK, "text/html; charset=UTF-8", out)
}

// isChatPacket reports whether a packet id carries user-authored chat and is
// therefore subject to the silence gate.
func isChatPacket(id uint16) bool {
	return id == codec.OsuSendPublicMessage || id == codec.OsuSendPrivateMessage
}

// silenceGate is the single pre-handler silence check: silenced sessions
// have their chat packets dropped here instead of each handler re-checking.
func (g *Gateway) silenceGate(s *session.Session) bool {
	s.Mu.Lock()
	silenced := s.Silenced()
	s.Mu.Unlock()
	if silenced {
		log.Printf("[gateway] dropped chat packet from silenced user %s", s.Name)
	}
	return silenced
}

// destroySession tears a session down completely: match slot sweep, channel
// memberships, spectator links, registry removal and the logout broadcast.
func (g *Gateway) destroySession(s *session.Session) {
	s.Mu.Lock()
	matchID := s.MatchID
	specOf := s.SpectatorOf
	chans := make([]string, 0, len(s.Channels))
	for name := range s.Channels {
		chans = append(chans, name)
	}
	s.Mu.Unlock()

	if matchID >= 0 {
		g.leaveMatch(s)
	}
	if specOf >= 0 {
		g.stopSpectating(s)
	}
	for _, name := range chans {
		g.channels.Leave(name, s.ID)
	}

	g.sessions.Remove(s)
	g.presence.BroadcastLogout(s.ID)
	log.Printf("[gateway] %s logged out", s.Name)
}

// Sweep runs one inactivity sweeper pass, evicting idle sessions that are
// not in a match. Intended to be driven by a ticker in main.
func (g *Gateway) Sweep() {
	for _, s := range g.sessions.Sweep(g.matches.InMatch) {
		g.presence.BroadcastLogout(s.ID)
		log.Printf("[gateway] swept idle session %s", s.Name)
	}
}

// enqueue appends data to one session's outbound buffer.
func enqueue(s *session.Session, data []byte) {
	s.Mu.Lock()
	s.Enqueue(data)
	s.Mu.Unlock()
}

// enqueueChannel fans data out to every member of c except the excluded id.
func (g *Gateway) enqueueChannel(c *channel.Channel, data []byte, exceptID int32) {
	for _, id := range c.Members() {
		if id == exceptID {
			continue
		}
		if m := g.sessions.ByID(id); m != nil {
			enqueue(m, data)
		}
	}
}

// lobbySessions returns every session currently watching the lobby listing.
func (g *Gateway) lobbySessions() []*session.Session {
	var out []*session.Session
	for _, s := range g.sessions.All() {
		s.Mu.Lock()
		in := s.InLobby
		s.Mu.Unlock()
		if in {
			out = append(out, s)
		}
	}
	return out
}

// matchAudience is the broadcast set for a match mutation: its occupants
// plus everyone watching the lobby, deduplicated.
func (g *Gateway) matchAudience(m *match.Match) []*session.Session {
	seen := make(map[int32]struct{})
	var out []*session.Session

	m.Lock()
	var ids []int32
	for _, sl := range m.Slots {
		if sl.SessionID >= 0 && sl.Status&codec.SlotHasPlayer != 0 {
			ids = append(ids, sl.SessionID)
		}
	}
	m.Unlock()

	for _, id := range ids {
		if s := g.sessions.ByID(id); s != nil {
			seen[s.ID] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range g.lobbySessions() {
		if _, dup := seen[s.ID]; !dup {
			out = append(out, s)
		}
	}
	return out
}
