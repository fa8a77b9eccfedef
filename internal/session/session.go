// Package session implements the Session Registry: the set of logged-in
// users indexed by opaque token, numeric id, and normalized name, and the
// per-session state a gateway transaction reads and mutates.
package session

import (
	"bytes"
	"sync"
	"time"
)

// Status mirrors the client's current activity, broadcast in presence packets.
type Status struct {
	Action  uint8
	Info    string
	MapMD5  string
	Mods    int32
	Mode    uint8
	MapID   int32
}

// ModeStats is one game mode's aggregate statistics, mirrored in memory from
// the store for fast presence/stat packet encoding.
type ModeStats struct {
	RankedScore int64
	TotalScore  int64
	PP          float64
	Accuracy    float64
	Plays       int64
	Playtime    int64
	MaxCombo    int32
	Rank        int64
}

// BotID is the fixed id of the always-online bot account.
const BotID int32 = 1

// Session is one logged-in user's server-side state. Every field here is
// guarded by Mu, taken by the gateway for the duration of one packet batch;
// the registry itself only ever touches fields under its own locks while
// inserting/removing a Session from its index maps.
type Session struct {
	Mu sync.Mutex

	ID           int32
	Name         string
	SafeName     string
	Token        string
	Priv         int64
	Status       Status
	Stats        map[uint8]*ModeStats
	Friends      map[int32]struct{}
	Blocked      map[int32]struct{}
	Channels     map[string]struct{}
	MatchID      int32 // -1 if not in a match
	SpectatorOf  int32 // -1 if not spectating anyone
	Spectators   map[int32]struct{}
	LastReceived time.Time
	LoginTime    time.Time

	LastMapMD5    string
	LastMapExpiry time.Time

	MenuOptions map[int32]string

	BlockNonFriendDM bool

	UTCOffset   int32
	CountryCode uint8
	Lat, Lon    float32
	AwayMessage string
	SilenceEnd  int64 // unix seconds, 0 = not silenced

	// PresenceFilter is the client's receive-updates preference:
	// 0 = nothing, 1 = friends only, 2 = everyone.
	PresenceFilter int32

	// InLobby is set while the client has the multiplayer lobby open and
	// should receive new-match/dispose-match notifications.
	InLobby bool

	outbound bytes.Buffer
}

// NewSession constructs a fresh session for a just-authenticated user.
func NewSession(id int32, name, safeName, token string, priv int64) *Session {
	return &Session{
		ID:           id,
		Name:         name,
		SafeName:     safeName,
		Token:        token,
		Priv:         priv,
		Stats:        make(map[uint8]*ModeStats),
		Friends:      make(map[int32]struct{}),
		Blocked:      make(map[int32]struct{}),
		Channels:     make(map[string]struct{}),
		MatchID:      -1,
		SpectatorOf:  -1,
		Spectators:   make(map[int32]struct{}),
		MenuOptions:  make(map[int32]string),
		LastReceived: time.Now(),
		LoginTime:    time.Now(),
	}
}

func (s *Session) Restricted() bool { return s.Priv&(1<<2) != 0 }

// Silenced reports whether the session's silence is still in effect.
func (s *Session) Silenced() bool {
	return s.SilenceEnd > time.Now().Unix()
}

// RemainingSilence is the number of seconds of silence left, 0 if none.
func (s *Session) RemainingSilence() int32 {
	d := s.SilenceEnd - time.Now().Unix()
	if d < 0 {
		return 0
	}
	return int32(d)
}

// Enqueue appends pre-encoded packet bytes to the session's outbound buffer.
// Callers must hold s.Mu.
func (s *Session) Enqueue(b []byte) {
	s.outbound.Write(b)
}

// DrainOutbound returns everything queued since the last drain and resets
// the buffer. This swaps in a fresh buffer rather than copying-and-clearing,
// so the bytes handed to the caller are never mutated concurrently by a
// subsequent Enqueue.
func (s *Session) DrainOutbound() []byte {
	if s.outbound.Len() == 0 {
		return nil
	}
	out := s.outbound.Bytes()
	s.outbound = bytes.Buffer{}
	return out
}

// Touch updates the last-received timestamp. Callers must hold s.Mu.
func (s *Session) Touch() {
	s.LastReceived = time.Now()
}
