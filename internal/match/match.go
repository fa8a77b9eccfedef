// Package match implements the Match Registry (a fixed-capacity table of
// multiplayer rooms) and the state machine that drives a single room, plus
// the scrim and mappool overlays.
package match

import (
	"errors"
	"sync"

	"github.com/sutekina/osu-gulag/internal/channel"
	"github.com/sutekina/osu-gulag/internal/codec"
)

var (
	ErrSlotOccupied       = errors.New("match: slot occupied")
	ErrNoFreeSlot         = errors.New("match: no free slot")
	ErrWrongPassword      = errors.New("match: wrong password")
	ErrNotHost            = errors.New("match: sender is not host")
	ErrAlreadyInProgress  = errors.New("match: already in progress")
	ErrNotInProgress      = errors.New("match: not in progress")
	ErrNotOccupiedBySelf  = errors.New("match: slot not occupied by sender")
	ErrSlotLocked         = errors.New("match: slot is locked")
	ErrInvalidBestOf      = errors.New("match: best-of must be odd and in (0, 15]")
	ErrInvalidTimerLength = errors.New("match: start timer duration must be in (0, 300] seconds")
	ErrSlotNotFound       = errors.New("match: no such slot")
)

// Map identifies the currently selected beatmap.
type Map struct {
	ID   int32
	MD5  string
	Name string
}

// Match is one multiplayer room. Every mutating method takes mu itself;
// callers (the gateway) acquire the sender's session mutex before calling
// into a Match, never the other way around.
type Match struct {
	mu sync.Mutex

	ID       int32
	Name     string
	Password string
	Map      Map
	Mode     uint8
	Mods     int32 // room-wide mods
	Freemods bool

	Slots [codec.NumSlots]Slot

	HostID    int32 // session id, -1 if the room is empty
	Referees  map[int32]struct{}
	InProgress bool

	WinCondition codec.MatchWinCondition
	TeamType     codec.MatchTeamType
	Seed         int32

	Channel *channel.Channel

	Scrim *ScrimState
	Pool  *Mappool

	// pendingStart, if non-nil, is the revocable start-timer handle
	// installed by ScheduleStart; Cancelled together with its alert timers
	// by CancelStartTimer.
	pendingStart *StartTimer
}

// New constructs an empty match. The registry assigns ID on Insert.
func New(name, password string, mode uint8) *Match {
	m := &Match{
		Name:         name,
		Password:     password,
		Mode:         mode,
		HostID:       -1,
		Referees:     make(map[int32]struct{}),
		WinCondition: codec.WinScore,
		TeamType:     codec.TeamTypeHeadToHead,
	}
	for i := range m.Slots {
		m.Slots[i] = emptySlot()
	}
	return m
}

// Lock/Unlock are exported so the gateway can hold the match mutex across a
// multi-step handler (e.g. read-modify-broadcast) without re-entering
// every helper method's own locking, while still using sync.Locker idioms
// elsewhere in the codebase.
func (m *Match) Lock()   { m.mu.Lock() }
func (m *Match) Unlock() { m.mu.Unlock() }

// occupantCount returns how many slots currently hold a player. Caller must hold mu.
func (m *Match) occupantCount() int {
	n := 0
	for _, s := range m.Slots {
		if s.occupied() {
			n++
		}
	}
	return n
}

// Empty reports whether no slot is occupied. Caller must hold mu.
func (m *Match) Empty() bool {
	return m.occupantCount() == 0
}

// SlotOf returns the index of the slot occupied by sessionID, or -1.
func (m *Match) SlotOf(sessionID int32) int {
	for i, s := range m.Slots {
		if s.occupied() && s.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// IsHost reports whether sessionID is the current host.
func (m *Match) IsHost(sessionID int32) bool {
	return m.HostID == sessionID
}

// IsReferee reports whether sessionID has referee privileges on this match.
func (m *Match) IsReferee(sessionID int32) bool {
	_, ok := m.Referees[sessionID]
	return ok
}

// Snapshot renders the wire "match" composite, password included verbatim;
// the masked lobby view is produced at encode time by passing
// sendPassword=false to WriteMatch (see EncodeUpdate).
func (m *Match) Snapshot() codec.Match {
	out := codec.Match{
		ID:           uint16(m.ID),
		InProgress:   m.InProgress,
		Mods:         m.Mods,
		Name:         m.Name,
		Password:     m.Password,
		MapName:      m.Map.Name,
		MapID:        m.Map.ID,
		MapMD5:       m.Map.MD5,
		HostID:       m.HostID,
		Mode:         m.Mode,
		WinCondition: m.WinCondition,
		TeamType:     m.TeamType,
		Freemods:     m.Freemods,
		Seed:         m.Seed,
	}
	for i, s := range m.Slots {
		out.Slots[i] = codec.MatchSlot{
			Status: s.Status,
			Team:   s.Team,
			UserID: s.SessionID,
			Mods:   s.Mods,
		}
	}
	return out
}

// EncodeUpdate renders the ChoUpdateMatch packet for this match, masking
// the password unless forHostOrReferee is set.
func (m *Match) EncodeUpdate(forHostOrReferee bool) []byte {
	snap := m.Snapshot()
	w := codec.NewWriter()
	w.WriteMatch(snap, forHostOrReferee)
	return codec.EncodePacket(codec.ChoUpdateMatch, w.Bytes())
}
