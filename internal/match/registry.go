package match

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sutekina/osu-gulag/internal/channel"
)

// Capacity is the fixed number of concurrent rooms the registry holds.
const Capacity = 64

// ErrFull is returned by Insert when every slot in the table is occupied.
var ErrFull = errors.New("match: registry at capacity")

// Registry is the fixed-capacity table of multiplayer rooms.
type Registry struct {
	mu       sync.Mutex
	matches  [Capacity]*Match
	channels *channel.Registry
}

// NewRegistry returns an empty table backed by channels for each match's
// co-located instance chat channel.
func NewRegistry(channels *channel.Registry) *Registry {
	return &Registry{channels: channels}
}

// Insert finds the lowest free index, assigns it as m.ID, creates the
// match's instanced chat channel, and publishes m into the table.
func (r *Registry) Insert(m *Match) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < Capacity; i++ {
		if r.matches[i] == nil {
			m.ID = int32(i)
			realName := fmt.Sprintf("#mp_%d", i)
			m.Channel = r.channels.CreateInstance("#multiplayer", realName, m.Name, 0, 0)
			r.matches[i] = m
			return m.ID, nil
		}
	}
	return 0, ErrFull
}

// ByID returns the match at index id, or nil if the slot is empty or id is
// out of range.
func (r *Registry) ByID(id int32) *Match {
	if id < 0 || int(id) >= Capacity {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matches[id]
}

// Remove clears index id and destroys its instance channel. Callers are
// responsible for emitting the ChoDisposeMatch notification to the lobby
// audience.
func (r *Registry) Remove(id int32) *Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || int(id) >= Capacity {
		return nil
	}
	m := r.matches[id]
	if m == nil {
		return nil
	}
	r.matches[id] = nil
	r.channels.Leave(m.Channel.RealName, -1) // drop registry's own reference if still a member
	return m
}

// All returns a snapshot slice of every occupied table index, for the
// lobby listing and the inactivity sweeper's "is this session in a match" check.
func (r *Registry) All() []*Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Match, 0, Capacity)
	for _, m := range r.matches {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// InMatch reports whether sessionID currently occupies a slot in any match,
// satisfying the session registry's Sweep callback signature.
func (r *Registry) InMatch(sessionID int32) bool {
	for _, m := range r.All() {
		m.Lock()
		idx := m.SlotOf(sessionID)
		m.Unlock()
		if idx >= 0 {
			return true
		}
	}
	return false
}
