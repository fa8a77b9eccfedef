package channel

import (
	"errors"
	"sync"
)

// ErrNoReadPrivilege / ErrNoWritePrivilege are returned by Join/Send when the
// caller's privilege bitset doesn't satisfy the channel's gate.
var (
	ErrNoReadPrivilege  = errors.New("channel: insufficient read privilege")
	ErrNoWritePrivilege = errors.New("channel: insufficient write privilege")
	ErrNotFound         = errors.New("channel: not found")
)

// Registry owns every Channel, static and instanced.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel // keyed by RealName
}

// NewRegistry returns an empty registry. Static channels are seeded once at
// startup by the caller via SeedStatic.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// SeedStatic registers one always-present channel at startup.
func (r *Registry) SeedStatic(name, topic string, readPriv, writePriv int64, autoJoin bool) *Channel {
	c := newChannel(name, name, topic, readPriv, writePriv, autoJoin, false)
	r.mu.Lock()
	r.channels[c.RealName] = c
	r.mu.Unlock()
	return c
}

// CreateInstance creates (or returns, if it already exists) an instanced
// channel -- e.g. a match or spectator channel -- keyed by realName.
func (r *Registry) CreateInstance(name, realName, topic string, readPriv, writePriv int64) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.channels[realName]; ok {
		return c
	}
	c := newChannel(name, realName, topic, readPriv, writePriv, false, true)
	r.channels[realName] = c
	return c
}

// ByRealName looks up a channel by its unique internal name.
func (r *Registry) ByRealName(realName string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[realName]
}

// Visible returns every non-instance channel with sufficient read privilege,
// plus any instance channel the given session id is already a member of --
// an instance channel is only enumerated to its members.
func (r *Registry) Visible(sessionID int32, priv int64) []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Channel
	for _, c := range r.channels {
		if c.Instance {
			if c.Has(sessionID) {
				out = append(out, c)
			}
			continue
		}
		if c.CanRead(priv) {
			out = append(out, c)
		}
	}
	return out
}

// Join inserts sessionID into the channel, returning ErrNoReadPrivilege if
// priv doesn't satisfy the gate.
func (r *Registry) Join(realName string, sessionID int32, priv int64) (*Channel, error) {
	c := r.ByRealName(realName)
	if c == nil {
		return nil, ErrNotFound
	}
	if !c.CanRead(priv) {
		return nil, ErrNoReadPrivilege
	}
	c.add(sessionID)
	return c, nil
}

// Leave removes sessionID from the channel. If the channel is instanced and
// becomes empty, it is destroyed and Leave reports destroyed=true.
func (r *Registry) Leave(realName string, sessionID int32) (destroyed bool) {
	c := r.ByRealName(realName)
	if c == nil {
		return false
	}
	empty := c.remove(sessionID)
	if c.Instance && empty {
		r.mu.Lock()
		delete(r.channels, realName)
		r.mu.Unlock()
		return true
	}
	return false
}

// CanSend reports whether priv may write to the channel; callers use this
// before fanning a message out to every member except the sender.
func (r *Registry) CanSend(realName string, priv int64) (*Channel, error) {
	c := r.ByRealName(realName)
	if c == nil {
		return nil, ErrNotFound
	}
	if !c.CanWrite(priv) {
		return nil, ErrNoWritePrivilege
	}
	return c, nil
}
