// Package channel implements the Channel Registry: named chat channels
// (static, instanced-spectator, instanced-match) with per-channel membership
// and read/write privilege gates.
package channel

import (
	"sync"
)

// Channel is one chat channel. Name is the external, possibly virtual name
// (e.g. a generic spectator alias); RealName is unique (e.g.
// "#spec_1001") and is what membership/lookups key on.
type Channel struct {
	mu sync.RWMutex

	Name         string
	RealName     string
	Topic        string
	ReadPriv     int64
	WritePriv    int64
	AutoJoin     bool
	Instance     bool
	members      map[int32]struct{}
}

func newChannel(name, realName, topic string, readPriv, writePriv int64, autoJoin, instance bool) *Channel {
	return &Channel{
		Name: name, RealName: realName, Topic: topic,
		ReadPriv: readPriv, WritePriv: writePriv, AutoJoin: autoJoin, Instance: instance,
		members: make(map[int32]struct{}),
	}
}

// CanRead reports whether a session with the given privilege bitset may see
// this channel's membership/messages.
func (c *Channel) CanRead(priv int64) bool {
	return c.ReadPriv == 0 || priv&c.ReadPriv != 0
}

// CanWrite reports whether a session with the given privilege bitset may send to this channel.
func (c *Channel) CanWrite(priv int64) bool {
	return c.WritePriv == 0 || priv&c.WritePriv != 0
}

// Members returns a snapshot of currently joined session ids.
func (c *Channel) Members() []int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int32, 0, len(c.members))
	for id := range c.members {
		out = append(out, id)
	}
	return out
}

// MemberCount returns the number of joined sessions.
func (c *Channel) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Has reports whether id is currently a member.
func (c *Channel) Has(id int32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[id]
	return ok
}

func (c *Channel) add(id int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[id] = struct{}{}
}

// remove deletes id and reports whether the channel is now empty.
func (c *Channel) remove(id int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.members, id)
	return len(c.members) == 0
}
