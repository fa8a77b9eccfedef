package match

import "errors"

// ErrMapBanned is returned by Pick when the (mods, slot) key is currently banned.
var ErrMapBanned = errors.New("match: map pick is banned")

// ErrNoSuchPick is returned when the (mods, slot) key isn't in the pool.
var ErrNoSuchPick = errors.New("match: no such mappool entry")

// poolKey identifies one pick/ban slot in a Mappool: the (mods,
// slot-number) pair a pick or ban names.
type poolKey struct {
	Mods int32
	Slot int
}

// Mappool is a named collection of pick/ban entries used during a scrim.
type Mappool struct {
	Name    string
	entries map[poolKey]Map
	banned  map[poolKey]struct{}
}

// NewMappool returns an empty, named pool.
func NewMappool(name string) *Mappool {
	return &Mappool{
		Name:    name,
		entries: make(map[poolKey]Map),
		banned:  make(map[poolKey]struct{}),
	}
}

// Add registers a (mods, slot) -> map entry.
func (p *Mappool) Add(mods int32, slot int, m Map) {
	p.entries[poolKey{mods, slot}] = m
}

// AttachPool installs pool as the match's active mappool.
func (m *Match) AttachPool(pool *Mappool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pool = pool
}

// Pick sets the room's current map to the pool entry for (mods, slot),
// overrides room mods to the entry's mods, and if freemods was on, turns
// it off and zeroes every slot's mods.
func (m *Match) Pick(mods int32, slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Pool == nil {
		return ErrNoSuchPick
	}
	key := poolKey{mods, slot}
	if _, banned := m.Pool.banned[key]; banned {
		return ErrMapBanned
	}
	entry, ok := m.Pool.entries[key]
	if !ok {
		return ErrNoSuchPick
	}

	m.Map = entry
	m.Mods = mods
	if m.Freemods {
		m.Freemods = false
		for i := range m.Slots {
			m.Slots[i].Mods = 0
		}
	}
	return nil
}

// Ban forbids subsequent picks of (mods, slot) until Unban.
func (m *Match) Ban(mods int32, slot int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Pool == nil {
		return
	}
	m.Pool.banned[poolKey{mods, slot}] = struct{}{}
}

// Unban lifts a previous Ban.
func (m *Match) Unban(mods int32, slot int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Pool == nil {
		return
	}
	delete(m.Pool.banned, poolKey{mods, slot})
}
