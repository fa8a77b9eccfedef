package match

import (
	"github.com/sutekina/osu-gulag/internal/codec"
	"github.com/sutekina/osu-gulag/internal/session"
)

// Broadcast appends an updated match-state packet to every recipient's
// outbound buffer. Referees and the host see the password in the clear;
// everyone else gets it masked.
func (m *Match) Broadcast(recipients []*session.Session) {
	m.mu.Lock()
	snap := m.Snapshot()
	hostID := m.HostID
	referees := make(map[int32]struct{}, len(m.Referees))
	for id := range m.Referees {
		referees[id] = struct{}{}
	}
	m.mu.Unlock()

	full := encodeMatch(snap, true)
	masked := encodeMatch(snap, false)

	for _, s := range recipients {
		_, isRef := referees[s.ID]
		data := masked
		if s.ID == hostID || isRef {
			data = full
		}
		s.Mu.Lock()
		s.Enqueue(data)
		s.Mu.Unlock()
	}
}

func encodeMatch(snap codec.Match, sendPassword bool) []byte {
	w := codec.NewWriter()
	w.WriteMatch(snap, sendPassword)
	return codec.EncodePacket(codec.ChoUpdateMatch, w.Bytes())
}

// EncodeNew renders the ChoNewMatch packet (same payload shape as an
// update, sent once when a match is inserted into the lobby listing).
func (m *Match) EncodeNew() []byte {
	m.mu.Lock()
	snap := m.Snapshot()
	m.mu.Unlock()
	w := codec.NewWriter()
	w.WriteMatch(snap, false)
	return codec.EncodePacket(codec.ChoNewMatch, w.Bytes())
}

// EncodeDispose renders the ChoDisposeMatch packet: a bare 32-bit match id.
func EncodeDispose(id int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(id)
	return codec.EncodePacket(codec.ChoDisposeMatch, w.Bytes())
}
