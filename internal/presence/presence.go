// Package presence fans user stats, presence and logout notifications out
// to the sessions that should see them, and relays spectator frames
// verbatim between a host and their spectators.
package presence

import (
	"github.com/sutekina/osu-gulag/internal/codec"
	"github.com/sutekina/osu-gulag/internal/session"
)

// Broadcaster owns the fan-out paths and the cached bot encoder.
type Broadcaster struct {
	sessions *session.Registry
	bot      *botCache
}

// NewBroadcaster wires a Broadcaster to the session registry.
func NewBroadcaster(sessions *session.Registry) *Broadcaster {
	return &Broadcaster{
		sessions: sessions,
		bot:      newBotCache(sessions.Bot()),
	}
}

// EncodeStats renders a ChoUserStats packet for s. The bot's stats come from
// the cache since they are requested very frequently. Callers must hold s.Mu
// for non-bot sessions.
func (b *Broadcaster) EncodeStats(s *session.Session) []byte {
	if s.ID == session.BotID {
		return b.bot.stats()
	}
	return encodeStats(s)
}

// EncodePresence renders a ChoUserPresence packet for s; the bot's comes
// from the cache. Callers must hold s.Mu for non-bot sessions.
func (b *Broadcaster) EncodePresence(s *session.Session) []byte {
	if s.ID == session.BotID {
		return b.bot.presence()
	}
	return encodePresence(s)
}

// InvalidateBotCache drops the cached bot stats packet so the next request
// re-encodes it with a freshly rolled status line; the cached presence
// packet is kept.
func (b *Broadcaster) InvalidateBotCache() {
	b.bot.invalidate()
}

func encodeStats(s *session.Session) []byte {
	st := s.Stats[s.Status.Mode]
	if st == nil {
		st = &session.ModeStats{}
	}

	// The client's stats packet carries pp as an i16; past its ceiling the
	// value is shown through the ranked-score field instead.
	rscore := st.RankedScore
	pp := int16(st.PP)
	if st.PP > 0x7fff {
		rscore = int64(st.PP)
		pp = 0
	}

	w := codec.NewWriter()
	w.WriteI32(s.ID)
	w.WriteU8(s.Status.Action)
	w.WriteString(s.Status.Info)
	w.WriteString(s.Status.MapMD5)
	w.WriteI32(s.Status.Mods)
	w.WriteU8(s.Status.Mode)
	w.WriteI32(s.Status.MapID)
	w.WriteI64(rscore)
	w.WriteF32(float32(st.Accuracy / 100.0))
	w.WriteI32(int32(st.Plays))
	w.WriteI64(st.TotalScore)
	w.WriteI32(int32(st.Rank))
	w.WriteI16(pp)
	return codec.EncodePacket(codec.ChoUserStats, w.Bytes())
}

func encodePresence(s *session.Session) []byte {
	st := s.Stats[s.Status.Mode]
	if st == nil {
		st = &session.ModeStats{}
	}

	w := codec.NewWriter()
	w.WriteI32(s.ID)
	w.WriteString(s.Name)
	w.WriteU8(uint8(s.UTCOffset + 24))
	w.WriteU8(s.CountryCode)
	w.WriteU8(banchoPriv(s.Priv) | s.Status.Mode<<5)
	w.WriteF32(s.Lon)
	w.WriteF32(s.Lat)
	w.WriteI32(int32(st.Rank))
	return codec.EncodePacket(codec.ChoUserPresence, w.Bytes())
}

// banchoPriv maps server privilege bits onto the client's much smaller
// in-game privilege byte (1 = player, 4 = supporter, 16 = staff).
func banchoPriv(priv int64) uint8 {
	var out uint8
	if priv&(1<<0) != 0 {
		out |= 1
	}
	out |= 4 // everyone gets the supporter bit on a private server
	if priv&(1<<3) != 0 {
		out |= 16
	}
	return out
}

// EncodeLogout renders a ChoUserLogout packet for a departed user id.
func EncodeLogout(userID int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(userID)
	w.WriteU8(0)
	return codec.EncodePacket(codec.ChoUserLogout, w.Bytes())
}

// BroadcastStats fans s's current stats out to every online session,
// including s itself. Caller must NOT hold s.Mu.
func (b *Broadcaster) BroadcastStats(s *session.Session) {
	s.Mu.Lock()
	data := b.EncodeStats(s)
	s.Mu.Unlock()
	b.sessions.Broadcast(data, nil)
}

// BroadcastPresence fans s's presence out to every online session.
func (b *Broadcaster) BroadcastPresence(s *session.Session) {
	s.Mu.Lock()
	data := b.EncodePresence(s)
	s.Mu.Unlock()
	b.sessions.Broadcast(data, nil)
}

// BroadcastLogout notifies everyone except the departing session itself.
func (b *Broadcaster) BroadcastLogout(userID int32) {
	b.sessions.Broadcast(EncodeLogout(userID), map[int32]struct{}{userID: {}})
}

// RelayFrames wraps a host's opaque replay fragment in a ChoSpectateFrames
// packet and appends it to every spectator's outbound buffer. The fragment
// is never parsed. Caller must NOT hold host.Mu.
func (b *Broadcaster) RelayFrames(host *session.Session, frames []byte) {
	data := codec.EncodePacket(codec.ChoSpectateFrames, frames)

	host.Mu.Lock()
	ids := make([]int32, 0, len(host.Spectators))
	for id := range host.Spectators {
		ids = append(ids, id)
	}
	host.Mu.Unlock()

	for _, id := range ids {
		if spec := b.sessions.ByID(id); spec != nil {
			spec.Mu.Lock()
			spec.Enqueue(data)
			spec.Mu.Unlock()
		}
	}
}
