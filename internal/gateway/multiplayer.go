package gateway

import (
	"fmt"

	"github.com/sutekina/osu-gulag/internal/codec"
	"github.com/sutekina/osu-gulag/internal/match"
	"github.com/sutekina/osu-gulag/internal/session"
)

// currentMatch resolves the sender's match, or nil if they aren't in one.
func (g *Gateway) currentMatch(s *session.Session) *match.Match {
	s.Mu.Lock()
	id := s.MatchID
	s.Mu.Unlock()
	if id < 0 {
		return nil
	}
	return g.matches.ByID(id)
}

func (g *Gateway) handleJoinLobby(s *session.Session, _ *codec.Reader) error {
	s.Mu.Lock()
	s.InLobby = true
	s.Mu.Unlock()

	for _, m := range g.matches.All() {
		enqueue(s, m.EncodeNew())
	}
	return nil
}

func (g *Gateway) handlePartLobby(s *session.Session, _ *codec.Reader) error {
	s.Mu.Lock()
	s.InLobby = false
	s.Mu.Unlock()
	return nil
}

func (g *Gateway) handleCreateMatch(s *session.Session, r *codec.Reader) error {
	parsed, err := r.ReadMatch()
	if err != nil {
		return err
	}

	s.Mu.Lock()
	restricted := s.Restricted()
	inMatch := s.MatchID >= 0
	s.Mu.Unlock()
	if restricted {
		enqueue(s, pktMatchJoinFail())
		enqueue(s, pktNotification("Multiplayer is not available while restricted."))
		return nil
	}
	if inMatch {
		enqueue(s, pktMatchJoinFail())
		return nil
	}

	m := match.New(parsed.Name, parsed.Password, parsed.Mode)
	m.Map = match.Map{ID: parsed.MapID, MD5: parsed.MapMD5, Name: parsed.MapName}
	m.Mods = parsed.Mods
	m.WinCondition = parsed.WinCondition
	m.TeamType = parsed.TeamType
	m.Seed = parsed.Seed

	if _, err := g.matches.Insert(m); err != nil {
		enqueue(s, pktMatchJoinFail())
		enqueue(s, pktNotification("No multiplayer rooms are available."))
		return nil
	}

	return g.joinMatch(s, m, parsed.Password, true)
}

// joinMatch places s into m, joins the match channel and emits join-success
// plus the lobby/member broadcast.
func (g *Gateway) joinMatch(s *session.Session, m *match.Match, password string, asCreator bool) error {
	if _, err := m.Join(s.ID, password, asCreator); err != nil {
		enqueue(s, pktMatchJoinFail())
		return err
	}

	s.Mu.Lock()
	s.MatchID = m.ID
	s.Mu.Unlock()

	if _, err := g.channels.Join(m.Channel.RealName, s.ID, s.Priv); err == nil {
		s.Mu.Lock()
		s.Channels[m.Channel.RealName] = struct{}{}
		s.Mu.Unlock()
		enqueue(s, pktChannelJoin("#multiplayer"))
	}

	m.Lock()
	snap := m.Snapshot()
	m.Unlock()
	enqueue(s, pktMatchJoinSuccess(snap))

	if asCreator {
		for _, l := range g.lobbySessions() {
			if l.ID != s.ID {
				enqueue(l, m.EncodeNew())
			}
		}
	}
	m.Broadcast(g.matchAudience(m))
	return nil
}

func (g *Gateway) handleJoinMatch(s *session.Session, r *codec.Reader) error {
	matchID, err := r.I32()
	if err != nil {
		return err
	}
	password, err := r.String()
	if err != nil {
		return err
	}

	m := g.matches.ByID(matchID)
	if m == nil {
		enqueue(s, pktMatchJoinFail())
		return fmt.Errorf("%s tried to join nonexistent match %d", s.Name, matchID)
	}
	return g.joinMatch(s, m, password, false)
}

// leaveMatch removes s from its current match, handling host transfer,
// channel part, and empty-room disposal.
func (g *Gateway) leaveMatch(s *session.Session) {
	m := g.currentMatch(s)
	if m == nil {
		return
	}

	vacated, newHost := m.Leave(s.ID)
	if vacated < 0 {
		return
	}

	chanName := m.Channel.RealName
	g.channels.Leave(chanName, s.ID)
	s.Mu.Lock()
	s.MatchID = -1
	delete(s.Channels, chanName)
	s.Mu.Unlock()

	m.Lock()
	empty := m.Empty()
	m.Unlock()

	if empty {
		m.CancelStartTimer()
		g.matches.Remove(m.ID)
		dispose := match.EncodeDispose(m.ID)
		for _, l := range g.lobbySessions() {
			enqueue(l, dispose)
		}
		return
	}

	if newHost >= 0 {
		if h := g.sessions.ByID(newHost); h != nil {
			enqueue(h, pktMatchTransferHost())
		}
	}
	m.Broadcast(g.matchAudience(m))
}

func (g *Gateway) handlePartMatch(s *session.Session, _ *codec.Reader) error {
	g.leaveMatch(s)
	return nil
}

// mutateMatch runs fn against the sender's current match and broadcasts the
// updated state if fn succeeded.
func (g *Gateway) mutateMatch(s *session.Session, fn func(m *match.Match) error) error {
	m := g.currentMatch(s)
	if m == nil {
		return fmt.Errorf("%s is not in a match", s.Name)
	}
	if err := fn(m); err != nil {
		return err
	}
	m.Broadcast(g.matchAudience(m))
	return nil
}

func (g *Gateway) handleMatchChangeSlot(s *session.Session, r *codec.Reader) error {
	slot, err := r.I32()
	if err != nil {
		return err
	}
	return g.mutateMatch(s, func(m *match.Match) error {
		return m.ChangeSlot(s.ID, int(slot))
	})
}

func (g *Gateway) handleMatchReady(s *session.Session, _ *codec.Reader) error {
	return g.mutateMatch(s, func(m *match.Match) error {
		return m.Ready(s.ID)
	})
}

func (g *Gateway) handleMatchNotReady(s *session.Session, _ *codec.Reader) error {
	return g.mutateMatch(s, func(m *match.Match) error {
		return m.Unready(s.ID)
	})
}

func (g *Gateway) handleMatchLock(s *session.Session, r *codec.Reader) error {
	slot, err := r.I32()
	if err != nil {
		return err
	}
	return g.mutateMatch(s, func(m *match.Match) error {
		return m.LockSlot(s.ID, int(slot))
	})
}

func (g *Gateway) handleMatchChangeSettings(s *session.Session, r *codec.Reader) error {
	parsed, err := r.ReadMatch()
	if err != nil {
		return err
	}
	return g.mutateMatch(s, func(m *match.Match) error {
		m.Lock()
		freemodsNow := m.Freemods
		m.Unlock()

		if parsed.Freemods != freemodsNow {
			if err := m.ToggleFreemods(s.ID, parsed.Freemods); err != nil {
				return err
			}
		}
		_, err := m.ChangeSettings(s.ID, parsed.Name, parsed.Password,
			match.Map{ID: parsed.MapID, MD5: parsed.MapMD5, Name: parsed.MapName},
			parsed.Mode, parsed.TeamType, parsed.WinCondition)
		return err
	})
}

func (g *Gateway) handleMatchChangeMods(s *session.Session, r *codec.Reader) error {
	mods, err := r.I32()
	if err != nil {
		return err
	}
	return g.mutateMatch(s, func(m *match.Match) error {
		return m.ChangeMods(s.ID, mods)
	})
}

func (g *Gateway) handleMatchChangeTeam(s *session.Session, _ *codec.Reader) error {
	return g.mutateMatch(s, func(m *match.Match) error {
		return m.ChangeTeam(s.ID)
	})
}

func (g *Gateway) handleMatchChangePassword(s *session.Session, r *codec.Reader) error {
	parsed, err := r.ReadMatch()
	if err != nil {
		return err
	}
	m := g.currentMatch(s)
	if m == nil {
		return fmt.Errorf("%s is not in a match", s.Name)
	}
	if err := m.ChangePassword(s.ID, parsed.Password); err != nil {
		return err
	}

	data := pktMatchChangePassword(parsed.Password)
	m.Lock()
	var ids []int32
	for _, sl := range m.Slots {
		if sl.Status&codec.SlotHasPlayer != 0 {
			ids = append(ids, sl.SessionID)
		}
	}
	m.Unlock()
	for _, id := range ids {
		if t := g.sessions.ByID(id); t != nil {
			enqueue(t, data)
		}
	}
	m.Broadcast(g.matchAudience(m))
	return nil
}

func (g *Gateway) handleMatchTransferHost(s *session.Session, r *codec.Reader) error {
	slot, err := r.I32()
	if err != nil {
		return err
	}
	m := g.currentMatch(s)
	if m == nil {
		return fmt.Errorf("%s is not in a match", s.Name)
	}

	m.Lock()
	var target int32 = -1
	if slot >= 0 && int(slot) < codec.NumSlots {
		if sl := m.Slots[slot]; sl.Status&codec.SlotHasPlayer != 0 {
			target = sl.SessionID
		}
	}
	m.Unlock()
	if target < 0 {
		return match.ErrSlotNotFound
	}

	if err := m.TransferHost(s.ID, target); err != nil {
		return err
	}
	if t := g.sessions.ByID(target); t != nil {
		enqueue(t, pktMatchTransferHost())
	}
	m.Broadcast(g.matchAudience(m))
	return nil
}

func (g *Gateway) handleMatchInvite(s *session.Session, r *codec.Reader) error {
	targetID, err := r.I32()
	if err != nil {
		return err
	}
	m := g.currentMatch(s)
	if m == nil {
		return fmt.Errorf("%s is not in a match", s.Name)
	}
	t := g.sessions.ByID(targetID)
	if t == nil || t.ID == session.BotID {
		return fmt.Errorf("%s invited invalid target %d", s.Name, targetID)
	}

	m.Lock()
	name := m.Name
	m.Unlock()
	enqueue(t, pktMatchInvite(s.Name, s.ID, t.Name, name))
	return nil
}

func (g *Gateway) handleMatchStart(s *session.Session, _ *codec.Reader) error {
	m := g.currentMatch(s)
	if m == nil {
		return fmt.Errorf("%s is not in a match", s.Name)
	}
	if err := m.Start(s.ID, false); err != nil {
		return err
	}
	g.broadcastMatchStart(m)
	return nil
}

// broadcastMatchStart delivers the start packet to every playing occupant
// and refreshes the lobby listing.
func (g *Gateway) broadcastMatchStart(m *match.Match) {
	m.Lock()
	snap := m.Snapshot()
	var ids []int32
	for _, sl := range m.Slots {
		if sl.Status == codec.SlotPlaying {
			ids = append(ids, sl.SessionID)
		}
	}
	m.Unlock()

	data := pktMatchStart(snap)
	for _, id := range ids {
		if t := g.sessions.ByID(id); t != nil {
			enqueue(t, data)
		}
	}
	m.Broadcast(g.matchAudience(m))
}

// StartByTimer is the timer-fired start path: same transition as a host
// start, invoked by a match's pending start timer.
func (g *Gateway) StartByTimer(m *match.Match) {
	if err := m.Start(-1, true); err != nil {
		return
	}
	g.broadcastMatchStart(m)
}

func (g *Gateway) handleMatchScoreUpdate(s *session.Session, r *codec.Reader) error {
	frame, err := r.ScoreFrame()
	if err != nil {
		return err
	}
	m := g.currentMatch(s)
	if m == nil {
		return fmt.Errorf("%s is not in a match", s.Name)
	}

	m.Lock()
	idx := m.SlotOf(s.ID)
	if idx >= 0 {
		// The relayed frame's slot-id byte is rewritten to the sender's
		// slot index; clients key incoming frames on it.
		frame.ID = uint8(idx)
		m.Slots[idx].Result = match.Result{
			Score:    int64(frame.TotalScore),
			Combo:    int32(frame.MaxCombo),
			Accuracy: frameAccuracy(frame),
		}
	}
	var ids []int32
	for _, sl := range m.Slots {
		if sl.Status&codec.SlotHasPlayer != 0 && sl.SessionID != s.ID {
			ids = append(ids, sl.SessionID)
		}
	}
	m.Unlock()
	if idx < 0 {
		return match.ErrSlotNotFound
	}

	w := codec.NewWriter()
	w.WriteScoreFrame(frame)
	data := codec.EncodePacket(codec.ChoMatchScoreUpdate, w.Bytes())
	for _, id := range ids {
		if t := g.sessions.ByID(id); t != nil {
			enqueue(t, data)
		}
	}
	return nil
}

// frameAccuracy derives a standard-mode accuracy percentage from a
// scoreframe's judgement counts for scrim aggregation.
func frameAccuracy(f codec.ScoreFrame) float64 {
	total := int(f.Num300) + int(f.Num100) + int(f.Num50) + int(f.NumMiss)
	if total == 0 {
		return 0
	}
	points := 300*int(f.Num300) + 100*int(f.Num100) + 50*int(f.Num50)
	return 100 * float64(points) / float64(300*total)
}

func (g *Gateway) handleMatchComplete(s *session.Session, _ *codec.Reader) error {
	m := g.currentMatch(s)
	if m == nil {
		return fmt.Errorf("%s is not in a match", s.Name)
	}

	m.Lock()
	idx := m.SlotOf(s.ID)
	var failed bool
	if idx >= 0 {
		failed = m.Slots[idx].Failed
	}
	result := match.Result{}
	if idx >= 0 {
		result = m.Slots[idx].Result
	}
	m.Unlock()
	if idx < 0 {
		return match.ErrSlotNotFound
	}

	if err := m.Complete(s.ID, !failed, result); err != nil {
		return err
	}

	if !m.AllSettled() {
		return nil
	}

	// Everyone has reported: tally scrim points before the slot reset,
	// then settle the room back to lobby.
	winner := m.TallyRound()

	m.Lock()
	var wasPlaying []int32
	for _, sl := range m.Slots {
		if sl.Status&(codec.SlotComplete|codec.SlotQuit) != 0 && sl.SessionID >= 0 {
			wasPlaying = append(wasPlaying, sl.SessionID)
		}
	}
	scrim := m.Scrim
	m.Unlock()

	m.FinishRound()

	done := pktMatchComplete()
	for _, id := range wasPlaying {
		if t := g.sessions.ByID(id); t != nil {
			enqueue(t, done)
		}
	}
	m.Broadcast(g.matchAudience(m))

	if scrim != nil && winner != codec.TeamNeutral {
		g.announceScrimPoint(m, winner)
	}
	return nil
}

// announceScrimPoint posts the round result to the match channel via the bot.
func (g *Gateway) announceScrimPoint(m *match.Match, winner codec.MatchTeam) {
	m.Lock()
	scrim := m.Scrim
	c := m.Channel
	m.Unlock()
	if scrim == nil || c == nil {
		return
	}

	team := "Red"
	if winner == codec.TeamBlue {
		team = "Blue"
	}
	text := fmt.Sprintf("%s team takes the point! (%d - %d, best of %d)",
		team, scrim.Points[codec.TeamRed], scrim.Points[codec.TeamBlue], scrim.BestOf)

	bot := g.sessions.Bot()
	data := pktMessage(codec.Message{Sender: bot.Name, Content: text, Recipient: c.Name, SenderID: bot.ID})
	g.enqueueChannel(c, data, -1)
}

func (g *Gateway) handleMatchLoadComplete(s *session.Session, _ *codec.Reader) error {
	m := g.currentMatch(s)
	if m == nil {
		return fmt.Errorf("%s is not in a match", s.Name)
	}
	if err := m.LoadComplete(s.ID); err != nil {
		return err
	}
	if m.AllLoaded() {
		data := pktMatchAllPlayersLoaded()
		m.Lock()
		var ids []int32
		for _, sl := range m.Slots {
			if sl.Status == codec.SlotPlaying {
				ids = append(ids, sl.SessionID)
			}
		}
		m.Unlock()
		for _, id := range ids {
			if t := g.sessions.ByID(id); t != nil {
				enqueue(t, data)
			}
		}
	}
	return nil
}

func (g *Gateway) handleMatchSkipRequest(s *session.Session, _ *codec.Reader) error {
	m := g.currentMatch(s)
	if m == nil {
		return fmt.Errorf("%s is not in a match", s.Name)
	}
	if err := m.SkipRequest(s.ID); err != nil {
		return err
	}

	m.Lock()
	var ids []int32
	for _, sl := range m.Slots {
		if sl.Status == codec.SlotPlaying {
			ids = append(ids, sl.SessionID)
		}
	}
	m.Unlock()

	skipped := pktMatchPlayerSkipped(s.ID)
	for _, id := range ids {
		if t := g.sessions.ByID(id); t != nil {
			enqueue(t, skipped)
		}
	}

	if m.AllSkipped() {
		skip := pktMatchSkip()
		for _, id := range ids {
			if t := g.sessions.ByID(id); t != nil {
				enqueue(t, skip)
			}
		}
	}
	return nil
}

func (g *Gateway) handleMatchFailed(s *session.Session, _ *codec.Reader) error {
	m := g.currentMatch(s)
	if m == nil {
		return fmt.Errorf("%s is not in a match", s.Name)
	}

	m.Lock()
	idx := m.SlotOf(s.ID)
	if idx >= 0 {
		m.Slots[idx].Failed = true
	}
	var ids []int32
	for _, sl := range m.Slots {
		if sl.Status == codec.SlotPlaying {
			ids = append(ids, sl.SessionID)
		}
	}
	m.Unlock()
	if idx < 0 {
		return match.ErrSlotNotFound
	}

	data := pktMatchPlayerFailed(int32(idx))
	for _, id := range ids {
		if t := g.sessions.ByID(id); t != nil {
			enqueue(t, data)
		}
	}
	return nil
}

func (g *Gateway) handleMatchNoBeatmap(s *session.Session, _ *codec.Reader) error {
	return g.mutateMatch(s, func(m *match.Match) error {
		return m.NoBeatmap(s.ID)
	})
}

func (g *Gateway) handleMatchHasBeatmap(s *session.Session, _ *codec.Reader) error {
	return g.mutateMatch(s, func(m *match.Match) error {
		return m.HasBeatmap(s.ID)
	})
}
