package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sutekina/osu-gulag/internal/channel"
	"github.com/sutekina/osu-gulag/internal/codec"
	"github.com/sutekina/osu-gulag/internal/session"
)

// normalizeForLookup matches the session registry's name normalization for
// store lookups of offline users.
func normalizeForLookup(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// buildHandlerTable is the static packet-id -> handler table: one uniform
// function per client opcode, resolved at build time.
func buildHandlerTable() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		codec.OsuChangeAction:        (*Gateway).handleChangeAction,
		codec.OsuSendPublicMessage:   (*Gateway).handlePublicMessage,
		codec.OsuLogout:              (*Gateway).handleLogout,
		codec.OsuRequestStatusUpdate: (*Gateway).handleStatusUpdateRequest,
		codec.OsuPing:                (*Gateway).handlePing,
		codec.OsuSendPrivateMessage:  (*Gateway).handlePrivateMessage,

		codec.OsuStartSpectating: (*Gateway).handleStartSpectating,
		codec.OsuStopSpectating:  (*Gateway).handleStopSpectating,
		codec.OsuSpectateFrames:  (*Gateway).handleSpectateFrames,
		codec.OsuCantSpectate:    (*Gateway).handleCantSpectate,

		codec.OsuErrorReport: (*Gateway).handleErrorReport,

		codec.OsuPartLobby:   (*Gateway).handlePartLobby,
		codec.OsuJoinLobby:   (*Gateway).handleJoinLobby,
		codec.OsuCreateMatch: (*Gateway).handleCreateMatch,
		codec.OsuJoinMatch:   (*Gateway).handleJoinMatch,
		codec.OsuPartMatch:   (*Gateway).handlePartMatch,

		codec.OsuMatchChangeSlot:     (*Gateway).handleMatchChangeSlot,
		codec.OsuMatchReady:          (*Gateway).handleMatchReady,
		codec.OsuMatchLock:           (*Gateway).handleMatchLock,
		codec.OsuMatchChangeSettings: (*Gateway).handleMatchChangeSettings,
		codec.OsuMatchStart:          (*Gateway).handleMatchStart,
		codec.OsuMatchScoreUpdate:    (*Gateway).handleMatchScoreUpdate,
		codec.OsuMatchComplete:       (*Gateway).handleMatchComplete,
		codec.OsuMatchChangeMods:     (*Gateway).handleMatchChangeMods,
		codec.OsuMatchLoadComplete:   (*Gateway).handleMatchLoadComplete,
		codec.OsuMatchNoBeatmap:      (*Gateway).handleMatchNoBeatmap,
		codec.OsuMatchNotReady:       (*Gateway).handleMatchNotReady,
		codec.OsuMatchFailed:         (*Gateway).handleMatchFailed,
		codec.OsuMatchHasBeatmap:     (*Gateway).handleMatchHasBeatmap,
		codec.OsuMatchSkipRequest:    (*Gateway).handleMatchSkipRequest,
		codec.OsuMatchChangeTeam:     (*Gateway).handleMatchChangeTeam,
		codec.OsuMatchChangePassword: (*Gateway).handleMatchChangePassword,
		codec.OsuMatchTransferHost:   (*Gateway).handleMatchTransferHost,
		codec.OsuMatchInvite:         (*Gateway).handleMatchInvite,

		codec.OsuChannelJoin: (*Gateway).handleChannelJoin,
		codec.OsuChannelPart: (*Gateway).handleChannelPart,

		codec.OsuFriendAdd:    (*Gateway).handleFriendAdd,
		codec.OsuFriendRemove: (*Gateway).handleFriendRemove,

		codec.OsuReceiveUpdates:            (*Gateway).handleReceiveUpdates,
		codec.OsuSetAwayMessage:            (*Gateway).handleSetAwayMessage,
		codec.OsuUserStatsRequest:          (*Gateway).handleUserStatsRequest,
		codec.OsuUserPresenceRequest:       (*Gateway).handleUserPresenceRequest,
		codec.OsuUserPresenceRequestAll:    (*Gateway).handleUserPresenceRequestAll,
		codec.OsuToggleBlockNonFriendDMs:   (*Gateway).handleToggleBlockNonFriendDMs,
	}
}

func (g *Gateway) handlePing(_ *session.Session, _ *codec.Reader) error {
	// The reply is whatever has accumulated in the outbound buffer; the
	// ping itself needs no response packet.
	return nil
}

func (g *Gateway) handleErrorReport(s *session.Session, r *codec.Reader) error {
	report, err := r.String()
	if err != nil {
		return err
	}
	log.Printf("[gateway] client error report from %s: %.200s", s.Name, report)
	return nil
}

func (g *Gateway) handleChangeAction(s *session.Session, r *codec.Reader) error {
	action, err := r.U8()
	if err != nil {
		return err
	}
	info, err := r.String()
	if err != nil {
		return err
	}
	mapMD5, err := r.String()
	if err != nil {
		return err
	}
	mods, err := r.I32()
	if err != nil {
		return err
	}
	mode, err := r.U8()
	if err != nil {
		return err
	}
	mapID, err := r.I32()
	if err != nil {
		return err
	}

	s.Mu.Lock()
	s.Status = session.Status{
		Action: action,
		Info:   info,
		MapMD5: mapMD5,
		Mods:   mods,
		Mode:   mode,
		MapID:  mapID,
	}
	restricted := s.Restricted()
	s.Mu.Unlock()

	if !restricted {
		g.presence.BroadcastStats(s)
	}
	return nil
}

func (g *Gateway) handleStatusUpdateRequest(s *session.Session, _ *codec.Reader) error {
	s.Mu.Lock()
	data := g.presence.EncodeStats(s)
	s.Enqueue(data)
	s.Mu.Unlock()
	return nil
}

func (g *Gateway) handleLogout(s *session.Session, r *codec.Reader) error {
	if _, err := r.I32(); err != nil { // unused trailing field
		return err
	}

	// The client fires a logout packet immediately after login while its
	// settings load; ignore logouts within a second of the login time.
	s.Mu.Lock()
	tooSoon := time.Since(s.LoginTime) < time.Second
	s.Mu.Unlock()
	if tooSoon {
		return nil
	}

	g.destroySession(s)
	return nil
}

// maxMessageLen is the chat truncation bound: anything longer is cut with
// a suffix and the sender notified.
const maxMessageLen = 2000

func truncateMessage(s *session.Session, msg string) string {
	if len(msg) <= maxMessageLen {
		return msg
	}
	enqueue(s, pktNotification("Your message was truncated\n(exceeded 2000 characters)."))
	return msg[:maxMessageLen] + "... (truncated)"
}

// resolveChannelAlias maps the client's virtual channel names onto the real
// per-instance channels: "#multiplayer" is the sender's match channel and
// "#spectator" the channel of whoever they are spectating (or their own).
func (g *Gateway) resolveChannelAlias(s *session.Session, name string) string {
	switch name {
	case "#multiplayer":
		s.Mu.Lock()
		matchID := s.MatchID
		s.Mu.Unlock()
		if matchID < 0 {
			return ""
		}
		return fmt.Sprintf("#mp_%d", matchID)
	case "#spectator":
		s.Mu.Lock()
		hostID := s.SpectatorOf
		s.Mu.Unlock()
		if hostID < 0 {
			hostID = s.ID
		}
		return fmt.Sprintf("#spec_%d", hostID)
	default:
		return name
	}
}

func (g *Gateway) handlePublicMessage(s *session.Session, r *codec.Reader) error {
	msg, err := r.Message()
	if err != nil {
		return err
	}

	realName := g.resolveChannelAlias(s, msg.Recipient)
	if realName == "" {
		return fmt.Errorf("no channel resolves %q for %s", msg.Recipient, s.Name)
	}

	c, err := g.channels.CanSend(realName, s.Priv)
	if err != nil {
		return err
	}
	if !c.Has(s.ID) {
		return fmt.Errorf("%s is not a member of %s", s.Name, realName)
	}

	content := truncateMessage(s, msg.Content)
	data := pktMessage(codec.Message{
		Sender:    s.Name,
		Content:   content,
		Recipient: c.Name,
		SenderID:  s.ID,
	})
	g.enqueueChannel(c, data, s.ID)
	return nil
}

func (g *Gateway) handlePrivateMessage(s *session.Session, r *codec.Reader) error {
	msg, err := r.Message()
	if err != nil {
		return err
	}
	content := truncateMessage(s, msg.Content)

	target := g.sessions.ByName(msg.Recipient)
	if target == nil {
		// Offline recipient: queue mail for delivery at their next login.
		u, err := g.store.FindUserBySafeName(context.Background(), normalizeForLookup(msg.Recipient))
		if err != nil {
			return fmt.Errorf("no such user %q", msg.Recipient)
		}
		return g.store.QueueMail(context.Background(), s.ID, u.ID, content)
	}

	target.Mu.Lock()
	blocked := target.BlockNonFriendDM
	_, isFriend := target.Friends[s.ID]
	_, isBlocked := target.Blocked[s.ID]
	silenced := target.Silenced()
	away := target.AwayMessage
	targetName := target.Name
	target.Mu.Unlock()

	if isBlocked || (blocked && !isFriend && s.ID != session.BotID) {
		enqueue(s, pktUserDMBlocked(targetName))
		return nil
	}
	if silenced {
		enqueue(s, pktTargetSilenced(targetName))
		return nil
	}

	enqueue(target, pktMessage(codec.Message{
		Sender:    s.Name,
		Content:   content,
		Recipient: targetName,
		SenderID:  s.ID,
	}))

	if away != "" {
		enqueue(s, pktMessage(codec.Message{
			Sender:    targetName,
			Content:   away,
			Recipient: s.Name,
			SenderID:  target.ID,
		}))
	}
	return nil
}

func (g *Gateway) handleChannelJoin(s *session.Session, r *codec.Reader) error {
	name, err := r.String()
	if err != nil {
		return err
	}
	realName := g.resolveChannelAlias(s, name)
	if realName == "" {
		enqueue(s, pktChannelKick(name))
		return nil
	}

	c, err := g.channels.Join(realName, s.ID, s.Priv)
	if err != nil {
		enqueue(s, pktChannelKick(name))
		return err
	}

	s.Mu.Lock()
	s.Channels[realName] = struct{}{}
	s.Mu.Unlock()

	enqueue(s, pktChannelJoin(c.Name))
	g.announceChannelInfo(c)
	return nil
}

func (g *Gateway) handleChannelPart(s *session.Session, r *codec.Reader) error {
	name, err := r.String()
	if err != nil {
		return err
	}
	realName := g.resolveChannelAlias(s, name)
	if realName == "" {
		return nil
	}

	c := g.channels.ByRealName(realName)
	if c == nil || !c.Has(s.ID) {
		return nil
	}

	destroyed := g.channels.Leave(realName, s.ID)
	s.Mu.Lock()
	delete(s.Channels, realName)
	s.Mu.Unlock()

	if !destroyed {
		g.announceChannelInfo(c)
	}
	return nil
}

// announceChannelInfo issues a channel-info update to the channel's visible
// audience: its members for instance channels, everyone otherwise.
func (g *Gateway) announceChannelInfo(c *channel.Channel) {
	data := pktChannelInfo(c.Name, c.Topic, c.MemberCount())
	if c.Instance {
		g.enqueueChannel(c, data, -1)
		return
	}
	g.sessions.Broadcast(data, nil)
}

func (g *Gateway) handleFriendAdd(s *session.Session, r *codec.Reader) error {
	targetID, err := r.I32()
	if err != nil {
		return err
	}

	s.Mu.Lock()
	s.Friends[targetID] = struct{}{}
	delete(s.Blocked, targetID) // blocked and friends are mutually exclusive
	s.Mu.Unlock()

	return g.store.AddFriend(context.Background(), s.ID, targetID)
}

func (g *Gateway) handleFriendRemove(s *session.Session, r *codec.Reader) error {
	targetID, err := r.I32()
	if err != nil {
		return err
	}

	s.Mu.Lock()
	delete(s.Friends, targetID)
	s.Mu.Unlock()

	return g.store.RemoveFriend(context.Background(), s.ID, targetID)
}

func (g *Gateway) handleReceiveUpdates(s *session.Session, r *codec.Reader) error {
	filter, err := r.I32()
	if err != nil {
		return err
	}
	s.Mu.Lock()
	s.PresenceFilter = filter
	s.Mu.Unlock()
	return nil
}

func (g *Gateway) handleSetAwayMessage(s *session.Session, r *codec.Reader) error {
	msg, err := r.Message()
	if err != nil {
		return err
	}
	s.Mu.Lock()
	s.AwayMessage = msg.Content
	s.Mu.Unlock()

	if msg.Content == "" {
		enqueue(s, pktNotification("Away message removed."))
	} else {
		enqueue(s, pktNotification("Away message set: "+msg.Content))
	}
	return nil
}

func (g *Gateway) handleToggleBlockNonFriendDMs(s *session.Session, r *codec.Reader) error {
	v, err := r.I32()
	if err != nil {
		return err
	}
	s.Mu.Lock()
	s.BlockNonFriendDM = v == 1
	s.Mu.Unlock()
	return nil
}

func (g *Gateway) handleUserStatsRequest(s *session.Session, r *codec.Reader) error {
	ids, err := r.I32List16()
	if err != nil {
		return err
	}
	for _, id := range ids {
		t := g.sessions.ByID(id)
		if t == nil {
			continue
		}
		var data []byte
		if t.ID == session.BotID {
			data = g.presence.EncodeStats(t)
		} else {
			t.Mu.Lock()
			data = g.presence.EncodeStats(t)
			t.Mu.Unlock()
		}
		enqueue(s, data)
	}
	return nil
}

func (g *Gateway) handleUserPresenceRequest(s *session.Session, r *codec.Reader) error {
	ids, err := r.I32List16()
	if err != nil {
		return err
	}
	for _, id := range ids {
		t := g.sessions.ByID(id)
		if t == nil {
			continue
		}
		var data []byte
		if t.ID == session.BotID {
			data = g.presence.EncodePresence(t)
		} else {
			t.Mu.Lock()
			data = g.presence.EncodePresence(t)
			t.Mu.Unlock()
		}
		enqueue(s, data)
	}
	return nil
}

func (g *Gateway) handleUserPresenceRequestAll(s *session.Session, _ *codec.Reader) error {
	for _, t := range g.sessions.All() {
		if t.ID == s.ID {
			continue
		}
		var data []byte
		if t.ID == session.BotID {
			data = g.presence.EncodePresence(t)
		} else {
			t.Mu.Lock()
			data = g.presence.EncodePresence(t)
			t.Mu.Unlock()
		}
		enqueue(s, data)
	}
	return nil
}
