package gateway

import (
	"fmt"

	"github.com/sutekina/osu-gulag/internal/codec"
	"github.com/sutekina/osu-gulag/internal/session"
)

// specChannelName is the real name of a host's instanced spectator channel.
func specChannelName(hostID int32) string {
	return fmt.Sprintf("#spec_%d", hostID)
}

func (g *Gateway) handleStartSpectating(s *session.Session, r *codec.Reader) error {
	targetID, err := r.I32()
	if err != nil {
		return err
	}

	host := g.sessions.ByID(targetID)
	if host == nil {
		return fmt.Errorf("%s tried to spectate nonexistent id %d", s.Name, targetID)
	}

	s.Mu.Lock()
	current := s.SpectatorOf
	s.Mu.Unlock()
	if current >= 0 {
		g.stopSpectating(s)
	}

	// The host's spectator channel is created when its first member joins.
	c := g.channels.CreateInstance("#spectator", specChannelName(host.ID), host.Name+"'s spectator channel", 0, 0)
	if _, err := g.channels.Join(c.RealName, s.ID, s.Priv); err != nil {
		return err
	}
	g.channels.Join(c.RealName, host.ID, host.Priv)

	s.Mu.Lock()
	s.SpectatorOf = host.ID
	s.Channels[c.RealName] = struct{}{}
	s.Mu.Unlock()

	host.Mu.Lock()
	host.Spectators[s.ID] = struct{}{}
	host.Channels[c.RealName] = struct{}{}
	host.Enqueue(pktSpectatorJoined(s.ID))
	fellows := make([]int32, 0, len(host.Spectators))
	for id := range host.Spectators {
		if id != s.ID {
			fellows = append(fellows, id)
		}
	}
	host.Mu.Unlock()

	joined := pktFellowSpectatorJoined(s.ID)
	for _, id := range fellows {
		if f := g.sessions.ByID(id); f != nil {
			enqueue(f, joined)
			enqueue(s, pktFellowSpectatorJoined(id))
		}
	}

	enqueue(s, pktChannelJoin("#spectator"))
	return nil
}

// stopSpectating unlinks s from its host and tears the spectator channel
// down if s was the last watcher.
func (g *Gateway) stopSpectating(s *session.Session) {
	s.Mu.Lock()
	hostID := s.SpectatorOf
	s.SpectatorOf = -1
	s.Mu.Unlock()
	if hostID < 0 {
		return
	}

	chanName := specChannelName(hostID)
	host := g.sessions.ByID(hostID)

	g.channels.Leave(chanName, s.ID)
	s.Mu.Lock()
	delete(s.Channels, chanName)
	s.Mu.Unlock()

	if host == nil {
		return
	}

	host.Mu.Lock()
	delete(host.Spectators, s.ID)
	empty := len(host.Spectators) == 0
	host.Enqueue(pktSpectatorLeft(s.ID))
	fellows := make([]int32, 0, len(host.Spectators))
	for id := range host.Spectators {
		fellows = append(fellows, id)
	}
	host.Mu.Unlock()

	if empty {
		// Last spectator gone: the host leaves too and the instance
		// channel is destroyed.
		g.channels.Leave(chanName, host.ID)
		host.Mu.Lock()
		delete(host.Channels, chanName)
		host.Mu.Unlock()
	} else {
		left := pktFellowSpectatorLeft(s.ID)
		for _, id := range fellows {
			if f := g.sessions.ByID(id); f != nil {
				enqueue(f, left)
			}
		}
	}
}

func (g *Gateway) handleStopSpectating(s *session.Session, _ *codec.Reader) error {
	s.Mu.Lock()
	hostID := s.SpectatorOf
	s.Mu.Unlock()
	if hostID < 0 {
		return fmt.Errorf("%s sent stop-spectating while not spectating", s.Name)
	}
	g.stopSpectating(s)
	return nil
}

func (g *Gateway) handleSpectateFrames(s *session.Session, r *codec.Reader) error {
	// The replay fragment is relayed verbatim; the whole payload is the
	// opaque frame bundle.
	g.presence.RelayFrames(s, r.Rest())
	return nil
}

func (g *Gateway) handleCantSpectate(s *session.Session, _ *codec.Reader) error {
	s.Mu.Lock()
	hostID := s.SpectatorOf
	s.Mu.Unlock()
	if hostID < 0 {
		return fmt.Errorf("%s sent cant-spectate while not spectating", s.Name)
	}

	host := g.sessions.ByID(hostID)
	if host == nil {
		return nil
	}

	data := pktSpectatorCantSpectate(s.ID)
	host.Mu.Lock()
	host.Enqueue(data)
	fellows := make([]int32, 0, len(host.Spectators))
	for id := range host.Spectators {
		fellows = append(fellows, id)
	}
	host.Mu.Unlock()

	for _, id := range fellows {
		if f := g.sessions.ByID(id); f != nil {
			enqueue(f, data)
		}
	}
	return nil
}
