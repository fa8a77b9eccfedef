package match

import "github.com/sutekina/osu-gulag/internal/codec"

// Join places sessionID into the lowest free slot. password is checked
// unless hostInvoked is set: the host inviting someone in bypasses the
// password gate.
func (m *Match) Join(sessionID int32, password string, hostInvoked bool) (slotIdx int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !hostInvoked && m.Password != "" && m.Password != password {
		return -1, ErrWrongPassword
	}

	for i := range m.Slots {
		if m.Slots[i].Status == codec.SlotOpen {
			team := codec.TeamNeutral
			if m.TeamType == codec.TeamTypeTeamVS || m.TeamType == codec.TeamTypeTagTeamVS {
				team = codec.TeamRed
			}
			m.Slots[i] = Slot{Status: codec.SlotNotReady, Team: team, SessionID: sessionID, Mods: 0}
			if m.HostID == -1 {
				m.HostID = sessionID
			}
			return i, nil
		}
	}
	return -1, ErrNoFreeSlot
}

// Leave resets the slot sessionID occupies. If they were host, host passes
// to the next occupied slot (lowest index). If the room is now empty the
// caller should follow up with Registry.Remove. Returns the slot index that
// was vacated, or -1 if sessionID wasn't in this match.
func (m *Match) Leave(sessionID int32) (vacated int, hostTransferredTo int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.SlotOf(sessionID)
	if idx < 0 {
		return -1, -1
	}
	m.Slots[idx] = emptySlot()

	hostTransferredTo = -1
	if m.HostID == sessionID {
		m.HostID = -1
		for i := range m.Slots {
			if m.Slots[i].occupied() {
				m.HostID = m.Slots[i].SessionID
				hostTransferredTo = m.HostID
				break
			}
		}
	}
	return idx, hostTransferredTo
}

// Ready flips a not-ready or no-map slot to ready.
func (m *Match) Ready(sessionID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.SlotOf(sessionID)
	if idx < 0 {
		return ErrSlotNotFound
	}
	s := &m.Slots[idx]
	if s.Status != codec.SlotNotReady && s.Status != codec.SlotNoMap {
		return ErrNotOccupiedBySelf
	}
	s.Status = codec.SlotReady
	return nil
}

// Unready flips a ready slot back to not-ready.
func (m *Match) Unready(sessionID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.SlotOf(sessionID)
	if idx < 0 {
		return ErrSlotNotFound
	}
	s := &m.Slots[idx]
	if s.Status != codec.SlotReady {
		return ErrNotOccupiedBySelf
	}
	s.Status = codec.SlotNotReady
	return nil
}

// NoBeatmap/HasBeatmap track whether a slot's occupant has the selected map
// locally, toggling between not-ready (has it) and no-map (doesn't).
func (m *Match) NoBeatmap(sessionID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.SlotOf(sessionID)
	if idx < 0 {
		return ErrSlotNotFound
	}
	m.Slots[idx].Status = codec.SlotNoMap
	return nil
}

func (m *Match) HasBeatmap(sessionID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.SlotOf(sessionID)
	if idx < 0 {
		return ErrSlotNotFound
	}
	if m.Slots[idx].Status == codec.SlotNoMap {
		m.Slots[idx].Status = codec.SlotNotReady
	}
	return nil
}

// LockSlot toggles a slot between open and locked. Only the host may lock/unlock.
func (m *Match) LockSlot(sessionID int32, slotIdx int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HostID != sessionID {
		return ErrNotHost
	}
	if slotIdx < 0 || slotIdx >= codec.NumSlots {
		return ErrSlotNotFound
	}
	s := &m.Slots[slotIdx]
	switch s.Status {
	case codec.SlotOpen:
		s.Status = codec.SlotLocked
	case codec.SlotLocked:
		s.Status = codec.SlotOpen
	default:
		// Locking an occupied slot kicks its occupant, matching the
		// client's own "lock = reset and close" behavior for filled slots.
		*s = Slot{Status: codec.SlotLocked, Team: codec.TeamNeutral, SessionID: -1}
	}
	return nil
}

// ChangeSlot moves sessionID's occupied slot to a different open slot.
func (m *Match) ChangeSlot(sessionID int32, targetIdx int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if targetIdx < 0 || targetIdx >= codec.NumSlots {
		return ErrSlotNotFound
	}
	from := m.SlotOf(sessionID)
	if from < 0 {
		return ErrNotOccupiedBySelf
	}
	if m.Slots[targetIdx].Status != codec.SlotOpen {
		return ErrSlotOccupied
	}
	m.Slots[targetIdx] = m.Slots[from]
	m.Slots[from] = emptySlot()
	return nil
}

// ChangeTeam flips sessionID's slot team red<->blue; a no-op outside team modes.
func (m *Match) ChangeTeam(sessionID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.SlotOf(sessionID)
	if idx < 0 {
		return ErrNotOccupiedBySelf
	}
	if m.TeamType != codec.TeamTypeTeamVS && m.TeamType != codec.TeamTypeTagTeamVS {
		return nil
	}
	s := &m.Slots[idx]
	if s.Team == codec.TeamRed {
		s.Team = codec.TeamBlue
	} else {
		s.Team = codec.TeamRed
	}
	return nil
}

// ChangePassword is host-only.
func (m *Match) ChangePassword(sessionID int32, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HostID != sessionID {
		return ErrNotHost
	}
	m.Password = password
	return nil
}

// ChangeSettings applies a host-submitted OsuMatchChangeSettings payload:
// name/password/team-type/win-condition always; a map change additionally
// resets every ready slot to not-ready.
func (m *Match) ChangeSettings(sessionID int32, name, password string, newMap Map, mode uint8, teamType codec.MatchTeamType, winCondition codec.MatchWinCondition) (mapChanged bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HostID != sessionID {
		return false, ErrNotHost
	}

	m.Name = name
	m.Password = password

	if teamType != m.TeamType {
		// Normalize every occupied slot to the new mode's default team:
		// neutral for head-to-head/tag-coop, red for the team modes.
		team := codec.TeamNeutral
		if teamType == codec.TeamTypeTeamVS || teamType == codec.TeamTypeTagTeamVS {
			team = codec.TeamRed
		}
		for i := range m.Slots {
			if m.Slots[i].occupied() {
				m.Slots[i].Team = team
			}
		}
		m.TeamType = teamType
	}

	if winCondition != m.WinCondition {
		// A new win-condition supersedes any pp-scoring override.
		if m.Scrim != nil {
			m.Scrim.PPScoring = false
		}
		m.WinCondition = winCondition
	}

	m.Mode = mode

	mapChanged = newMap.MD5 != m.Map.MD5
	if mapChanged {
		m.Map = newMap
		for i := range m.Slots {
			if m.Slots[i].Status == codec.SlotReady {
				m.Slots[i].Status = codec.SlotNotReady
			}
		}
	}
	return mapChanged, nil
}

// ChangeMods applies a mods-changed event. When freemods is off only the
// host may change mods (room-wide); when freemods is on
// anyone may change their own slot's non-speed mods, but only the host may
// touch speed-changing mods (which always live on the room).
func (m *Match) ChangeMods(sessionID int32, mods int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	isHost := m.HostID == sessionID
	if !m.Freemods {
		if !isHost {
			return ErrNotHost
		}
		m.Mods = mods
		return nil
	}

	if isHost {
		m.Mods = (m.Mods &^ codec.SpeedMods) | (mods & codec.SpeedMods)
	}
	idx := m.SlotOf(sessionID)
	if idx >= 0 {
		m.Slots[idx].Mods = mods & codec.NonSpeedMods
	}
	return nil
}

// ToggleFreemods is host-only. Turning it on moves every non-speed mod
// currently on the room onto every occupied slot; turning it off collapses
// the host slot's non-speed mods onto the room and zeroes every slot's
// mods, so other slots' choices are discarded. Invariant either way:
// in freemods mode room-mods has no non-speed bits set, and in
// non-freemods mode every slot-mods is zero.
func (m *Match) ToggleFreemods(sessionID int32, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HostID != sessionID {
		return ErrNotHost
	}
	if on == m.Freemods {
		return nil
	}

	if on {
		nonSpeed := m.Mods & codec.NonSpeedMods
		m.Mods &= codec.SpeedMods
		for i := range m.Slots {
			if m.Slots[i].occupied() {
				m.Slots[i].Mods = nonSpeed
			}
		}
	} else {
		// Collapse the host's own slot mods onto the room; every other
		// slot's mods are discarded, matching the client's own behavior
		// of the host's settings winning when freemods is switched off.
		hostMods := int32(0)
		if idx := m.SlotOf(m.HostID); idx >= 0 {
			hostMods = m.Slots[idx].Mods
		}
		m.Mods = (m.Mods & codec.SpeedMods) | (hostMods & codec.NonSpeedMods)
		for i := range m.Slots {
			m.Slots[i].Mods = 0
		}
	}
	m.Freemods = on
	return nil
}

// TransferHost is host-only; target must occupy a slot.
func (m *Match) TransferHost(sessionID, target int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HostID != sessionID {
		return ErrNotHost
	}
	if m.SlotOf(target) < 0 {
		return ErrSlotNotFound
	}
	m.HostID = target
	return nil
}

// Start moves every ready/not-ready occupied slot to playing and flips the
// room to in-progress. byTimer marks a timer-fired start, which skips the
// host check; otherwise sessionID must be the host.
func (m *Match) Start(sessionID int32, byTimer bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InProgress {
		return ErrAlreadyInProgress
	}
	if !byTimer && m.HostID != sessionID {
		return ErrNotHost
	}
	for i := range m.Slots {
		s := &m.Slots[i]
		if s.Status == codec.SlotReady || s.Status == codec.SlotNotReady {
			s.Status = codec.SlotPlaying
			s.Loaded = false
			s.Skipped = false
			s.Failed = false
		}
	}
	m.InProgress = true
	return nil
}

// Abort reverts every still-playing slot to not-ready and drops the room
// back to lobby state, without tallying scrim points.
func (m *Match) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.InProgress {
		return ErrNotInProgress
	}
	for i := range m.Slots {
		if m.Slots[i].playing() {
			m.Slots[i].Status = codec.SlotNotReady
		}
	}
	m.InProgress = false
	return nil
}

// LoadComplete marks sessionID's slot as having finished loading the map.
func (m *Match) LoadComplete(sessionID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.SlotOf(sessionID)
	if idx < 0 {
		return ErrSlotNotFound
	}
	m.Slots[idx].Loaded = true
	return nil
}

// AllLoaded reports whether every playing slot has finished loading.
func (m *Match) AllLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Slots {
		if s.playing() && !s.Loaded {
			return false
		}
	}
	return true
}

// SkipRequest marks sessionID as having requested an intro skip.
func (m *Match) SkipRequest(sessionID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.SlotOf(sessionID)
	if idx < 0 {
		return ErrSlotNotFound
	}
	m.Slots[idx].Skipped = true
	return nil
}

// AllSkipped reports whether every playing slot has requested a skip.
func (m *Match) AllSkipped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Slots {
		if s.playing() && !s.Skipped {
			return false
		}
	}
	return true
}

// Complete settles sessionID's slot as complete (passed=true) or failed
// (passed=false), recording result for the scrim overlay's aggregation.
func (m *Match) Complete(sessionID int32, passed bool, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.SlotOf(sessionID)
	if idx < 0 {
		return ErrSlotNotFound
	}
	m.Slots[idx].Status = codec.SlotComplete
	m.Slots[idx].Failed = !passed
	m.Slots[idx].Result = result
	return nil
}

// MatchQuit settles sessionID's slot as quit (left mid-play without a result).
func (m *Match) MatchQuit(sessionID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.SlotOf(sessionID)
	if idx < 0 {
		return ErrSlotNotFound
	}
	m.Slots[idx].Status = codec.SlotQuit
	return nil
}

// AllSettled reports whether every slot that was playing has reported an
// outcome, the precondition for the complete transition back to lobby.
func (m *Match) AllSettled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Slots {
		if s.occupied() && s.Status == codec.SlotPlaying {
			return false
		}
	}
	return true
}

// FinishRound drops the room back to lobby once every slot has settled,
// resetting settled slots to not-ready so the next round can be readied up.
// Returns false if some slot is still playing.
func (m *Match) FinishRound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Slots {
		if s.occupied() && s.Status == codec.SlotPlaying {
			return false
		}
	}
	for i := range m.Slots {
		if m.Slots[i].settled() {
			m.Slots[i].Status = codec.SlotNotReady
			m.Slots[i].Loaded = false
			m.Slots[i].Skipped = false
		}
	}
	m.InProgress = false
	return true
}
