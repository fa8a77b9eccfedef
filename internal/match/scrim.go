package match

import "github.com/sutekina/osu-gulag/internal/codec"

// ScrimState is the scrim overlay: a match flagged scrimming tallies
// per-team points across consecutive completions until one team reaches
// the majority of a best-of-N.
type ScrimState struct {
	BestOf  int
	Points  map[codec.MatchTeam]int
	History []codec.MatchTeam // winner per completed round, empty entry (TeamNeutral) for a tie

	// PPScoring aggregates rounds by performance points instead of the
	// room's wire win-condition. Scrim-only; cleared whenever the host
	// changes the win-condition.
	PPScoring bool
}

// NewScrim validates bestOf (must be odd and in (0, 15]) and returns a
// fresh overlay.
func NewScrim(bestOf int) (*ScrimState, error) {
	if bestOf <= 0 || bestOf >= 16 || bestOf%2 == 0 {
		return nil, ErrInvalidBestOf
	}
	return &ScrimState{
		BestOf: bestOf,
		Points: map[codec.MatchTeam]int{codec.TeamRed: 0, codec.TeamBlue: 0},
	}, nil
}

// StartScrim attaches a validated ScrimState to the match. Validation runs
// before any state mutation so a rejected best-of leaves the match
// untouched.
func (m *Match) StartScrim(bestOf int) error {
	scrim, err := NewScrim(bestOf)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scrim = scrim
	return nil
}

// StopScrim detaches the overlay.
func (m *Match) StopScrim() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scrim = nil
}

// teamAggregate sums the scoring metric over one team's completed
// (non-failed) slots: the scrim's pp override when set, otherwise the
// room's win-condition.
func (m *Match) teamAggregate(team codec.MatchTeam, wc codec.MatchWinCondition) float64 {
	ppScoring := m.Scrim != nil && m.Scrim.PPScoring
	var total float64
	for _, s := range m.Slots {
		if s.Team != team || !s.occupied() || s.Failed {
			continue
		}
		switch {
		case ppScoring:
			total += s.Result.PP
		case wc == codec.WinAccuracy:
			total += s.Result.Accuracy
		case wc == codec.WinCombo:
			total += float64(s.Result.Combo)
		default: // WinScore, WinScoreV2
			total += float64(s.Result.Score)
		}
	}
	return total
}

// SetPPScoring toggles performance-point aggregation for scrim rounds in
// place of the wire win-condition. A no-op when no scrim is active.
func (m *Match) SetPPScoring(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Scrim != nil {
		m.Scrim.PPScoring = on
	}
}

// TallyRound computes the winner of the just-finished round from the
// current slot results and records a point. It must be called after
// FinishRound's settlement check passes but before FinishRound resets slot
// state, so call it from Complete's caller prior to FinishRound. Returns
// the winning team (TeamNeutral on a tie, which awards no point).
func (m *Match) TallyRound() codec.MatchTeam {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Scrim == nil {
		return codec.TeamNeutral
	}

	red := m.teamAggregate(codec.TeamRed, m.WinCondition)
	blue := m.teamAggregate(codec.TeamBlue, m.WinCondition)

	winner := codec.TeamNeutral
	switch {
	case red > blue:
		winner = codec.TeamRed
	case blue > red:
		winner = codec.TeamBlue
	}
	if winner != codec.TeamNeutral {
		m.Scrim.Points[winner]++
	}
	m.Scrim.History = append(m.Scrim.History, winner)
	return winner
}

// ScrimWinner reports the team that has reached the majority of BestOf, or
// TeamNeutral if the scrim is still undecided.
func (m *Match) ScrimWinner() codec.MatchTeam {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Scrim == nil {
		return codec.TeamNeutral
	}
	target := m.Scrim.BestOf/2 + 1
	if m.Scrim.Points[codec.TeamRed] >= target {
		return codec.TeamRed
	}
	if m.Scrim.Points[codec.TeamBlue] >= target {
		return codec.TeamBlue
	}
	return codec.TeamNeutral
}

// Rematch rolls back the most recently tallied point; winner history is
// kept for exactly this.
func (m *Match) Rematch() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Scrim == nil || len(m.Scrim.History) == 0 {
		return nil
	}
	last := m.Scrim.History[len(m.Scrim.History)-1]
	m.Scrim.History = m.Scrim.History[:len(m.Scrim.History)-1]
	if last != codec.TeamNeutral {
		m.Scrim.Points[last]--
	}
	return nil
}
