package match

import "github.com/sutekina/osu-gulag/internal/codec"

// Slot is one of the 16 fixed positions inside a Match. SessionID is a
// non-owning reference, resolved through the Session Registry at use.
type Slot struct {
	Status    codec.SlotStatus
	Team      codec.MatchTeam
	SessionID int32 // -1 when unoccupied
	Mods      int32
	Loaded    bool
	Skipped   bool

	// Failed distinguishes a failed play from a completed one once Status
	// has settled back to SlotComplete -- the wire slot-status bitset has
	// no separate "failed" bit (it mirrors the client's own 8-state enum),
	// so this internal-only flag is what scrim scoring and the state
	// machine's completion-aggregation check against.
	Failed bool

	// Result is the most recently reported scoreframe summary for this
	// slot's round, consumed by the scrim overlay's per-team aggregation.
	Result Result
}

// Result is the subset of a completed play's outcome the scrim overlay
// needs to compute a team's aggregate under any of the four win-conditions.
type Result struct {
	Score    int64
	Accuracy float64
	Combo    int32
	PP       float64
}

func emptySlot() Slot {
	return Slot{Status: codec.SlotOpen, Team: codec.TeamNeutral, SessionID: -1}
}

func (s Slot) occupied() bool {
	return s.Status&codec.SlotHasPlayer != 0
}

// playing reports whether the slot is mid-play (loaded and not yet settled).
func (s Slot) playing() bool {
	return s.Status&codec.SlotPlaying != 0
}

// settled reports whether an in-progress slot has reported an outcome:
// complete (pass or fail, distinguished by Failed) or quit.
func (s Slot) settled() bool {
	return s.Status&(codec.SlotComplete|codec.SlotQuit) != 0
}
