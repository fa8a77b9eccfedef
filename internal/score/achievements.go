package score

import (
	"context"
	"fmt"
	"log"

	"github.com/sutekina/osu-gulag/internal/codec"
)

// Achievement is one unlockable: a client-facing identity and a predicate
// over a submission. Predicates are evaluated on best submissions on
// ranked/approved maps, for achievements the player doesn't own yet.
type Achievement struct {
	ID   int64
	File string // client medal asset name
	Name string
	Desc string
	Cond func(sub *Submission) bool
}

// ClientString renders the achievement the way the chart's
// achievements-new column expects: file+name+description.
func (a Achievement) ClientString() string {
	return fmt.Sprintf("%s+%s+%s", a.File, a.Name, a.Desc)
}

// defaultAchievements is the fixed predicate set. Combo and pass milestones
// only; anything needing map difficulty data would belong to the external
// calculator's side of the fence.
func defaultAchievements() []Achievement {
	return []Achievement{
		{File: "osu-combo-500", Name: "500 Combo", Desc: "500 big ones! You're moving up in the world!",
			Cond: func(s *Submission) bool { return s.MaxCombo >= 500 }},
		{File: "osu-combo-750", Name: "750 Combo", Desc: "750 notes back to back? Woah.",
			Cond: func(s *Submission) bool { return s.MaxCombo >= 750 }},
		{File: "osu-combo-1000", Name: "1,000 Combo", Desc: "A thousand reasons why you rock at this game.",
			Cond: func(s *Submission) bool { return s.MaxCombo >= 1000 }},
		{File: "osu-combo-2000", Name: "2,000 Combo", Desc: "Nothing can stop you now.",
			Cond: func(s *Submission) bool { return s.MaxCombo >= 2000 }},
		{File: "all-secret-jackpot", Name: "Jackpot", Desc: "Every note perfect.",
			Cond: func(s *Submission) bool { return s.Perfect && s.NMiss == 0 }},
		{File: "all-intro-suddendeath", Name: "Finality", Desc: "High stakes, no regrets.",
			Cond: func(s *Submission) bool { return s.Passed && s.Mods&codec.ModSuddenDeath != 0 }},
		{File: "all-intro-hidden", Name: "Blindsight", Desc: "I can see just perfectly.",
			Cond: func(s *Submission) bool { return s.Passed && s.Mods&codec.ModHidden != 0 }},
		{File: "all-intro-hardrock", Name: "Rock Around The Clock", Desc: "You can't stop the rock.",
			Cond: func(s *Submission) bool { return s.Passed && s.Mods&codec.ModHardRock != 0 }},
		{File: "all-intro-doubletime", Name: "Time And A Half", Desc: "Having a right ol' time.",
			Cond: func(s *Submission) bool { return s.Passed && s.Mods&codec.ModDoubleTime != 0 }},
		{File: "all-intro-flashlight", Name: "Are You Afraid Of The Dark?", Desc: "Harder than it looks.",
			Cond: func(s *Submission) bool { return s.Passed && s.Mods&codec.ModFlashlight != 0 }},
	}
}

// SeedAchievements upserts the fixed set into the store and binds ids onto
// the pipeline's predicate list. Called once at startup.
func (p *Pipeline) SeedAchievements(ctx context.Context) error {
	achs := defaultAchievements()
	for i := range achs {
		id, err := p.store.UpsertAchievement(ctx, achs[i].Name, achs[i].Desc)
		if err != nil {
			return err
		}
		achs[i].ID = id
	}
	p.achievements = achs
	return nil
}

// evaluateAchievements runs every not-yet-owned predicate against the
// submission, persisting and returning the unlocks.
func (p *Pipeline) evaluateAchievements(ctx context.Context, userID int32, sub *Submission) []Achievement {
	owned, err := p.store.OwnedAchievements(ctx, userID)
	if err != nil {
		log.Printf("[score] owned achievements for %d: %v", userID, err)
		return nil
	}

	var unlocked []Achievement
	for _, a := range p.achievements {
		if owned[a.ID] || !a.Cond(sub) {
			continue
		}
		if err := p.store.AwardAchievement(ctx, userID, a.ID); err != nil {
			log.Printf("[score] award %q to %d: %v", a.Name, userID, err)
			continue
		}
		unlocked = append(unlocked, a)
	}
	return unlocked
}
