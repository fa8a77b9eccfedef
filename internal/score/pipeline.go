package score

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sutekina/osu-gulag/internal/channel"
	"github.com/sutekina/osu-gulag/internal/codec"
	"github.com/sutekina/osu-gulag/internal/presence"
	"github.com/sutekina/osu-gulag/internal/session"
	"github.com/sutekina/osu-gulag/internal/store"
)

// Responses the client understands as terminal submission outcomes.
// RespBanned is returned when this very submission triggered an automatic
// restriction, so the client stops retrying and shows the account notice.
var (
	RespError     = []byte("error: no")
	RespNoBeatmap = []byte("error: beatmap")
	RespBanned    = []byte("error: ban")
)

// Calculator computes performance points for a submission against its map.
// The core never derives pp from raw map data itself; this is the seam for
// the external calculator process.
type Calculator interface {
	Calculate(ctx context.Context, sub *Submission, m store.Map) (float64, error)
}

// CalculatorFunc adapts a plain function to the Calculator interface.
type CalculatorFunc func(ctx context.Context, sub *Submission, m store.Map) (float64, error)

func (f CalculatorFunc) Calculate(ctx context.Context, sub *Submission, m store.Map) (float64, error) {
	return f(ctx, sub, m)
}

// PPCaps indexes the autoban threshold by mode and flashlight usage.
type PPCaps struct {
	Vanilla    float64
	Flashlight float64
	Relax      float64
}

// Cap returns the threshold for a submission's mods.
func (c PPCaps) Cap(mods int32) float64 {
	if codec.RelaxOrAutopilot(mods) {
		return c.Relax
	}
	if mods&codec.ModFlashlight != 0 {
		return c.Flashlight
	}
	return c.Vanilla
}

// Pipeline is the score-submission pipeline's process-scoped context.
type Pipeline struct {
	store    *store.Store
	sessions *session.Registry
	presence *presence.Broadcaster
	channels *channel.Registry
	calc     Calculator

	replayDir string
	domain    string
	ppCaps    PPCaps

	achievements []Achievement
}

// NewPipeline wires a Pipeline. replayDir is created on first use; domain
// feeds the chart and announcement URLs.
func NewPipeline(st *store.Store, sessions *session.Registry, pr *presence.Broadcaster,
	channels *channel.Registry, calc Calculator, replayDir, domain string, caps PPCaps) *Pipeline {
	return &Pipeline{
		store:     st,
		sessions:  sessions,
		presence:  pr,
		channels:  channels,
		calc:      calc,
		replayDir: replayDir,
		domain:    domain,
		ppCaps:    caps,
	}
}

// SubmitRequest carries the multipart form fields of one submission.
type SubmitRequest struct {
	DataB64     string // encrypted score payload
	IVB64       string // initialization vector
	OsuVersion  string // client build string, keys the cipher
	PasswordMD5 string // re-authentication
	TimeElapsed string // st (passed) / ft (failed) in milliseconds
	ClientFlags int32
	Replay      []byte // raw replay blob, empty if absent
}

// Submit runs the full pipeline and returns the response body the client
// expects. The submitter need not be online: without a live session the
// in-memory stats refresh and stats broadcast are skipped.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) ([]byte, error) {
	// 1. Decrypt and parse.
	plaintext, err := decryptPayload(req.DataB64, req.IVB64, req.OsuVersion)
	if err != nil {
		return RespError, nil
	}
	sub, err := parseSubmission(plaintext)
	if err != nil {
		return RespError, nil
	}

	if ms, err := strconv.ParseInt(req.TimeElapsed, 10, 64); err == nil {
		sub.TimeElapsedMS = ms
	} else {
		return RespError, nil
	}
	sub.ClientFlags = req.ClientFlags

	// 2. Authenticate the submitter.
	user, err := p.store.FindUserBySafeName(ctx, normalizeName(sub.PlayerName))
	if err != nil {
		return RespError, nil
	}
	if !p.sessions.CheckPassword(user.PasswordHash, req.PasswordMD5) {
		return RespError, nil
	}
	sess := p.sessions.ByID(user.ID) // may be nil: offline submitters are still scored

	// 3. Bind the map.
	m, err := p.store.FindMapByMD5(ctx, sub.MapMD5)
	if errors.Is(err, store.ErrNotFound) {
		return RespNoBeatmap, nil
	}
	if err != nil {
		return nil, err
	}
	if m.Status == store.MapStatusPending {
		return RespError, nil
	}

	// 4. Deduplicate by exact online-checksum match.
	if _, err := p.store.FindByChecksum(ctx, sub.Mode, sub.OnlineChecksum); err == nil {
		log.Printf("[score] duplicate submission from %s (checksum %s)", user.Name, sub.OnlineChecksum)
		return RespError, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if sub.PP == 0 && p.calc != nil {
		if pp, err := p.calc.Calculate(ctx, sub, m); err == nil {
			sub.PP = pp
		}
	}

	// 5. Classify against the previous personal best.
	byPP := codec.RelaxOrAutopilot(sub.Mods)
	var prevBest *store.Score
	if pb, err := p.store.FindBest(ctx, user.ID, sub.MapMD5, sub.Mode); err == nil {
		prevBest = &pb
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	status := store.StatusFailed
	if sub.Passed {
		status = store.StatusSubmitted
		if prevBest == nil || beats(sub, prevBest, byPP) {
			status = store.StatusBest
		}
	}

	// 6. PP-cap autoban for non-whitelisted players.
	restricted := user.Restricted()
	autobanned := false
	if !restricted && user.Priv&store.PrivWhitelisted == 0 {
		if cap := p.ppCaps.Cap(sub.Mods); cap > 0 && sub.PP > cap {
			log.Printf("[score] restricting %s: %.2fpp exceeds cap %.2f", user.Name, sub.PP, cap)
			p.restrict(ctx, user.ID, fmt.Sprintf("autoban: %.2fpp over cap", sub.PP))
			restricted = true
			autobanned = true
		}
	}

	// Map-ranking context is captured before the insert so the chart's
	// "before" column and the previous #1 reflect the pre-submission world.
	var prevRank int64
	if prevBest != nil {
		prevRank, _ = p.store.RankOnMap(ctx, sub.MapMD5, sub.Mode, prevBest.Score, prevBest.PP, byPP)
	}
	var prevNumberOne *store.Score
	if n1, err := p.store.PreviousNumberOne(ctx, sub.MapMD5, sub.Mode, byPP); err == nil {
		prevNumberOne = &n1
	}

	if status == store.StatusBest && prevBest != nil {
		if err := p.store.DemoteToSubmitted(ctx, prevBest.ID); err != nil {
			return nil, err
		}
	}

	// 7. Insert the row.
	row, err := p.store.InsertScore(ctx, store.Score{
		MapMD5:         sub.MapMD5,
		UserID:         user.ID,
		Score:          sub.Score,
		PP:             sub.PP,
		Accuracy:       sub.Accuracy,
		MaxCombo:       sub.MaxCombo,
		Mods:           sub.Mods,
		N300:           sub.N300,
		N100:           sub.N100,
		N50:            sub.N50,
		NGeki:          sub.NGeki,
		NKatu:          sub.NKatu,
		NMiss:          sub.NMiss,
		Grade:          sub.Grade,
		Status:         status,
		Mode:           sub.Mode,
		Passed:         sub.Passed,
		Perfect:        sub.Perfect,
		TimeElapsedMS:  sub.TimeElapsedMS,
		ClientFlags:    sub.ClientFlags,
		OnlineChecksum: sub.OnlineChecksum,
	})
	if err != nil {
		return nil, err
	}

	// 8. Replay handling: passed plays must carry one.
	if sub.Passed {
		if len(req.Replay) == 0 || string(req.Replay) == "\r\n" {
			if !restricted {
				log.Printf("[score] restricting %s: submitted a passed score with no replay", user.Name)
				p.restrict(ctx, user.ID, "submitted score with no replay")
				restricted = true
				autobanned = true
			}
		} else if err := p.writeReplay(row.ID, req.Replay); err != nil {
			log.Printf("[score] failed to persist replay for score %d: %v", row.ID, err)
		} else {
			_ = p.store.MarkReplay(ctx, row.ID, true)
		}
	}

	// 9. Stats re-aggregation.
	prevStats, err := p.store.GetStats(ctx, user.ID, sub.Mode)
	if err != nil {
		return nil, err
	}
	prevGlobalRank, _ := p.store.CountUnrestrictedWithGreaterPP(ctx, sub.Mode, prevStats.PP)
	prevGlobalRank++

	maxCombo := int32(0)
	if sub.Passed && m.Status != store.MapStatusPending {
		maxCombo = sub.MaxCombo
	}
	if err := p.store.ApplyStatsDelta(ctx, user.ID, sub.Mode, sub.TimeElapsedMS/1000, sub.Score, maxCombo); err != nil {
		return nil, err
	}

	newStats := prevStats
	newStats.Playtime += sub.TimeElapsedMS / 1000
	newStats.Plays++
	newStats.TotalScore += sub.Score
	if maxCombo > newStats.MaxCombo {
		newStats.MaxCombo = maxCombo
	}

	if status == store.StatusBest && m.RankedOrApproved() {
		additive := sub.Score
		if prevBest != nil {
			additive -= prevBest.Score
		}
		newStats.RankedScore += additive

		top, err := p.store.TopScoresForWeighting(ctx, user.ID, sub.Mode, 100)
		if err != nil {
			return nil, err
		}
		n, err := p.store.CountRankedScores(ctx, user.ID, sub.Mode)
		if err != nil {
			return nil, err
		}
		newStats.Accuracy = WeightedAccuracy(top)
		newStats.PP = WeightedPP(top, n)

		if err := p.store.SetRankedAggregate(ctx, user.ID, sub.Mode, newStats.RankedScore, newStats.PP, newStats.Accuracy); err != nil {
			return nil, err
		}

		prevGrade := ""
		if prevBest != nil && gradeAtLeastA(prevBest.Grade) {
			prevGrade = prevBest.Grade
		}
		if err := p.store.BumpGrade(ctx, user.ID, sub.Mode, sub.Grade, prevGrade); err != nil {
			return nil, err
		}
	}

	newGlobalRank, _ := p.store.CountUnrestrictedWithGreaterPP(ctx, sub.Mode, newStats.PP)
	newGlobalRank++

	// 10. Map counters.
	if !restricted {
		if err := p.store.IncrementMapPlays(ctx, sub.MapMD5, sub.Passed); err != nil {
			return nil, err
		}
		m.Plays++
		if sub.Passed {
			m.Passes++
		}
	}

	// 11. Refresh the in-memory session stats and broadcast them.
	if sess != nil {
		sess.Mu.Lock()
		sess.Stats[sub.Mode] = &session.ModeStats{
			RankedScore: newStats.RankedScore,
			TotalScore:  newStats.TotalScore,
			PP:          newStats.PP,
			Accuracy:    newStats.Accuracy,
			Plays:       newStats.Plays,
			Playtime:    newStats.Playtime,
			MaxCombo:    newStats.MaxCombo,
			Rank:        newGlobalRank,
		}
		sess.Mu.Unlock()
		if !restricted {
			p.presence.BroadcastStats(sess)
		}
	}

	// 12. Rank-1 announcement.
	var newRank int64
	if status == store.StatusBest {
		newRank, _ = p.store.RankOnMap(ctx, sub.MapMD5, sub.Mode, sub.Score, sub.PP, byPP)
		if newRank == 1 && !restricted {
			p.announceNumberOne(ctx, user, sub, m, prevNumberOne, byPP)
		}
	}

	// 13. Achievements and the chart response.
	var unlocked []Achievement
	if status == store.StatusBest && m.RankedOrApproved() && !restricted {
		unlocked = p.evaluateAchievements(ctx, user.ID, sub)
	}

	if autobanned {
		return RespBanned, nil
	}
	if !sub.Passed || byPP {
		// Failed plays and modes whose charts the client can't display get
		// the bare completion sentinel.
		return RespError, nil
	}

	chart := buildChart(chartInput{
		Map:           m,
		ScoreID:       row.ID,
		Domain:        p.domain,
		UserID:        user.ID,
		Sub:           sub,
		PrevBest:      prevBest,
		PrevMapRank:   prevRank,
		NewMapRank:    newRank,
		PrevStats:     prevStats,
		NewStats:      newStats,
		PrevGlobal:    prevGlobalRank,
		NewGlobal:     newGlobalRank,
		Unlocked:      unlocked,
	})
	log.Printf("[score] %s submitted %d on %s (status %d)", user.Name, sub.Score, m.Title, status)
	return chart, nil
}

// beats applies the ranking metric: performance-points for autoplay/relax
// mods, raw score otherwise.
func beats(sub *Submission, prev *store.Score, byPP bool) bool {
	if byPP {
		return sub.PP > prev.PP
	}
	return sub.Score > prev.Score
}

func gradeAtLeastA(grade string) bool {
	switch grade {
	case "A", "S", "SH", "X", "XH":
		return true
	}
	return false
}

func (p *Pipeline) restrict(ctx context.Context, userID int32, reason string) {
	if err := p.store.Restrict(ctx, userID); err != nil {
		log.Printf("[score] failed to restrict %d: %v", userID, err)
		return
	}
	_ = p.store.AuditLog(ctx, userID, "auto_restrict", reason)
}

func (p *Pipeline) writeReplay(scoreID int64, blob []byte) error {
	if err := os.MkdirAll(p.replayDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.replayDir, fmt.Sprintf("%d.osr", scoreID)), blob, 0o644)
}

// announceNumberOne posts the new global #1 to the announce channel as an
// action message from the submitter, echoed back to the submitter too.
func (p *Pipeline) announceNumberOne(ctx context.Context, user store.User, sub *Submission,
	m store.Map, prev *store.Score, byPP bool) {
	c := p.channels.ByRealName("#announce")
	if c == nil {
		return
	}

	embed := fmt.Sprintf("[https://%s/b/%d %s - %s [%s]]", p.domain, m.MapID, m.Artist, m.Title, m.Version)
	performance := fmt.Sprintf("%d score", sub.Score)
	if byPP {
		performance = fmt.Sprintf("%.2fpp", sub.PP)
	}
	text := fmt.Sprintf("\x01ACTION achieved #1 on %s with %.2f%% for %s.", embed, sub.Accuracy, performance)

	if prev != nil && prev.UserID != user.ID {
		if prevUser, err := p.store.FindUserByID(ctx, prev.UserID); err == nil {
			text += fmt.Sprintf(" (Previous #1: [https://%s/u/%d %s])", p.domain, prevUser.ID, prevUser.Name)
		}
	}

	data := encodeAnnouncement(user.Name, user.ID, c.Name, text)
	for _, id := range c.Members() {
		if t := p.sessions.ByID(id); t != nil {
			t.Mu.Lock()
			t.Enqueue(data)
			t.Mu.Unlock()
		}
	}

	if sess := p.sessions.ByID(user.ID); sess != nil {
		sess.Mu.Lock()
		sess.Enqueue(encodeNotification(fmt.Sprintf("You achieved #1! (%s)", performance)))
		if !c.Has(user.ID) {
			sess.Enqueue(data) // self-echo even when not a channel member
		}
		sess.Mu.Unlock()
	}
}

func encodeAnnouncement(sender string, senderID int32, channelName, text string) []byte {
	w := codec.NewWriter()
	w.WriteMessage(codec.Message{Sender: sender, Content: text, Recipient: channelName, SenderID: senderID})
	return codec.EncodePacket(codec.ChoSendMessage, w.Bytes())
}

func encodeNotification(msg string) []byte {
	w := codec.NewWriter()
	w.WriteString(msg)
	return codec.EncodePacket(codec.ChoNotification, w.Bytes())
}

// WeightedAccuracy is the 0.95-geometric-weighted mean over the top 100
// accuracies (scores ordered by pp descending).
func WeightedAccuracy(top []store.Score) float64 {
	if len(top) == 0 {
		return 0
	}
	var sum, weightSum float64
	for i, sc := range top {
		w := math.Pow(0.95, float64(i))
		sum += sc.Accuracy * w
		weightSum += w
	}
	return sum / weightSum
}

// WeightedPP is the 0.95-geometric-weighted sum of performance points plus
// the logarithmic bonus 416.6667 x (1 - 0.9994^N), N being the player's
// total ranked best-score count.
func WeightedPP(top []store.Score, totalRanked int64) float64 {
	var sum float64
	for i, sc := range top {
		sum += sc.PP * math.Pow(0.95, float64(i))
	}
	bonus := 416.6667 * (1 - math.Pow(0.9994, float64(totalRanked)))
	return sum + bonus
}

func normalizeName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c == ' ':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
