package score

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sutekina/osu-gulag/internal/channel"
	"github.com/sutekina/osu-gulag/internal/codec"
	"github.com/sutekina/osu-gulag/internal/presence"
	"github.com/sutekina/osu-gulag/internal/session"
	"github.com/sutekina/osu-gulag/internal/store"
)

const testOsuVersion = "20210901"

type fixture struct {
	store    *store.Store
	sessions *session.Registry
	channels *channel.Registry
	pipeline *Pipeline
	pp       float64 // what the stub calculator prices every play at
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sessions := session.NewRegistry(st, time.Minute)
	channels := channel.NewRegistry()
	channels.SeedStatic("#announce", "Score announcements.", 0, store.PrivStaff, true)
	pr := presence.NewBroadcaster(sessions)

	f := &fixture{store: st, sessions: sessions, channels: channels}
	calc := CalculatorFunc(func(context.Context, *Submission, store.Map) (float64, error) {
		return f.pp, nil
	})
	f.pipeline = NewPipeline(st, sessions, pr, channels, calc,
		filepath.Join(t.TempDir(), "osr"), "osu.local",
		PPCaps{Vanilla: 700, Flashlight: 800, Relax: 1200})
	if err := f.pipeline.SeedAchievements(context.Background()); err != nil {
		t.Fatalf("SeedAchievements() error: %v", err)
	}
	return f
}

func (f *fixture) seedUser(t *testing.T, name, passwordMD5 string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(passwordMD5), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}
	u, err := f.store.CreateUser(context.Background(), name, strings.ToLower(name), "", string(hash))
	if err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	if err := f.store.EnsureStatsRows(context.Background(), u.ID, []uint8{0, 1, 2, 3}); err != nil {
		t.Fatalf("EnsureStatsRows() error: %v", err)
	}
	return u
}

func (f *fixture) seedMap(t *testing.T, md5 string, status int) store.Map {
	t.Helper()
	m := store.Map{MD5: md5, MapID: 777, SetID: 88, Artist: "artist", Title: "title", Version: "Hard", Creator: "maker", Status: status}
	if err := f.store.UpsertMap(context.Background(), m); err != nil {
		t.Fatalf("UpsertMap() error: %v", err)
	}
	return m
}

const testMapMD5 = "d41d8cd98f00b204e9800998ecf8427e"

func makeSubmission(player string, score int64, checksum string) *Submission {
	sub := &Submission{
		MapMD5:         testMapMD5,
		PlayerName:     player,
		OnlineChecksum: checksum,
		N300:           200, N100: 10, N50: 2, NMiss: 1,
		Score:    score,
		MaxCombo: 350,
		Grade:    "S",
		Passed:   true,
		Mode:     0,
	}
	sub.Accuracy = computeAccuracy(sub)
	return sub
}

func (f *fixture) submit(t *testing.T, sub *Submission, passwordMD5 string) []byte {
	t.Helper()
	dataB64, ivB64, err := encryptPayload(sub.Serialize(), []byte("0123456789abcdef"), testOsuVersion)
	if err != nil {
		t.Fatalf("encryptPayload() error: %v", err)
	}
	resp, err := f.pipeline.Submit(context.Background(), SubmitRequest{
		DataB64:     dataB64,
		IVB64:       ivB64,
		OsuVersion:  testOsuVersion,
		PasswordMD5: passwordMD5,
		TimeElapsed: "60000",
		Replay:      []byte("replay-blob"),
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	return resp
}

func TestDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("line one\nline two\nline three")
	dataB64, ivB64, err := encryptPayload(plaintext, []byte("iv-material"), testOsuVersion)
	if err != nil {
		t.Fatalf("encryptPayload() error: %v", err)
	}
	got, err := decryptPayload(dataB64, ivB64, testOsuVersion)
	if err != nil {
		t.Fatalf("decryptPayload() error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	// A different version string derives a different keystream.
	wrong, err := decryptPayload(dataB64, ivB64, "20190101")
	if err != nil {
		t.Fatalf("decryptPayload() error: %v", err)
	}
	if bytes.Equal(wrong, plaintext) {
		t.Fatalf("wrong key must not decrypt")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	if _, err := decryptPayload("!!!not-base64!!!", "aXY=", testOsuVersion); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
	if _, err := decryptPayload("", "", testOsuVersion); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestParseSubmissionRoundTrip(t *testing.T) {
	sub := makeSubmission("Alice", 123456, "chk")
	parsed, err := parseSubmission(sub.Serialize())
	if err != nil {
		t.Fatalf("parseSubmission() error: %v", err)
	}
	if parsed.PlayerName != "Alice" || parsed.Score != 123456 || parsed.Grade != "S" || !parsed.Passed {
		t.Fatalf("got %+v", parsed)
	}
	if parsed.N300 != 200 || parsed.NMiss != 1 {
		t.Fatalf("judgement counts lost: %+v", parsed)
	}
}

func TestParseSubmissionRejectsTruncated(t *testing.T) {
	if _, err := parseSubmission([]byte("only\nthree\nlines")); err == nil {
		t.Fatalf("expected ErrBadPayload")
	}
}

func TestMalformedPayloadReturnsErrorNo(t *testing.T) {
	f := newFixture(t)
	resp, err := f.pipeline.Submit(context.Background(), SubmitRequest{
		DataB64: "not base64", IVB64: "also not", OsuVersion: testOsuVersion,
		PasswordMD5: strings.Repeat("0", 32), TimeElapsed: "1000",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if !bytes.Equal(resp, RespError) {
		t.Fatalf("got %q, want error: no", resp)
	}
}

func TestUnknownMapReturnsErrorBeatmap(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "5f4dcc3b5aa765d61d8327deb882cf99")

	sub := makeSubmission("alice", 1000, "chk-nomap")
	resp := f.submit(t, sub, "5f4dcc3b5aa765d61d8327deb882cf99")
	if !bytes.Equal(resp, RespNoBeatmap) {
		t.Fatalf("got %q, want error: beatmap", resp)
	}
}

func TestDuplicateChecksumRejectedOnce(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "5f4dcc3b5aa765d61d8327deb882cf99")
	f.seedMap(t, testMapMD5, store.MapStatusRanked)

	sub := makeSubmission("alice", 1000, "C")
	first := f.submit(t, sub, "5f4dcc3b5aa765d61d8327deb882cf99")
	if bytes.Equal(first, RespError) {
		t.Fatalf("first submission should produce a chart, got error: no")
	}

	second := f.submit(t, sub, "5f4dcc3b5aa765d61d8327deb882cf99")
	if !bytes.Equal(second, RespError) {
		t.Fatalf("duplicate got %q, want exactly error: no", second)
	}

	// And no second row was created.
	found, err := f.store.FindByChecksum(context.Background(), 0, "C")
	if err != nil {
		t.Fatalf("FindByChecksum() error: %v", err)
	}
	best, err := f.store.FindBest(context.Background(), found.UserID, testMapMD5, 0)
	if err != nil {
		t.Fatalf("FindBest() error: %v", err)
	}
	if best.ID != found.ID {
		t.Fatalf("expected the single row to be the best row")
	}
}

func TestBestPromotesAndDemotesPriorBest(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "paula", "5f4dcc3b5aa765d61d8327deb882cf99")
	f.seedMap(t, testMapMD5, store.MapStatusRanked)
	ctx := context.Background()

	f.pp = 100
	first := makeSubmission("paula", 100000, "first")
	f.submit(t, first, "5f4dcc3b5aa765d61d8327deb882cf99")

	prior, err := f.store.FindBest(ctx, u.ID, testMapMD5, 0)
	if err != nil {
		t.Fatalf("FindBest() error: %v", err)
	}
	if prior.PP != 100 {
		t.Fatalf("prior pp = %v, want 100", prior.PP)
	}

	f.pp = 120
	second := makeSubmission("paula", 200000, "second")
	f.submit(t, second, "5f4dcc3b5aa765d61d8327deb882cf99")

	// Prior best demoted, new row is the sole best.
	demoted, err := f.store.FindByChecksum(ctx, 0, "first")
	if err != nil {
		t.Fatalf("FindByChecksum(first) error: %v", err)
	}
	if demoted.Status != store.StatusSubmitted {
		t.Fatalf("prior best status = %d, want submitted", demoted.Status)
	}
	best, err := f.store.FindBest(ctx, u.ID, testMapMD5, 0)
	if err != nil {
		t.Fatalf("FindBest() error: %v", err)
	}
	if best.OnlineChecksum != "second" || best.PP != 120 {
		t.Fatalf("got best %+v", best)
	}

	// Weighted pp recomputed from the single top score plus the log bonus.
	stats, err := f.store.GetStats(ctx, u.ID, 0)
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	wantPP := 120 + 416.6667*(1-math.Pow(0.9994, 1))
	if math.Abs(stats.PP-wantPP) > 1e-6 {
		t.Fatalf("weighted pp = %v, want %v", stats.PP, wantPP)
	}

	// Global rank = 1 + unrestricted users with strictly greater pp.
	count, err := f.store.CountUnrestrictedWithGreaterPP(ctx, 0, stats.PP)
	if err != nil {
		t.Fatalf("CountUnrestrictedWithGreaterPP() error: %v", err)
	}
	if count != 0 {
		t.Fatalf("nobody should outrank the only ranked player, got %d", count)
	}
}

func TestPassedNotBetterStaysSubmitted(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "sam", "5f4dcc3b5aa765d61d8327deb882cf99")
	f.seedMap(t, testMapMD5, store.MapStatusRanked)
	ctx := context.Background()

	f.submit(t, makeSubmission("sam", 50000, "high"), "5f4dcc3b5aa765d61d8327deb882cf99")
	f.submit(t, makeSubmission("sam", 10000, "low"), "5f4dcc3b5aa765d61d8327deb882cf99")

	best, err := f.store.FindBest(ctx, u.ID, testMapMD5, 0)
	if err != nil {
		t.Fatalf("FindBest() error: %v", err)
	}
	if best.OnlineChecksum != "high" {
		t.Fatalf("lower score must not displace the best")
	}
	lower, _ := f.store.FindByChecksum(ctx, 0, "low")
	if lower.Status != store.StatusSubmitted {
		t.Fatalf("lower score status = %d, want submitted", lower.Status)
	}
}

func TestFailedPlayReturnsErrorNoAndCountsPlay(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "tina", "5f4dcc3b5aa765d61d8327deb882cf99")
	f.seedMap(t, testMapMD5, store.MapStatusRanked)
	ctx := context.Background()

	sub := makeSubmission("tina", 5000, "failed-1")
	sub.Passed = false
	sub.Grade = "F"
	resp := f.submit(t, sub, "5f4dcc3b5aa765d61d8327deb882cf99")
	if !bytes.Equal(resp, RespError) {
		t.Fatalf("failed play got %q, want error: no", resp)
	}

	stats, _ := f.store.GetStats(ctx, u.ID, 0)
	if stats.Plays != 1 || stats.TotalScore != 5000 {
		t.Fatalf("failed plays still count toward plays/total: %+v", stats)
	}
	if stats.RankedScore != 0 {
		t.Fatalf("failed plays must not touch ranked score")
	}

	row, err := f.store.FindByChecksum(ctx, 0, "failed-1")
	if err != nil {
		t.Fatalf("FindByChecksum() error: %v", err)
	}
	if row.Status != store.StatusFailed {
		t.Fatalf("status = %d, want failed", row.Status)
	}
}

func TestPPCapTriggersRestriction(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "cheater", "5f4dcc3b5aa765d61d8327deb882cf99")
	f.seedMap(t, testMapMD5, store.MapStatusRanked)

	f.pp = 900 // over the 700 vanilla cap
	resp := f.submit(t, makeSubmission("cheater", 999999, "sus"), "5f4dcc3b5aa765d61d8327deb882cf99")
	if !bytes.Equal(resp, RespBanned) {
		t.Fatalf("autoban submission got %q, want error: ban", resp)
	}

	got, err := f.store.FindUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("FindUserByID() error: %v", err)
	}
	if !got.Restricted() {
		t.Fatalf("over-cap submission should restrict the player")
	}
}

func TestWhitelistedPlayerExemptFromCap(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "pro", "5f4dcc3b5aa765d61d8327deb882cf99")
	if err := f.store.SetPriv(context.Background(), u.ID, store.PrivNormal|store.PrivWhitelisted); err != nil {
		t.Fatalf("SetPriv() error: %v", err)
	}
	f.seedMap(t, testMapMD5, store.MapStatusRanked)

	f.pp = 900
	f.submit(t, makeSubmission("pro", 999999, "legit"), "5f4dcc3b5aa765d61d8327deb882cf99")

	got, _ := f.store.FindUserByID(context.Background(), u.ID)
	if got.Restricted() {
		t.Fatalf("whitelisted player must not be restricted by the cap")
	}
}

func TestMissingReplayRestrictsSubmitter(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "noreplay", "5f4dcc3b5aa765d61d8327deb882cf99")
	f.seedMap(t, testMapMD5, store.MapStatusRanked)

	sub := makeSubmission("noreplay", 1000, "nr")
	dataB64, ivB64, _ := encryptPayload(sub.Serialize(), []byte("iv"), testOsuVersion)
	resp, err := f.pipeline.Submit(context.Background(), SubmitRequest{
		DataB64: dataB64, IVB64: ivB64, OsuVersion: testOsuVersion,
		PasswordMD5: "5f4dcc3b5aa765d61d8327deb882cf99", TimeElapsed: "60000",
		Replay: nil, // passed play with no replay
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if !bytes.Equal(resp, RespBanned) {
		t.Fatalf("replay-less submission got %q, want error: ban", resp)
	}

	got, _ := f.store.FindUserByID(context.Background(), u.ID)
	if !got.Restricted() {
		t.Fatalf("passed play without a replay should restrict the submitter")
	}
}

func TestRankOneAnnouncement(t *testing.T) {
	f := newFixture(t)

	q := f.seedUser(t, "quinn", "5f4dcc3b5aa765d61d8327deb882cf99")
	p := f.seedUser(t, "pat", "5f4dcc3b5aa765d61d8327deb882cf99")
	f.seedMap(t, testMapMD5, store.MapStatusRanked)

	// Q holds the current #1.
	f.submit(t, makeSubmission("quinn", 100000, "q-best"), "5f4dcc3b5aa765d61d8327deb882cf99")

	// An online observer in #announce sees the announcement.
	observer := session.NewSession(500, "obs", "obs", "tok-obs", store.PrivNormal)
	f.sessions.Register(observer)
	if _, err := f.channels.Join("#announce", observer.ID, observer.Priv); err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	// The submitter is online too, for the self-echo.
	submitter := session.NewSession(p.ID, p.Name, "pat", "tok-pat", store.PrivNormal)
	f.sessions.Register(submitter)

	f.submit(t, makeSubmission("pat", 200000, "p-best"), "5f4dcc3b5aa765d61d8327deb882cf99")

	observer.Mu.Lock()
	obsBytes := observer.DrainOutbound()
	observer.Mu.Unlock()

	packets, err := codec.DecodeAll(obsBytes)
	if err != nil {
		t.Fatalf("DecodeAll() error: %v", err)
	}
	var announcement *codec.Message
	for _, pkt := range packets {
		if pkt.ID != codec.ChoSendMessage {
			continue
		}
		msg, err := codec.NewReader(pkt.Payload).Message()
		if err != nil {
			t.Fatalf("Message() error: %v", err)
		}
		if strings.Contains(msg.Content, "achieved #1") {
			announcement = &msg
			break
		}
	}
	if announcement == nil {
		t.Fatalf("no announcement reached the #announce member")
	}
	if !strings.HasPrefix(announcement.Content, "\x01ACTION achieved #1 on ") {
		t.Fatalf("announcement = %q", announcement.Content)
	}
	if announcement.Sender != "pat" || announcement.SenderID != p.ID {
		t.Fatalf("announcement sender = %s/%d, want the submitter", announcement.Sender, announcement.SenderID)
	}
	wantPrev := fmt.Sprintf("(Previous #1: [https://osu.local/u/%d %s])", q.ID, q.Name)
	if !strings.Contains(announcement.Content, wantPrev) {
		t.Fatalf("announcement %q missing previous #1 %q", announcement.Content, wantPrev)
	}

	// Self-echo: the submitter hears about their own #1 as well.
	submitter.Mu.Lock()
	selfBytes := submitter.DrainOutbound()
	submitter.Mu.Unlock()
	if !bytes.Contains(selfBytes, []byte("achieved #1")) && !bytes.Contains(selfBytes, []byte("You achieved #1!")) {
		t.Fatalf("submitter never saw their own #1")
	}
}

func TestChartShape(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "chartee", "5f4dcc3b5aa765d61d8327deb882cf99")
	f.seedMap(t, testMapMD5, store.MapStatusRanked)

	resp := f.submit(t, makeSubmission("chartee", 42000, "chart-1"), "5f4dcc3b5aa765d61d8327deb882cf99")
	blocks := strings.Split(string(resp), "\n")
	if len(blocks) != 3 {
		t.Fatalf("chart has %d blocks, want 3: %q", len(blocks), resp)
	}
	if !strings.HasPrefix(blocks[0], "beatmapId:777|beatmapSetId:88") {
		t.Fatalf("map block = %q", blocks[0])
	}
	if !strings.Contains(blocks[1], "chartId:beatmap") || !strings.Contains(blocks[1], "rankBefore:|") {
		t.Fatalf("beatmap ranking block = %q", blocks[1])
	}
	if !strings.Contains(blocks[2], "chartId:overall") || !strings.Contains(blocks[2], "achievements-new:") {
		t.Fatalf("overall block = %q", blocks[2])
	}
}

func TestAchievementsUnlockOnceOnBest(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "medals", "5f4dcc3b5aa765d61d8327deb882cf99")
	f.seedMap(t, testMapMD5, store.MapStatusRanked)
	ctx := context.Background()

	sub := makeSubmission("medals", 100000, "combo-run")
	sub.MaxCombo = 1200 // unlocks 500, 750 and 1000 combo medals
	resp := f.submit(t, sub, "5f4dcc3b5aa765d61d8327deb882cf99")
	if !strings.Contains(string(resp), "1,000 Combo") {
		t.Fatalf("chart should list the fresh unlock: %q", resp)
	}

	owned, err := f.store.OwnedAchievements(ctx, u.ID)
	if err != nil {
		t.Fatalf("OwnedAchievements() error: %v", err)
	}
	if len(owned) != 3 {
		t.Fatalf("owned %d achievements, want 3", len(owned))
	}

	// A second best on the same map must not re-unlock.
	sub2 := makeSubmission("medals", 200000, "combo-run-2")
	sub2.MaxCombo = 1300
	resp2 := f.submit(t, sub2, "5f4dcc3b5aa765d61d8327deb882cf99")
	if strings.Contains(string(resp2), "1,000 Combo") {
		t.Fatalf("already-owned achievement re-announced: %q", resp2)
	}
}

func TestWeightedAccuracy(t *testing.T) {
	scores := []store.Score{{Accuracy: 100}, {Accuracy: 90}, {Accuracy: 80}}
	got := WeightedAccuracy(scores)
	want := (100 + 90*0.95 + 80*0.95*0.95) / (1 + 0.95 + 0.95*0.95)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v want %v", got, want)
	}
	if WeightedAccuracy(nil) != 0 {
		t.Fatalf("empty input should yield 0")
	}
}

func TestWeightedPPBonus(t *testing.T) {
	scores := []store.Score{{PP: 100}, {PP: 50}}
	got := WeightedPP(scores, 2)
	want := 100 + 50*0.95 + 416.6667*(1-math.Pow(0.9994, 2))
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestComputeChecksumDeterministic(t *testing.T) {
	a := makeSubmission("alice", 1000, "")
	b := makeSubmission("alice", 1000, "")
	if ComputeChecksum(a) != ComputeChecksum(b) {
		t.Fatalf("checksum should be deterministic")
	}
	b.Score = 1001
	if ComputeChecksum(a) == ComputeChecksum(b) {
		t.Fatalf("different plays should not collide")
	}
}
