package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sutekina/osu-gulag/internal/channel"
	"github.com/sutekina/osu-gulag/internal/gateway"
	"github.com/sutekina/osu-gulag/internal/match"
	"github.com/sutekina/osu-gulag/internal/presence"
	"github.com/sutekina/osu-gulag/internal/ratelimit"
	"github.com/sutekina/osu-gulag/internal/score"
	"github.com/sutekina/osu-gulag/internal/session"
	"github.com/sutekina/osu-gulag/internal/store"
	"github.com/sutekina/osu-gulag/internal/webapi"
)

func main() {
	// Check for CLI subcommands before parsing flags.
	if len(os.Args) > 1 {
		cliDB := "gulag.db"
		if RunCLI(os.Args[1:], cliDB) {
			return
		}
	}

	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "gulag.db", "SQLite database path")
	dataDir := flag.String("data-dir", "data", "asset root (avatars/, ss/, osr/, osu/)")
	domain := flag.String("domain", "osu.local", "public domain used in chart and announcement URLs")
	idleTimeout := flag.Duration("idle-timeout", 3*time.Minute, "session inactivity eviction threshold")
	loginRate := flag.Float64("login-rate", 1, "login attempts per second per IP")
	submitRate := flag.Float64("submit-rate", 2, "score submissions per second per IP")
	ppService := flag.String("pp-service", "", "external performance calculator URL (empty to disable)")
	ppCapVanilla := flag.Float64("pp-cap-vanilla", 700, "autoban threshold, vanilla (0 to disable)")
	ppCapFlashlight := flag.Float64("pp-cap-flashlight", 800, "autoban threshold, flashlight")
	ppCapRelax := flag.Float64("pp-cap-relax", 1200, "autoban threshold, relax/autopilot")
	welcome := flag.String("welcome", "Welcome back!", "login notification text")
	menuIcon := flag.String("menu-icon", "", "main menu icon spec (image-url|click-url)")
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("[store] %v", err)
	}
	defer st.Close()

	sessions := session.NewRegistry(st, *idleTimeout)
	channels := channel.NewRegistry()
	seedChannels(channels)
	matches := match.NewRegistry(channels)
	pr := presence.NewBroadcaster(sessions)

	loginLimiter := ratelimit.New(*loginRate, 5)
	submitLimiter := ratelimit.New(*submitRate, 5)

	gw := gateway.New(sessions, channels, matches, pr, st, loginLimiter)
	gw.SetWelcome(*welcome)
	gw.SetMenuIcon(*menuIcon)

	var calc score.Calculator
	if *ppService != "" {
		calc = score.NewHTTPCalculator(*ppService)
		log.Printf("[score] performance calculator: %s", *ppService)
	}
	pipeline := score.NewPipeline(st, sessions, pr, channels, calc,
		filepath.Join(*dataDir, "osr"), *domain,
		score.PPCaps{Vanilla: *ppCapVanilla, Flashlight: *ppCapFlashlight, Relax: *ppCapRelax})
	if err := pipeline.SeedAchievements(context.Background()); err != nil {
		log.Fatalf("[score] seed achievements: %v", err)
	}

	api := webapi.New(sessions, matches, st, *dataDir)
	gw.Register(api.Echo())
	pipeline.Register(api.Echo(), submitLimiter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[server] shutting down...")
		cancel()
	}()

	// Start metrics logging.
	go RunMetrics(ctx, sessions, matches, 30*time.Second)

	// Evict idle sessions and prune stale rate-limit buckets.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				gw.Sweep()
				loginLimiter.Prune(10 * time.Minute)
				submitLimiter.Prune(10 * time.Minute)
			}
		}
	}()

	// Reroll the bot's cached status line.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pr.InvalidateBotCache()
			}
		}
	}()

	// Periodically optimize SQLite query planner.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := st.Optimize(); err != nil {
					log.Printf("[store] optimize: %v", err)
				}
			}
		}
	}()

	log.Printf("[server] listening on %s", *addr)
	api.Run(ctx, *addr)
}

// seedChannels registers the always-present static channels.
func seedChannels(r *channel.Registry) {
	r.SeedStatic("#osu", "General discussion.", 0, 0, true)
	r.SeedStatic("#announce", "Score announcements.", 0, store.PrivStaff, true)
	r.SeedStatic("#lobby", "Multiplayer room discussion.", 0, 0, false)
	r.SeedStatic("#staff", "Staff only.", store.PrivStaff, store.PrivStaff, false)
}
