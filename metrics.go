package main

import (
	"context"
	"log"
	"time"

	"github.com/sutekina/osu-gulag/internal/match"
	"github.com/sutekina/osu-gulag/internal/session"
)

// RunMetrics logs registry stats every interval until ctx is canceled.
func RunMetrics(ctx context.Context, sessions *session.Registry, matches *match.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := len(sessions.All())
			rooms := len(matches.All())
			if online > 1 || rooms > 0 { // the bot is always counted
				log.Printf("[metrics] online=%d matches=%d", online, rooms)
			}
		}
	}
}
