package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/sutekina/osu-gulag/internal/store"
)

// Version is the current server version. Set at build time via -ldflags.
var Version = "0.1.0-dev"

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("gulag server %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "user":
		return cliUser(args[1:], dbPath)
	case "leaderboard":
		return cliLeaderboard(args[1:], dbPath)
	default:
		return false
	}
}

func openStore(dbPath string) *store.Store {
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func cliStatus(dbPath string) bool {
	st := openStore(dbPath)
	defer st.Close()

	fmt.Printf("Database: %s", dbPath)
	if fi, err := os.Stat(dbPath); err == nil {
		fmt.Printf(" (%s)", humanize.Bytes(uint64(fi.Size())))
	}
	fmt.Println()
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliUser(args []string, dbPath string) bool {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: server user [show|restrict|unsilence] <name>")
		os.Exit(1)
	}

	st := openStore(dbPath)
	defer st.Close()
	ctx := context.Background()

	safeName := args[1]
	u, err := st.FindUserBySafeName(ctx, safeName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "no such user %q\n", safeName)
		os.Exit(1)
	}

	switch args[0] {
	case "show":
		out, _ := json.MarshalIndent(map[string]any{
			"id": u.ID, "name": u.Name, "country": u.Country,
			"priv": u.Priv, "restricted": u.Restricted(),
		}, "", "  ")
		fmt.Println(string(out))
	case "restrict":
		if err := st.Restrict(ctx, u.ID); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Restricted %s (id=%d)\n", u.Name, u.ID)
	case "unsilence":
		if err := st.SetSilenceEnd(ctx, u.ID, 0); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cleared silence for %s\n", u.Name)
	default:
		fmt.Fprintln(os.Stderr, "Usage: server user [show|restrict|unsilence] <name>")
		os.Exit(1)
	}
	return true
}

func cliLeaderboard(args []string, dbPath string) bool {
	st := openStore(dbPath)
	defer st.Close()

	mode := uint8(0)
	if len(args) > 0 && args[0] == "1" {
		mode = 1
	}

	rows, err := st.TopPlayersByPP(context.Background(), mode, 25)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("No ranked players yet.")
		return true
	}
	for i, r := range rows {
		fmt.Printf("  #%-3d %-16s %s pp\n", i+1, r.Name, humanize.CommafWithDigits(r.PP, 2))
	}
	return true
}
