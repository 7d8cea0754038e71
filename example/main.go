package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/scorepulse"
)

func main() {
	// start mock league provider (see mock_server.go)
	go StartMockLeagueServer(":9999")
	time.Sleep(100 * time.Millisecond)

	sp, err := scorepulse.New(
		scorepulse.WithPort(8080),
		scorepulse.WithTitle("ScorePulse Demo"),
		scorepulse.WithLeagueBaseURL("http://localhost:9999"),
		scorepulse.WithPollIntervals(2*time.Second, 5*time.Second),
		scorepulse.WithFetchOnSubscribe(true),
		scorepulse.WithSnapshotCallback(func(s scorepulse.Snapshot) {
			for _, m := range s.Matchups {
				slog.Info("matchup updated",
					"key", s.Key().String(),
					"matchup", m.MatchupID,
					"team1", m.Team1.TeamName, "points1", m.Team1.Points.String(),
					"team2", m.Team2.TeamName, "points2", m.Team2.Points.String(),
				)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create scorepulse", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   ScorePulse Demo                                     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 (league demo, week 1)    ║")
	fmt.Println("  ║   or curl localhost:8080/stream/matchup/demo/1        ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sp.Start(ctx); err != nil {
		slog.Error("scorepulse error", "error", err)
		os.Exit(1)
	}
}
