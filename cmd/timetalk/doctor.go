package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/avoytenko/timetalk/internal/config"
	"github.com/avoytenko/timetalk/internal/store"
	"github.com/avoytenko/timetalk/internal/tracker"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify config, database, and tracker connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			fmt.Println("=== Config ===")
			fmt.Printf("  DB path:      %s\n", cfg.DBPath)
			model := cfg.GeminiModel
			if model == "" {
				model = "(default)"
			}
			fmt.Printf("  Gemini model: %s\n", model)
			fmt.Printf("  Gemini key:   set (%d chars)\n", len(cfg.GeminiAPIKey))

			fmt.Println("\n=== Database ===")
			if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (created on first chat)")
				return nil
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer st.Close()

			profiles, err := st.All()
			if err != nil {
				return fmt.Errorf("list profiles: %w", err)
			}
			fmt.Printf("  Profiles: %d\n", len(profiles))

			fmt.Println("\n=== Tracker ===")
			if len(profiles) == 0 {
				fmt.Println("  No profiles yet; run 'timetalk chat' and /setup first.")
			}
			for _, p := range profiles {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				user, err := tracker.New(p.TrackerURL, p.APIKey).CurrentUser(ctx)
				cancel()
				if err != nil {
					fmt.Printf("  %s: %s (UNREACHABLE: %v)\n", p.SessionID, p.TrackerURL, err)
					continue
				}
				fmt.Printf("  %s: %s (OK, user %s)\n", p.SessionID, p.TrackerURL, user.Login)
			}

			if info, err := os.Stat(cfg.DBPath); err == nil {
				sizeMB := float64(info.Size()) / 1024 / 1024
				fmt.Printf("\n=== DB Size: %.1f MB ===\n", sizeMB)
			}

			return nil
		},
	}
}
