package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/avoytenko/timetalk/internal/bot"
	"github.com/avoytenko/timetalk/internal/config"
	"github.com/avoytenko/timetalk/internal/nlp"
	"github.com/avoytenko/timetalk/internal/store"
	"github.com/avoytenko/timetalk/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("chat needs an interactive terminal")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			logger, closeLog, err := openLogger(cfg.DBPath)
			if err != nil {
				return err
			}
			defer closeLog()

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer st.Close()

			parser := nlp.NewParser(nlp.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel))
			transport := tui.New()
			engine := bot.New(bot.Config{
				Store:     st,
				Parser:    parser,
				Responder: transport,
				Logger:    logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return transport.Run(ctx, engine.HandleTrigger)
		},
	}
}

// openLogger writes structured logs next to the database; stderr is
// owned by the chat window.
func openLogger(dbPath string) (*slog.Logger, func(), error) {
	logPath := filepath.Join(filepath.Dir(dbPath), "timetalk.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, nil)), func() { f.Close() }, nil
}
