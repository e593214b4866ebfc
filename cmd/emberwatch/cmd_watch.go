package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"emberwatch/command"
	"emberwatch/config"
	"emberwatch/poller"
	"emberwatch/state"
	"emberwatch/stream"
	"emberwatch/telemetry"
	"emberwatch/tui"
)

// newWatchCmd creates the "emberwatch watch" subcommand.
func newWatchCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to the backend and launch the dashboard TUI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "emberwatch.toml", "path to the TOML config file")
	return cmd
}

func runWatch(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  "emberwatch",
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		LogLevel:     cfg.LogLevel(),
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			slog.Error("telemetry shutdown failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := state.NewStore()

	client := stream.NewClient(cfg.WSURL(), store)
	defer client.Disconnect()

	opts := []command.Option{}
	if cfg.Backend.APIToken != "" {
		opts = append(opts, command.WithToken(cfg.Backend.APIToken))
	}
	dispatcher := command.New(cfg.Backend.URL, store, opts...)

	go poller.NewIterationLoop(dispatcher, cfg.IterateInterval()).Run(ctx)
	go poller.NewScreenLoop(dispatcher, cfg.ScreenInterval()).Run(ctx)

	client.Connect(ctx)
	slog.InfoContext(ctx, "watch started", "backend", cfg.Backend.URL, "stream", cfg.WSURL())

	program := tea.NewProgram(
		tui.New(store, dispatcher, client, cfg.Agent.Model),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil {
		// シグナルでの停止は正常終了として扱う
		if ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}
