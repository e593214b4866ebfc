package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"emberwatch/simulator"
)

// newSimulateCmd creates the "emberwatch simulate" subcommand.
// バックエンドなしでTUIを触るための偽バックエンドを立てます。
func newSimulateCmd() *cobra.Command {
	var (
		addr        string
		broadcastMS int
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a synthetic backend for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), addr, time.Duration(broadcastMS)*time.Millisecond)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8000", "listen address")
	cmd.Flags().IntVar(&broadcastMS, "broadcast-ms", 1000, "state broadcast interval in milliseconds")
	return cmd
}

func runSimulate(ctx context.Context, addr string, broadcastInterval time.Duration) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := simulator.New(simulator.WithBroadcastInterval(broadcastInterval))
	go sim.Run(ctx)

	server := simulator.NewServer(addr, sim)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.InfoContext(ctx, "simulator listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.InfoContext(ctx, "shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "graceful shutdown failed", "error", err)
		if err := server.Close(); err != nil {
			slog.ErrorContext(ctx, "forced close failed", "error", err)
		}
	}
	return nil
}
