package app

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/connectivity"
)

// watchSyncInterval is the periodic re-sync cadence in watch mode.
const watchSyncInterval = 15 * time.Minute

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep syncing on connectivity changes and a periodic timer",
		RunE:  runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	states, unsubscribe := eng.orchestrator.Subscribe()
	defer unsubscribe()
	go func() {
		for state := range states {
			slog.Debug("Sync state changed", "phase", string(state.Phase))
		}
	}()

	changes := eng.probe.Watch(ctx)
	ticker := time.NewTicker(watchSyncInterval)
	defer ticker.Stop()

	// Initial pass on startup.
	trigger(ctx, eng)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down")
			return nil
		case status, ok := <-changes:
			if !ok {
				return nil
			}
			if status == connectivity.StatusAvailable {
				slog.Info("Connectivity restored, triggering sync")
				trigger(ctx, eng)
			}
		case <-ticker.C:
			trigger(ctx, eng)
		}
	}
}

func trigger(ctx context.Context, eng *engine) {
	result := eng.orchestrator.TriggerSync(ctx)
	if !result.Success {
		slog.Warn("Sync pass failed", "kind", string(result.Err))
	}
}
