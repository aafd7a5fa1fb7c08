// Package app wires the sync engine together and exposes it as a CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/config"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/connectivity"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/reaction"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/remote"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/session"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/store"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/syncer"
)

// NewRootCmd creates the root command for the attraction sync client.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "attractions-sync",
		Short: "Offline-first sync engine for the attraction cache",
		Long: `attractions-sync keeps the local attraction and review cache
consistent with the backend. The cache is always readable; sync failures
never affect the reading path.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML)")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		panic(fmt.Sprintf("failed to bind config flag: %v", err))
	}

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newWatchCmd())
	return rootCmd
}

// engine bundles the wired components a command needs.
type engine struct {
	store        *store.Store
	sessions     session.Manager
	orchestrator *syncer.Orchestrator
	reviews      *syncer.ReviewSyncer
	reactions    *reaction.Reconciler
	probe        connectivity.Probe
}

func (e *engine) Close() error {
	e.reactions.Wait()
	return e.store.Close()
}

// loadConfig reads the configuration named by the --config flag.
func loadConfig() (*config.Config, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return config.Load(config.WithConfigPath(configPath))
}

// buildEngine assembles the full component graph from configuration.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	st, err := store.Open(cfg.Database.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}

	executor := remote.NewExecutor(
		remote.WithMaxTries(cfg.API.MaxTries),
		remote.WithBackoffDelays(cfg.API.BackoffBase, cfg.API.BackoffMax),
	)

	// The refresh endpoint is anonymous, so the refresher client carries no
	// token source; this also guarantees a refresh can never recursively
	// trigger another refresh.
	refresher := remote.NewClient(cfg.API.BaseURL,
		remote.WithExecutor(executor),
		remote.WithHTTPClient(&http.Client{Timeout: cfg.API.RequestTimeout}),
	)

	sessions, err := session.NewManager(ctx, refresher, st,
		session.WithRefreshMargin(cfg.Session.RefreshMargin),
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	client := remote.NewClient(cfg.API.BaseURL,
		remote.WithExecutor(executor),
		remote.WithHTTPClient(&http.Client{Timeout: cfg.API.RequestTimeout}),
		remote.WithTokenSource(sessions),
	)

	probe := connectivity.NewDialProbe(cfg.Connectivity.ProbeAddress, slog.Default())

	attractionEngine := syncer.NewEngine(
		syncer.NewAttractionCollection(client, st),
		st,
		probe,
		syncer.WithChunkSize[models.Attraction](cfg.Sync.ChunkSize),
		syncer.WithTombstones[models.Attraction](*cfg.Sync.Tombstones),
	)

	reviews := syncer.NewReviewSyncer(client, st, probe,
		syncer.WithStaleness(cfg.Sync.ReviewStaleness),
	)

	orchestrator := syncer.NewOrchestrator(attractionEngine, reviews, probe,
		syncer.WithResetDelay(cfg.Sync.ResetDelay),
	)

	reactions := reaction.NewReconciler(sessions, st, client,
		reaction.WithRollbackOnFailure(cfg.Reactions.RollbackOnFailure),
	)

	return &engine{
		store:        st,
		sessions:     sessions,
		orchestrator: orchestrator,
		reviews:      reviews,
		reactions:    reactions,
		probe:        probe,
	}, nil
}
