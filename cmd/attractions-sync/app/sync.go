package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one full sync pass and exit",
		RunE:  runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	result := eng.orchestrator.TriggerSync(ctx)
	if !result.Success {
		return fmt.Errorf("sync failed: %s", result.Err)
	}

	fmt.Printf("sync complete: %d added, %d updated, %d deleted\n",
		result.Added, result.Updated, result.Deleted)
	return nil
}
