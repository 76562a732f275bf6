package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/rust-community-pl/mqtt-consumer/internal/config"
	"github.com/rust-community-pl/mqtt-consumer/internal/infra/postgres"
)

// NewPruneCmd deletes every durable answer, for resetting between events.
func NewPruneCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete all recorded answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), *configPath)
		},
	}
}

func runPrune(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.NewDB(cfg.Postgres.URL)
	defer db.Close()

	total, err := postgres.NewAnswerStore(db).DeleteAll(ctx)
	if err != nil {
		return err
	}
	log.Printf("pruned %d answer(s)", total)
	return nil
}
