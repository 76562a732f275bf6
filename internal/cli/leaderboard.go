package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rust-community-pl/mqtt-consumer/internal/app"
	"github.com/rust-community-pl/mqtt-consumer/internal/config"
	"github.com/rust-community-pl/mqtt-consumer/internal/infra/bankfile"
	"github.com/rust-community-pl/mqtt-consumer/internal/infra/postgres"
	redisinfra "github.com/rust-community-pl/mqtt-consumer/internal/infra/redis"
)

// NewLeaderboardCmd rebuilds statistics from the durable store and writes the
// export for display tooling.
func NewLeaderboardCmd(configPath *string) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Export the leaderboard from durable history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaderboard(cmd.Context(), *configPath, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "file to write the export to, - for stdout")
	return cmd
}

type leaderboardExport struct {
	Leaderboard []app.LeaderboardItem       `json:"leaderboard"`
	Statistics  map[string]app.DeviceReport `json:"statistics"`
}

func runLeaderboard(ctx context.Context, configPath, output string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.NewDB(cfg.Postgres.URL)
	defer db.Close()
	store := postgres.NewAnswerStore(db)

	var loader app.BankLoader
	if cfg.Bank.Path != "" {
		loader = bankfile.NewLoader(cfg.Bank.Path)
	} else {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = postgres.NewBankLoader(pool)
	}
	bank, err := loader.LoadBank(ctx)
	if err != nil {
		return err
	}

	answers, err := store.ScanAll(ctx)
	if err != nil {
		return err
	}

	agg := app.NewAggregator(bank)
	agg.Rehydrate(answers)

	export := leaderboardExport{
		Leaderboard: app.BuildLeaderboard(agg.Snapshot()),
		Statistics:  agg.Report(),
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if output == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}
	} else if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		publisher := redisinfra.NewStatsPublisher(client, config.Duration(cfg.Redis.TTL, 0))
		if err := publisher.PublishLeaderboard(ctx, export.Leaderboard); err != nil {
			log.Printf("redis export failed: %v", err)
		}
		for _, snapshot := range agg.Snapshot() {
			if err := publisher.PublishDevice(ctx, snapshot); err != nil {
				log.Printf("redis export for %s failed: %v", snapshot.DeviceID, err)
				break
			}
		}
	}
	return nil
}
