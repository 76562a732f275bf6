package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rust-community-pl/mqtt-consumer/internal/app"
	"github.com/rust-community-pl/mqtt-consumer/internal/config"
	"github.com/rust-community-pl/mqtt-consumer/internal/consumer"
	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
	"github.com/rust-community-pl/mqtt-consumer/internal/infra/bankfile"
	"github.com/rust-community-pl/mqtt-consumer/internal/infra/memory"
	"github.com/rust-community-pl/mqtt-consumer/internal/infra/mqtt"
	"github.com/rust-community-pl/mqtt-consumer/internal/infra/postgres"
	redisinfra "github.com/rust-community-pl/mqtt-consumer/internal/infra/redis"
	transport "github.com/rust-community-pl/mqtt-consumer/internal/transport/http"
)

// NewConsumeCmd builds the CLI subcommand that runs the ingestion loop.
func NewConsumeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Subscribe to the broker and record answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsume(cmd.Context(), *configPath)
		},
	}
}

func runConsume(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.MQTT.Host == "" {
		return fmt.Errorf("mqtt host not configured")
	}

	var store app.AnswerStore
	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		db := postgres.NewDB(cfg.Postgres.URL)
		defer db.Close()
		store = postgres.NewAnswerStore(db)

		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	} else {
		log.Printf("no postgres configured, answers are kept in memory only")
		store = memory.NewAnswerStore()
	}

	var loader app.BankLoader
	switch {
	case cfg.Bank.Path != "":
		loader = bankfile.NewLoader(cfg.Bank.Path)
	case pool != nil:
		loader = postgres.NewBankLoader(pool)
	default:
		log.Printf("no question bank configured, using the built-in sample bank")
		loader = memory.NewStaticBankLoader(sampleBank())
	}
	bank, err := loader.LoadBank(ctx)
	if err != nil {
		return err
	}
	log.Printf("loaded %d question(s)", len(bank))

	agg := app.NewAggregator(bank)
	if answers, err := store.ScanAll(ctx); err != nil {
		log.Printf("could not replay durable answers: %v", err)
	} else if len(answers) > 0 {
		agg.Rehydrate(answers)
		log.Printf("rehydrated statistics from %d durable answer(s)", len(answers))
	}

	var publisher app.StatsPublisher
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		publisher = redisinfra.NewStatsPublisher(client, config.Duration(cfg.Redis.TTL, 0))
	}

	ingestor := app.NewIngestor(store, agg, publisher)
	dispatcher := consumer.NewDispatcher(cfg.MQTT.Topic, cfg.MQTT.Separator, ingestor)
	dialer := mqtt.NewDialer(mqtt.Config{
		Host:     cfg.MQTT.Host,
		Port:     cfg.MQTT.Port,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		UseTLS:   cfg.MQTT.UseTLS,
		Topic:    cfg.MQTT.Topic,
		QoS:      1,
	})
	backoff := consumer.Backoff{
		Initial: config.Duration(cfg.Consumer.BackoffInitial, consumer.DefaultBackoff.Initial),
		Max:     config.Duration(cfg.Consumer.BackoffMax, consumer.DefaultBackoff.Max),
	}
	manager := consumer.NewManager(dialer, dispatcher, backoff, cfg.Consumer.MaxInflight)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var server *http.Server
	if cfg.Server.Port != "" {
		server = &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      transport.NewHandler(agg).Routes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			log.Printf("serving leaderboard on :%s", cfg.Server.Port)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
			}
		}()
	}

	err = manager.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	return err
}

// sampleBank provides minimal quiz content for demos; configure bank.path or
// seed the questions table in production.
func sampleBank() domain.QuestionBank {
	return domain.QuestionBank{
		"q1": {
			ID:      "q1",
			Content: "What is 2 + 2?",
			Choices: map[int]string{0: "3", 1: "4", 2: "5", 3: "22"},
			Correct: domain.CorrectChoice{Index: 1, Text: "4"},
		},
	}
}
