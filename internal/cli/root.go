package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "mqtt-consumer",
		Short: "Quiz answer ingestion service consuming device submissions over MQTT",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadDotEnv()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewConsumeCmd(&configPath))
	cmd.AddCommand(NewPruneCmd(&configPath))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewLeaderboardCmd(&configPath))
	return cmd
}

// loadDotEnv layers a .env file into the environment before config loading.
// Missing files are fine; credentials may come from the environment directly.
func loadDotEnv() {
	envFile := os.Getenv("SUBSCRIBER_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
}
