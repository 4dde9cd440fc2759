package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tip-dispatcher/internal/app"
	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/config"
	applog "tip-dispatcher/internal/infra/log"
)

var (
	jsonOutput bool
	verbose    bool

	cfg    config.AppConfig
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "tipctl",
	Short:         "Управление советами и распространителями",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Parse()
		if err != nil {
			return fmt.Errorf("конфиг: %w", err)
		}
		appEnv := cfg.AppEnv
		if !verbose && appEnv == "dev" {
			appEnv = "prod"
		}
		logger = applog.New(os.Stderr, appEnv)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "вывод в JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "подробные логи")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(distributeCmd)
	rootCmd.AddCommand(schedulesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore открывает хранилище и применяет миграции.
func openStore(ctx context.Context) (domain.Store, error) {
	return app.OpenStore(ctx, cfg, true)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
