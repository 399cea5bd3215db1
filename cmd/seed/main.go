package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/NiKuma0/secunda-tz/internal/directory/config"
	"github.com/NiKuma0/secunda-tz/internal/directory/db"
	"github.com/NiKuma0/secunda-tz/internal/directory/seed"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		datasetPath string
		reset       bool
		migrate     bool
	)

	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Load a directory dataset into Postgres",
		Long:          "Load buildings, specializations and organizations from a YAML dataset. Without --dataset the built-in demo dataset is used.",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			level, _ := cfg.Level()
			zcfg := zap.NewProductionConfig()
			zcfg.Level = zap.NewAtomicLevelAt(level)
			logger, err := zcfg.Build()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ds, err := loadDataset(datasetPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			repo, err := db.NewRepository(ctx, cfg.DBConfig(), logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			if migrate {
				if err := repo.Migrate(ctx); err != nil {
					return err
				}
			}
			return seed.NewSeeder(repo, logger).Load(ctx, ds, seed.Options{Reset: reset})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "path to a YAML dataset (default: built-in demo data)")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete existing directory rows before loading")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "create or update the schema before loading")
	return cmd
}

func loadDataset(path string) (*seed.Dataset, error) {
	if path == "" {
		return seed.Default()
	}
	return seed.ReadFile(path)
}
