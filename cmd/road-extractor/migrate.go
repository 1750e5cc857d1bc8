package main

import (
	"context"

	"github.com/openroads/road-extractor/internal/config"
	"github.com/openroads/road-extractor/internal/store"
	"github.com/openroads/road-extractor/pkg/log"
	"github.com/openroads/road-extractor/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		undo := log.Setup(cfg.Service.LogLevel)
		defer undo()

		defer zap.S().Info("Db migrated")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if cfg.Database.Type == store.DBTypeSqlite {
			return migrations.MigrateStore(db, cfg.Service.MigrationFolder, nil)
		}

		pool, err := openPool(context.Background(), cfg)
		if err != nil {
			zap.S().Fatalw("initializing queue pool", "error", err)
		}
		defer pool.Close()

		if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder, pool); err != nil {
			zap.S().Errorw("failed to migrate", "error", err)
			return err
		}

		return nil
	},
}
