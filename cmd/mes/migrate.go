package main

import (
	"fmt"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the MES tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		zapLogger, err := initLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		defer zapLogger.Sync()

		db, err := initDatabase(cfg.Database, true)
		if err != nil {
			return err
		}
		if err := entity.AutoMigrate(db); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		zapLogger.Info("MES tables migrated", zap.String("database", cfg.Database.DBName))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
