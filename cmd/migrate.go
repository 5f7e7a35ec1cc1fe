package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Qompa-Fi/banking-service/internal/config"
	"github.com/Qompa-Fi/banking-service/internal/store"
	"github.com/Qompa-Fi/banking-service/pkg/logger"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the bank directory schema to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			if strings.TrimSpace(cfg.DatabaseURL) == "" {
				return errors.New("DATABASE_URL must be set to run migrations")
			}
			log := logger.New(cfg.LogLevel, cfg.LogPretty).With().Str("component", "migrate").Logger()

			dbpool, err := connectDatabase(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer dbpool.Close()

			if err := store.Migrate(cmd.Context(), dbpool); err != nil {
				return err
			}
			log.Info().Msg("directory schema is up to date")
			return nil
		},
	}
}
