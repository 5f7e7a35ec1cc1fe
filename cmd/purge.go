package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Qompa-Fi/banking-service/internal/app"
	"github.com/Qompa-Fi/banking-service/internal/config"
	"github.com/Qompa-Fi/banking-service/internal/store"
	"github.com/Qompa-Fi/banking-service/pkg/logger"
)

// purgeUserCmd deletes every directory of a user, the same cleanup the
// user.deleted consumer performs. Useful to reset test users.
func purgeUserCmd(configPath *string) *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:     "purge-user <user-id>",
		Short:   "Delete every bank directory of a user",
		Example: "  banking-service purge-user 42\n  banking-service purge-user 42 --yes",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			if strings.TrimSpace(cfg.DatabaseURL) == "" {
				return errors.New("DATABASE_URL must be set to purge directories")
			}
			log := logger.New(cfg.LogLevel, cfg.LogPretty)
			ctx := cmd.Context()

			dbpool, err := connectDatabase(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer dbpool.Close()

			// Only evictions go through the session cache here, so no sealer is needed.
			redisClient := connectRedis(ctx, cfg.RedisURL, log)
			if redisClient != nil {
				defer redisClient.Close()
			}

			service := app.NewBankingService(app.Dependencies{
				Directories: store.NewPostgresDirectoryRepository(dbpool),
				Sessions:    store.NewRedisSessionCache(redisClient, nil, log),
				Logger:      log,
			})

			directories, err := service.ListDirectories(ctx, userID)
			if err != nil {
				return err
			}
			if len(directories) == 0 {
				fmt.Printf("User %d has no bank directories.\n", userID)
				return nil
			}

			fmt.Printf("Bank directories of user %d:\n", userID)
			for _, d := range directories {
				name := "-"
				if d.Name != nil {
					name = *d.Name
				}
				fmt.Printf("  %s  %-20s %s\n", d.ID, d.ProviderName, name)
			}

			if !assumeYes {
				fmt.Printf("\nAre you sure you want to delete these directories? (yes/no): ")
				answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					fmt.Println("Deletion cancelled.")
					return nil
				}
			}

			deleted, err := service.PurgeUserDirectories(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to purge directories: %w", err)
			}
			fmt.Printf("Deleted %d directories of user %d\n", deleted, userID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
