/**
 * @description
 * This is the main entry point for the banking-service. `serve` (the default)
 * wires configuration, storage, caches, the upstream banking client, messaging and
 * the HTTP server together; `migrate` applies the directory schema and
 * `purge-user` deletes the directories of one user.
 *
 * @dependencies
 * - github.com/spf13/cobra: Command line entrypoint.
 * - github.com/joho/godotenv: Loads a local .env file before configuration is read.
 */
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	configPath := "."

	rootCmd := &cobra.Command{
		Use:     "banking-service",
		Short:   "Bank directory and banking data service backed by Prometeo",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is normal outside local development.
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing an optional .env file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(purgeUserCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
