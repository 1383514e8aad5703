/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/merchforge/apiserver/config"
	"github.com/merchforge/apiserver/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the merchforge API server",
	Long: `Starts the merchforge API server. Usage:

	merchforge server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", zap.Error(err))
			return fmt.Errorf("invalid configuration: %w", err)
		}

		srv, err := server.New(cmd.Context(), cfg, logger)
		if err != nil {
			logger.Error("failed to start server", zap.Error(err))
			return err
		}
		if err := srv.Run(cmd.Context()); err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
