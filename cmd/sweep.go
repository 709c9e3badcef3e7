/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/foodshare/apiserver/config"
	"github.com/foodshare/apiserver/internal/logging"
	"github.com/foodshare/apiserver/internal/server"
	"github.com/foodshare/apiserver/internal/sweeper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// sweepCmd runs one expiry pass, for use from cron when the in-process
// sweeper is disabled.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire open posts whose ready-by time has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		log, err := logging.New(cfg.Env, cfg.LogLevel)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		srv, err := server.New(ctx, cfg, log, server.PublishOnly())
		if err != nil {
			return fmt.Errorf("failed to open stores: %w", err)
		}
		defer func() { _ = srv.Shutdown(context.Background()) }()

		n, err := sweeper.New(srv.Posts(), log.Named("sweeper"), 0).RunOnce(ctx)
		if err != nil {
			return err
		}
		log.Info("sweep finished", zap.Int("expired", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
