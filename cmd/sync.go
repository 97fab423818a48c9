package cmd

import (
	"context"
	"filemirror/internal/daemon"
	"filemirror/internal/db"
	"filemirror/internal/logger"
	"filemirror/internal/repository"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync [dir]",
	Short: "Mirror everything under a directory once",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		defer db.Close()

		if err := cfg.Validate(); err != nil {
			return err
		}

		dir := cfg.WatchDir
		if len(args) == 1 {
			dir = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := newRemote(ctx)
		if err != nil {
			return err
		}
		if err := client.Ping(ctx, cfg.AnchorKeyword); err != nil {
			return err
		}

		logger.Log.Info("starting full sync",
			zap.String("dir", dir))

		agent := daemon.NewAgent(cfg, client, repository.NewHistoryRepository())
		summary, err := agent.SyncTree(ctx, dir)

		fmt.Printf("done: %d synced, %d skipped, %d failed\n", summary.Synced, summary.Skipped, summary.Failed)
		return err
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
