package cmd

import (
	"context"
	"filemirror/internal/daemon"
	"filemirror/internal/db"
	"filemirror/internal/logger"
	"filemirror/internal/repository"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start the mirroring daemon",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()
	defer db.Close()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := newRemote(ctx)
	if err != nil {
		return err
	}

	if err := client.Ping(ctx, cfg.AnchorKeyword); err != nil {
		logger.Log.Error("remote storage unreachable",
			zap.String("api_url", cfg.APIURL),
			zap.Error(err))
		return err
	}

	histRepo := repository.NewHistoryRepository()
	agent := daemon.NewAgent(cfg, client, histRepo)

	srv := daemon.NewServer(agent, histRepo, cfg.DaemonPort)
	srv.Start()

	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	logger.Log.Info("filemirror daemon started",
		zap.String("watch_dir", cfg.WatchDir),
		zap.Int("port", cfg.DaemonPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var (
		runErr error
		exited bool
	)
	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	case runErr = <-done:
		exited = true
		logger.Log.Error("agent exited",
			zap.Error(runErr))
	}

	cancel()
	if !exited {
		runErr = <-done
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Log.Warn("failed to stop daemon server",
			zap.Error(err))
	}

	return runErr
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
