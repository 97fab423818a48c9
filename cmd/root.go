package cmd

import (
	"context"
	"filemirror/internal/config"
	"filemirror/internal/db"
	"filemirror/internal/logger"
	"filemirror/internal/remote"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg   *config.Config
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "filemirror",
	Short: "Mirror a local tenant tree into remote storage",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		logger.Init(logger.Options{
			Debug:      debug,
			File:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		})

		daemonCmds := map[string]bool{
			"watch": true, "sync": true,
		}
		if daemonCmds[cmd.Name()] {
			if err := db.Init(cfg.DBPath); err != nil {
				return err
			}
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", cfg.DaemonPort, path)
}

func newRemote(ctx context.Context) (*remote.Client, error) {
	return remote.New(ctx, remote.Options{
		BaseURL:      cfg.APIURL,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		TokenCache:   cfg.TokenCache,
		Timeout:      cfg.RequestTimeout,
	})
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
}
