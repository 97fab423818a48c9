package cmd

import (
	"encoding/json"
	"filemirror/internal/model"
	"filemirror/internal/repository"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Agent   model.AgentSnapshot `json:"agent"`
			History *repository.Stats   `json:"history"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		snap := result.Agent
		lastSync := "-"
		if snap.LastSync != nil {
			lastSync = snap.LastSync.Format("2006-01-02 15:04:05")
		}

		fmt.Printf("watching:  %s\n", snap.WatchDir)
		fmt.Printf("uptime:    %s\n", time.Since(snap.StartedAt).Round(time.Second))
		fmt.Printf("workers:   %d\n", snap.Workers)
		fmt.Printf("events:    %d received, %d dropped\n", snap.Received, snap.Dropped)
		fmt.Printf("pending:   %d queued, %d scans\n", snap.QueueLength, snap.PendingScans)
		fmt.Printf("synced:    %d (%d failed)\n", snap.Synced, snap.Failed)
		fmt.Printf("last sync: %s\n", lastSync)

		if result.History != nil {
			fmt.Printf("history:   %d total, %d success, %d failed\n",
				result.History.Total, result.History.Success, result.History.Failed)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
