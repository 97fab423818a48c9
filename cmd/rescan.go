package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var rescanCmd = &cobra.Command{
	Use:   "rescan [dir]",
	Short: "Schedule a catch-up scan on the running daemon",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dir string
		if len(args) == 1 {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("failed to resolve path: %w", err)
			}
			dir = abs
		}

		body, err := json.Marshal(map[string]string{"path": dir})
		if err != nil {
			return err
		}

		resp, err := http.Post(daemonURL("/rescan"), "application/json", strings.NewReader(string(body)))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode rescan response: %w", err)
		}

		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("rescan rejected: %s", result["error"])
		}

		fmt.Printf("%s: %s\n", result["path"], result["status"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rescanCmd)
}
