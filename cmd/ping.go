package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the remote storage API is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()

		client, err := newRemote(ctx)
		if err != nil {
			return err
		}

		if err := client.Ping(ctx, cfg.AnchorKeyword); err != nil {
			return err
		}

		fmt.Printf("%s is reachable\n", cfg.APIURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
