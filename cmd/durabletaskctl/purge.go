package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quayside-run/durabletask/internal/protos"
)

var purgeRecursive bool

var purgeCmd = &cobra.Command{
	Use:   "purge <instance-id>",
	Short: "Delete a completed orchestration instance's history and state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeConn, err := dialClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeConn()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		resp, err := client.PurgeInstances(ctx, &protos.PurgeInstancesRequest{
			InstanceId: args[0],
			Recursive:  &purgeRecursive,
		})
		if err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d instance(s)\n", resp.DeletedInstanceCount)
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeRecursive, "recursive", true, "also purge sub-orchestrations")
}
