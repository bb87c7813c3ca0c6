package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/quayside-run/durabletask/internal/protos"
)

var (
	terminateOutput    string
	terminateRecursive bool
)

var terminateCmd = &cobra.Command{
	Use:   "terminate <instance-id>",
	Short: "Terminate a running orchestration instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeConn, err := dialClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeConn()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		req := &protos.TerminateRequest{
			InstanceId: args[0],
			Recursive:  &terminateRecursive,
		}
		if terminateOutput != "" {
			req.Output = wrapperspb.String(terminateOutput)
		}

		if _, err := client.Terminate(ctx, req); err != nil {
			return fmt.Errorf("terminate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "terminated %s\n", args[0])
		return nil
	},
}

func init() {
	terminateCmd.Flags().StringVar(&terminateOutput, "output", "", "completion output recorded for the terminated instance")
	terminateCmd.Flags().BoolVar(&terminateRecursive, "recursive", true, "also terminate sub-orchestrations")
}
