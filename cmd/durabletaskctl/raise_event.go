package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/quayside-run/durabletask/internal/protos"
)

var raiseEventInput string

var raiseEventCmd = &cobra.Command{
	Use:   "raise-event <instance-id> <event-name>",
	Short: "Raise an external event against a running orchestration instance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeConn, err := dialClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeConn()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		req := &protos.RaiseEventRequest{
			InstanceId: args[0],
			Name:       args[1],
		}
		if raiseEventInput != "" {
			req.Input = wrapperspb.String(raiseEventInput)
		}

		if _, err := client.RaiseEvent(ctx, req); err != nil {
			return fmt.Errorf("raise event: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "raised %s against %s\n", args[1], args[0])
		return nil
	},
}

func init() {
	raiseEventCmd.Flags().StringVar(&raiseEventInput, "input", "", "event payload, passed through verbatim")
}
