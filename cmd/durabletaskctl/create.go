package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/quayside-run/durabletask/internal/protos"
)

var (
	createInstanceID string
	createInput      string
	createReuseError bool
)

var createCmd = &cobra.Command{
	Use:   "create <orchestrator-name>",
	Short: "Start a new orchestration instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeConn, err := dialClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeConn()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		instanceID := createInstanceID
		if instanceID == "" {
			instanceID = uuid.NewString()
		}
		req := &protos.CreateInstanceRequest{
			InstanceId: instanceID,
			Name:       args[0],
		}
		if createInput != "" {
			req.Input = wrapperspb.String(createInput)
		}
		if createReuseError {
			req.OrchestrationIdReusePolicy = &protos.OrchestrationIdReusePolicy{
				Action: protos.CreateOrchestrationAction_ERROR,
			}
		}

		resp, err := client.CreateInstance(ctx, req)
		if err != nil {
			return fmt.Errorf("create instance: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.InstanceId)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createInstanceID, "instance-id", "", "instance id (a fresh uuid if empty)")
	createCmd.Flags().StringVar(&createInput, "input", "", "orchestrator input, passed through verbatim")
	createCmd.Flags().BoolVar(&createReuseError, "reject-duplicate", false, "send an explicit ERROR id-reuse policy; an existing instance with this id is rejected with or without this flag")
}
