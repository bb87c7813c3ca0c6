package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quayside-run/durabletask/internal/helpers"
	"github.com/quayside-run/durabletask/internal/protos"
)

var getFetchPayloads bool

var getCmd = &cobra.Command{
	Use:   "get <instance-id>",
	Short: "Fetch an orchestration instance's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeConn, err := dialClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeConn()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		resp, err := client.GetInstance(ctx, &protos.GetInstanceRequest{
			InstanceId:          args[0],
			GetInputsAndOutputs: getFetchPayloads,
		})
		if err != nil {
			return fmt.Errorf("get instance: %w", err)
		}
		if !resp.Exists {
			return fmt.Errorf("instance %q not found", args[0])
		}

		state := resp.OrchestrationState
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "instance_id: %s\n", state.InstanceId)
		fmt.Fprintf(out, "name:        %s\n", state.Name)
		fmt.Fprintf(out, "status:      %s\n", helpers.ToRuntimeStatusString(state.OrchestrationStatus))
		if getFetchPayloads {
			fmt.Fprintf(out, "input:       %s\n", protos.StrVal(state.Input))
			fmt.Fprintf(out, "output:      %s\n", protos.StrVal(state.Output))
		}
		return nil
	},
}

func init() {
	getCmd.Flags().BoolVar(&getFetchPayloads, "payloads", false, "also fetch input/output payloads")
}
