package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/quayside-run/durabletask/grpcsvc"
)

var (
	addr    string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "durabletaskctl",
	Short: "Operate a durabletask task hub over its gRPC admin surface",
	Long:  "durabletaskctl creates, raises events against, terminates, purges, and inspects orchestration instances on a running durabletask grpcsvc.Server.",
}

func init() {
	viper.SetEnvPrefix("DURABLETASKCTL")
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().StringVar(&addr, "addr", "localhost:4443", "grpcsvc.Server address")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "per-call timeout")
	_ = viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr"))

	rootCmd.AddCommand(createCmd, getCmd, raiseEventCmd, terminateCmd, purgeCmd)
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

// dialClient connects to the address bound by --addr/DURABLETASKCTL_ADDR.
// Callers are responsible for closing the returned connection.
func dialClient(ctx context.Context) (*grpcsvc.Client, func() error, error) {
	target := viper.GetString("addr")
	if target == "" {
		target = addr
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", target, err)
	}
	return grpcsvc.NewClient(conn), conn.Close, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}
