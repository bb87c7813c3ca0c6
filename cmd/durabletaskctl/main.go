// Command durabletaskctl is an operator CLI for talking to a running
// grpcsvc.Server: create, raise-event, terminate, purge, and get, one
// subcommand per RPC. The --addr flag falls back to the
// DURABLETASKCTL_ADDR environment variable via viper.
package main

import "os"

func main() {
	os.Exit(Execute())
}
