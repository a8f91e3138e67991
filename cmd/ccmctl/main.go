package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ccmctl",
		Short:         "Create and drive local Cassandra, DSE and Scylla clusters through ccm",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newUpCommand())
	root.AddCommand(newDSEToCassandraCommand())
	root.AddCommand(newProtocolCommand())
	return root
}
