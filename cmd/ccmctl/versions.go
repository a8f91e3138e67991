package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/ccmbridge/internal/version"
)

func newDSEToCassandraCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dse-to-cassandra <dse-version>",
		Short: "Print the Cassandra version bundled with a DSE release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dse, err := version.Parse(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.CassandraForDSE(dse))
			return nil
		},
	}
}

func newProtocolCommand() *cobra.Command {
	var dse bool
	cmd := &cobra.Command{
		Use:   "protocol <version>",
		Short: "Print the newest native protocol version a release speaks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := version.Parse(args[0])
			if err != nil {
				return err
			}
			if dse {
				v = version.CassandraForDSE(v)
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.Protocol(v))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dse, "dse", false, "Treat the argument as a DSE version")
	return cmd
}
