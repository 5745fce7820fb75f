package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/internal/netdump"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the driver version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := netdump.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}
		b, release, err := netdump.LoadBackend(cfg.Driver)
		if err != nil {
			return err
		}
		defer release()

		ver, err := divert.VersionOf(b)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ver)
		return nil
	},
}
