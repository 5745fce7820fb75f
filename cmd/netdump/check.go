package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/internal/netdump"
)

var checkCmd = &cobra.Command{
	Use:   "check <filter>",
	Short: "Check that a filter compiles",
	Long: `Compile a filter with the driver's filter compiler without opening a session.

Examples:
  netdump check "tcp and tcp.DstPort == 80"
  netdump check --layer flow "remotePort == 53"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd, args[0])
	},
}

func runCheck(cmd *cobra.Command, filter string) error {
	cfg, err := netdump.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	b, release, err := netdump.LoadBackend(cfg.Driver)
	if err != nil {
		return err
	}
	defer release()

	if err := divert.CheckFilter(b, filter, cfg.LayerValue()); err != nil {
		var fe *divert.FilterError
		if errors.As(err, &fe) {
			fmt.Fprintf(cmd.OutOrStdout(), "INVALID: %s at position %d\n", fe.Msg, fe.Pos)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "VALID: %q on %v layer\n", filter, cfg.LayerValue())
	return nil
}
