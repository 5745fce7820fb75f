package main

import (
	"github.com/spf13/cobra"

	"github.com/imgk/divert-net"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "netdump",
	Short: "Divert, log and reinject packets",
	Long: `netdump opens a WinDivert session, logs every diverted packet with its
owning process and reinjects it unless running in sniff mode.

Settings come from the config file, NETDUMP_* environment variables and
flags, in increasing precedence.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("dll", divert.DefaultDLL, "WinDivert library to load")
	rootCmd.PersistentFlags().String("image", "", "load the WinDivert library from this file in memory")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")
	rootCmd.PersistentFlags().String("layer", divert.LayerNetwork.String(), "layer to open the session on")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}
