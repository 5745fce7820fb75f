package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/internal/netdump"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture packets until interrupted",
	Long: `Capture packets matching the filter until interrupted.

Examples:
  netdump run --filter "outbound and tcp.DstPort == 443"
  netdump run --sniff --pcap capture.pcap
  netdump run -c netdump.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDump(cmd)
	},
}

func init() {
	runCmd.Flags().StringP("filter", "f", "true", "WinDivert filter")
	runCmd.Flags().Int("priority", divert.PriorityDefault, "session priority")
	runCmd.Flags().Bool("sniff", false, "copy packets instead of diverting them")
	runCmd.Flags().Bool("async", true, "use overlapped I/O")
	runCmd.Flags().Bool("recalculate", false, "recalculate checksums before reinjecting")
	runCmd.Flags().String("pcap", "", "also write packets to this pcap file")
	runCmd.Flags().Bool("attribute", true, "resolve the owning process of each packet")
}

func runDump(cmd *cobra.Command) error {
	cfg, err := netdump.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	log, logCloser, err := netdump.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	divert.SetLogger(log)

	b, release, err := netdump.LoadBackend(cfg.Driver)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			log.WithError(err).Warn("release driver")
		}
	}()

	s, err := netdump.Open(b, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil && !errors.Is(err, divert.ErrHandleClosed) {
			log.WithError(err).Warn("close session")
		}
	}()

	opts, err := netdump.NewOptions(cfg, log)
	if err != nil {
		return err
	}
	if opts.Sink != nil {
		defer opts.Sink.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"filter": cfg.Filter,
		"layer":  cfg.Layer,
		"sniff":  cfg.Sniff,
		"async":  cfg.Async,
	}).Info("capture started")

	d := netdump.NewDumper(s, opts)
	err = d.Run(ctx)
	st := d.Stats()
	log.WithFields(logrus.Fields{
		"received":   st.Received,
		"unparsed":   st.Unparsed,
		"attributed": st.Attributed,
		"written":    st.Written,
		"reinjected": st.Reinjected,
	}).Info("capture stopped")
	return err
}
