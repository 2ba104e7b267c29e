package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/conntag/internal/capture"
	"firestige.xyz/conntag/internal/classify"
	"firestige.xyz/conntag/internal/metrics"
)

var (
	captureIface    string
	captureDuration time.Duration
	captureOutput   string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Classify connections on a live interface",
	Long: `Capture on a live interface until interrupted or until --duration elapses,
then print the connection report. Prometheus metrics are served while capturing
when metrics.enabled is set.

Examples:
  conntag capture -i eth0
  conntag capture -i eth0 -d 30s -o yaml
  conntag capture -c conntag.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *globalCfg
		if captureIface != "" {
			cfg.Capture.Interface = captureIface
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if captureDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, captureDuration)
			defer cancel()
		}

		if cfg.Metrics.Enabled {
			srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Stop(shutdownCtx); err != nil {
					slog.Warn("metrics server shutdown failed", "error", err)
				}
			}()
		}

		// The filter runs in the kernel, so the engine does not filter again.
		src, err := capture.OpenLive(capture.LiveOptions{
			Interface:    cfg.Capture.Interface,
			Mode:         cfg.Capture.Mode,
			SnapLen:      cfg.Classify.SnapLen,
			Promiscuous:  cfg.Capture.Promiscuous,
			Timeout:      cfg.Capture.ReadTimeout(),
			Filter:       cfg.Classify.Filter,
			BufferSizeMB: cfg.Capture.BufferSizeMB,
			FanoutID:     cfg.Capture.FanoutID,
		})
		if err != nil {
			return err
		}
		defer src.Close()

		return runClassify(ctx, &cfg, src, nil, captureOutput, os.Stdout)
	},
}

func init() {
	captureCmd.Flags().StringVarP(&captureIface, "interface", "i", "", "interface to capture on (overrides capture.interface)")
	captureCmd.Flags().DurationVarP(&captureDuration, "duration", "d", 0, "stop after this duration (0 runs until interrupted)")
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", classify.FormatJSON, "report format: json or yaml")
}
