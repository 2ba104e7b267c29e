package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/conntag/internal/capture"
	"firestige.xyz/conntag/internal/classify"
)

var (
	readFile     string
	filterExpr   string
	outputFormat string
	workers      int
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify connections in a capture file",
	Long: `Read a pcap or pcapng file, classify every connection and print a report
of connection tags and statistics.

Examples:
  conntag classify -r trace.pcap
  conntag classify -r trace.pcapng --filter "tcp port 80" -o yaml
  conntag classify -c conntag.yml -r trace.pcap -w 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *globalCfg
		if cmd.Flags().Changed("workers") {
			cfg.Classify.Workers = workers
		}
		if cmd.Flags().Changed("filter") {
			cfg.Classify.Filter = filterExpr
		}

		src, err := capture.OpenFile(readFile)
		if err != nil {
			return err
		}
		defer src.Close()

		var filter *classify.Filter
		if cfg.Classify.Filter != "" {
			prog, err := capture.CompileFilter(cfg.Classify.Filter, cfg.Classify.SnapLen, src.LinkType())
			if err != nil {
				return err
			}
			if filter, err = classify.NewFilter(prog); err != nil {
				return fmt.Errorf("failed to load filter: %w", err)
			}
		}

		return runClassify(cmd.Context(), &cfg, src, filter, outputFormat, os.Stdout)
	},
}

func init() {
	classifyCmd.Flags().StringVarP(&readFile, "read", "r", "", "pcap or pcapng file to read (required)")
	classifyCmd.Flags().StringVar(&filterExpr, "filter", "", "libpcap filter expression")
	classifyCmd.Flags().StringVarP(&outputFormat, "output", "o", classify.FormatJSON, "report format: json or yaml")
	classifyCmd.Flags().IntVarP(&workers, "workers", "w", 1, "number of classifier workers")
	classifyCmd.MarkFlagRequired("read")
}
