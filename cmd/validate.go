package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/conntag/internal/classify"
	"firestige.xyz/conntag/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration, build every configured detector and
print the effective capacities.

Examples:
  conntag validate -c conntag.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(globalCfg, cmd.OutOrStdout())
	},
}

func runValidate(cfg *config.GlobalConfig, out io.Writer) error {
	if _, err := classify.NewDetectors(cfg.Classify.Detectors); err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	names := make([]string, 0, len(cfg.Classify.Detectors))
	for _, d := range cfg.Classify.Detectors {
		names = append(names, d.Name)
	}
	fmt.Fprintf(out, "VALID: tagmap.max_entries=%d stats.max_entries=%d workers=%d detectors=[%s]\n",
		cfg.TagMap.MaxEntries,
		cfg.Stats.MaxEntries,
		cfg.Classify.Workers,
		strings.Join(names, " "),
	)
	return nil
}
