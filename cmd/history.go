package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/conntag/internal/tags"
)

var historyCmd = &cobra.Command{
	Use:   "history VALUE",
	Short: "Decode a packed static tag history",
	Long: `Decode a static tag history value into tag names, most recent first.
VALUE accepts decimal, 0x-prefixed hexadecimal or 0o-prefixed octal.

Examples:
  conntag history 0x0103
  conntag history 259`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(args[0], cmd.OutOrStdout())
	},
}

func runHistory(value string, out io.Writer) error {
	v, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid history value %q: %w", value, err)
	}

	decoded := tags.DecodeHistory(v)
	names := make([]string, 0, len(decoded))
	for _, t := range decoded {
		names = append(names, t.String())
	}
	if len(names) == 0 {
		names = append(names, "none")
	}
	fmt.Fprintln(out, strings.Join(names, " "))
	return nil
}
