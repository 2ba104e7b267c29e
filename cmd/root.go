// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/conntag/internal/config"
	"firestige.xyz/conntag/internal/log"
)

var (
	// Global flags
	configFile string

	// globalCfg is loaded before any subcommand runs.
	globalCfg *config.GlobalConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "conntag",
	Short: "conntag - connection protocol tagging",
	Long: `conntag classifies the application protocol of network connections and
records it as connection tags: a bounded per-connection tag buffer and a
packed history of static protocol codes kept with each connection's statistics.

Packets come from pcap/pcapng files or a live interface. Detected protocols:
HTTP/1.x, HTTP/2 (prior knowledge), TLS and SIP.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := log.Init(cfg.Log); err != nil {
			return fmt.Errorf("failed to init logging: %w", err)
		}
		globalCfg = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults apply when empty)")

	// Add subcommands
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
}
