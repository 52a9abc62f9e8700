// Package cmd implements the CLI commands for zapengine.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/zapengine/internal/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "zapengine",
	Short:   "Live stream ingest, transcode, and HLS packaging service",
	Version: version.Short(),
	Long: `zapengine accepts RTMP/SRT publishes, transcodes and/or copies each
configured variant, segments the result into HLS fMP4, and enforces
per-user admission, balance, and viewer-count policy while a stream is
live.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, /etc/zapengine, $HOME/.zapengine)")
}
