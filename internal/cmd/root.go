// Package cmd implements the devicehub command line.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/internal/config"
	"github.com/Misakaka10086/IoT-Platform/internal/output"
)

var (
	cfgFile      string
	outputFormat string
	cfg          *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "devicehub",
	Short: "IoT device status service",
	Long: `devicehub receives EMQX webhooks for device connections and OTA reports,
keeps device status in PostgreSQL and pushes notifications to live subscribers.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if !output.ValidFormat(outputFormat) {
			return fmt.Errorf("invalid --output %q: use table, json or yaml", outputFormat)
		}
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/devicehub/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", output.FormatTable, "output format: table, json, yaml")
}

func newLogger() *logging.Logger {
	return logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("devicehub"))
}

// render writes v in the selected structured format, or calls table for the
// table format.
func render(w io.Writer, v any, table func(io.Writer)) error {
	handled, err := output.Structured(w, outputFormat, v)
	if err != nil || handled {
		return err
	}
	table(w)
	return nil
}
