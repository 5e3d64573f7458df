// WaybillPack extracts shipping waybills from PDF documents and packs them
// four per A4 sheet for printing.
//
// Build:
//
//	go build -o waybillpack ./cmd/waybillpack
//
// Usage:
//
//	waybillpack pack batch.zip -o merged_output.pdf
//	waybillpack serve --config config.yaml
//
// Rasterization requires pdftoppm from poppler-utils.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "waybillpack",
		Short: "Pack shipping waybills four per printable sheet",
		Long: `waybillpack splits every page of the input PDFs into quadrants, drops the
blank ones, trims the white margins and repacks the waybills four per A4 sheet
into a single print-ready PDF.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default: ./config.* or ~/.waybillpack/config.*)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log level: debug, info, warn, error")

	rootCmd.AddCommand(newPackCmd(flags), newServeCmd(flags), newConfigCmd(flags))
	return rootCmd
}
