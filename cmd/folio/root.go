package main

import (
	"github.com/spf13/cobra"

	"github.com/seforimlab/folio/internal/api"
	"github.com/seforimlab/folio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Asynchronous ingestion pipeline for scanned seforim",
	Long: `Folio ingests uploaded PDF documents through a durable background
job queue and writes structured text to a content store.

The pipeline includes:
  - Native text layer extraction
  - Heuristic footnote detection for Hebrew texts
  - OCR fallback for scanned pages with a merge policy
  - Structured persistence as documents, paragraphs, and statements`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "folio home directory (default: ~/.folio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
