package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dealscanner",
		Short:         "Ingest deals from RSS feeds and deal APIs into one store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to YAML config (default $DEAL_SCANNER_CONFIG)")

	root.AddCommand(runCmd())
	root.AddCommand(enqueueCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(sourcesCmd())

	return root
}
