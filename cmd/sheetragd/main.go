package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/sheetrag/internal/cli"
	"github.com/cloo-solutions/sheetrag/internal/cli/daemon"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "sheetragd",
		Short:   "Sheetrag daemon",
		Long:    "Sheetrag daemon: indexes an Excel workbook and answers questions about it over HTTP",
		Version: version,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(daemon.ServeCmd())
	rootCmd.AddCommand(daemon.IndexCmd())
	rootCmd.AddCommand(daemon.MigrateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
