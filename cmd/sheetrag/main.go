package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/sheetrag/internal/cli"
	"github.com/cloo-solutions/sheetrag/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "sheetrag",
		Short: "Sheetrag CLI - ask questions about an indexed workbook",
		Long: `Sheetrag CLI talks to a running sheetragd server.

Environment variables:
  SHEETRAG_API_URL   Server URL (default: http://localhost:8000)
  SHEETRAG_API_KEY   API key, when the server requires one`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "Server URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.StatusCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.UploadCmd())
	rootCmd.AddCommand(client.RebuildCmd())
	rootCmd.AddCommand(client.WorkbookCmd())
	rootCmd.AddCommand(client.IndexCmd())
	rootCmd.AddCommand(client.AuthCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
