package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the saved server connection",
		Long:  "Save, clear and show the server URL and API key used by sheetrag",
	}

	cmd.AddCommand(authLoginCmd())
	cmd.AddCommand(authLogoutCmd())
	cmd.AddCommand(authShowCmd())

	return cmd
}

func authLoginCmd() *cobra.Command {
	var apiKey, apiURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the server URL and API key",
		Long:  "Store the server URL and API key in the global config (<user config dir>/sheetrag/config.json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.OutOrStdout(), apiKey, apiURL)
		},
	}

	cmd.Flags().StringVar(&apiKey, "key", "", "API key (leave empty for servers without auth)")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "Server URL")

	return cmd
}

func authLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved connection removed")
			return nil
		},
	}
}

func authShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the connection sheetrag will use",
		RunE: func(cmd *cobra.Command, args []string) error {
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")
			conn, err := ResolveConnection(flagKey, flagURL)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return printConnection(cmd.OutOrStdout(), conn, outputJSON)
		},
	}
}

func runAuthLogin(out io.Writer, apiKey, apiURL string) error {
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if !strings.HasPrefix(apiURL, "http://") && !strings.HasPrefix(apiURL, "https://") {
		return fmt.Errorf("invalid server URL %q (expected http:// or https://)", apiURL)
	}

	config := &GlobalConfig{
		APIKey: strings.TrimSpace(apiKey),
		APIURL: apiURL,
	}
	if err := SaveGlobalConfig(config); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintf(out, "Saved connection to %s\n", apiURL)
	return nil
}

func printConnection(out io.Writer, conn Connection, outputJSON bool) error {
	if outputJSON {
		data, err := json.MarshalIndent(map[string]any{
			"api_url": conn.APIURL,
			"api_key": maskAPIKey(conn.APIKey),
			"source":  string(conn.Source),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal connection: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "API URL: %s (%s)\n", conn.APIURL, conn.Source)
	if conn.APIKey == "" {
		fmt.Fprintln(out, "API Key: none")
	} else {
		fmt.Fprintf(out, "API Key: %s\n", maskAPIKey(conn.APIKey))
	}
	return nil
}

func maskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) < 12 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
