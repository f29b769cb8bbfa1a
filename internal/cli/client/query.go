package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloo-solutions/sheetrag/internal/api/handlers"
	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/spf13/cobra"
)

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the workbook",
		Long:  "Retrieves the most relevant rows and asks the model to answer from them.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAsk(cmd.OutOrStdout(), api, strings.Join(args, " "), showSources, outputJSON)
		},
	}

	cmd.Flags().BoolVarP(&showSources, "sources", "s", true, "Print the rows the answer was drawn from")

	return cmd
}

func runAsk(out io.Writer, api *APIClient, question string, showSources, outputJSON bool) error {
	var resp handlers.QueryResponse
	// 503 carries a not_ready answer body
	if _, err := api.PostRaw("/query", handlers.QueryRequest{Query: question}, &resp, http.StatusServiceUnavailable); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if outputJSON {
		return printJSON(out, resp)
	}

	fmt.Fprintln(out, resp.Answer)
	if resp.Status != string(domain.AnswerStatusOK) || !showSources || len(resp.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(out, "\nSources:")
	for _, src := range resp.Sources {
		fmt.Fprintf(out, "  - %s (%.2f)\n", sourceLabel(src.Metadata), src.Score)
	}
	return nil
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		limit    int
		minScore float32
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search workbook rows",
		Long:  "Runs a similarity search over the index without generating an answer.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			req := handlers.SearchRequest{Query: strings.Join(args, " "), Limit: limit}
			if cmd.Flags().Changed("min-score") {
				req.MinScore = &minScore
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSearch(cmd.OutOrStdout(), api, req, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default: server top-k)")
	cmd.Flags().Float32Var(&minScore, "min-score", 0, "Minimum similarity score (default: server threshold)")

	return cmd
}

func runSearch(out io.Writer, api *APIClient, req handlers.SearchRequest, outputJSON bool) error {
	resp, err := api.Post("/search", req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var result handlers.SearchResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	if outputJSON {
		return printJSON(out, result)
	}

	if len(result.Results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d results:\n\n", len(result.Results))
	for i, r := range result.Results {
		fmt.Fprintf(out, "%d. %s (%.2f)\n", i+1, sourceLabel(r.Metadata), r.Score)
		fmt.Fprintf(out, "   %s\n", truncate(oneLine(r.Content), 120))
	}
	return nil
}

func sourceLabel(m domain.ChunkMetadata) string {
	label := "Sheet '" + m.Sheet + "'"
	if rows := m.RowLabel(); rows != "" {
		if m.RowEnd > m.RowStart {
			label += ", rows " + rows
		} else {
			label += ", row " + rows
		}
	}
	return label
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
