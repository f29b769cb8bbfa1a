package client

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloo-solutions/sheetrag/internal/api/handlers"
	"github.com/spf13/cobra"
)

// StatusCmd creates the status command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index and workbook status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runStatus(cmd.OutOrStdout(), api, outputJSON)
		},
	}
}

func runStatus(out io.Writer, api *APIClient, outputJSON bool) error {
	resp, err := api.Get("/status")
	if err != nil {
		return err
	}

	var status handlers.StatusResponse
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return fmt.Errorf("failed to parse status: %w", err)
	}

	if outputJSON {
		return printJSON(out, status)
	}

	fmt.Fprintf(out, "Status:   %s\n", status.Status)

	wb := status.Workbook
	if wb.Exists {
		fmt.Fprintf(out, "Workbook: %s (%d bytes, modified %s)\n", wb.Path, wb.Size, wb.ModifiedAt)
		if !wb.Indexed {
			fmt.Fprintln(out, "          changed since the last index build")
		}
	} else {
		fmt.Fprintf(out, "Workbook: %s (missing)\n", wb.Path)
	}

	if idx := status.Index; idx != nil {
		fmt.Fprintf(out, "Index:    %s, %d units, %d chunks, %s mode\n", idx.ID, idx.UnitCount, idx.ChunkCount, idx.UnitMode)
		fmt.Fprintf(out, "          %s (%d dims), built %s\n", idx.EmbeddingModel, idx.Dimension, idx.CreatedAt)
	} else {
		fmt.Fprintln(out, "Index:    none")
	}

	ix := status.Indexing
	switch {
	case ix.Running && ix.CurrentJob != nil:
		fmt.Fprintf(out, "Indexing: running (job %s, %s)\n", ix.CurrentJob.ID, ix.CurrentJob.Trigger)
	case ix.LastJob != nil:
		fmt.Fprintf(out, "Indexing: last job %s %s\n", ix.LastJob.ID, ix.LastJob.Status)
	}
	if ix.LastError != "" {
		fmt.Fprintf(out, "          last error: %s\n", ix.LastError)
	}
	return nil
}
