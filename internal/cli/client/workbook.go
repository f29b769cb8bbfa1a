package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cloo-solutions/sheetrag/internal/api/handlers"
	"github.com/spf13/cobra"
)

// WorkbookCmd creates the workbook parent command.
func WorkbookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workbook",
		Short: "Upload or download the indexed workbook",
	}

	cmd.AddCommand(UploadCmd())
	cmd.AddCommand(downloadCmd())

	return cmd
}

// UploadCmd creates the upload command. It is also registered at the top level.
func UploadCmd() *cobra.Command {
	var noRebuild, quiet bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Replace the workbook and rebuild the index",
		Long:  "Uploads an .xlsx or .xls file. The server replaces its workbook and queues a rebuild unless --no-rebuild is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			var progress ProgressFunc
			if !quiet && !outputJSON {
				progress = printProgress(cmd.ErrOrStderr())
			}
			return runUpload(cmd.OutOrStdout(), api, args[0], !noRebuild, progress, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&noRebuild, "no-rebuild", false, "Store the workbook without rebuilding the index")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide upload progress")

	return cmd
}

func runUpload(out io.Writer, api *APIClient, path string, rebuild bool, progress ProgressFunc, outputJSON bool) error {
	resp, err := api.UploadWorkbook(path, rebuild, progress)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	var result handlers.UploadResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse upload response: %w", err)
	}

	if outputJSON {
		return printJSON(out, result)
	}

	fmt.Fprintf(out, "Uploaded %s (%d bytes)\n", filepath.Base(path), result.Size)
	if result.ArchiveKey != "" {
		fmt.Fprintf(out, "Archived as %s\n", result.ArchiveKey)
	}
	switch {
	case result.Job != nil:
		fmt.Fprintf(out, "Rebuild queued: job %s\n", result.Job.ID)
	case result.RebuildError != "":
		fmt.Fprintf(out, "Rebuild not queued: %s\n", result.RebuildError)
	}
	return nil
}

func downloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the archived copy of the current workbook",
		Long:  "Fetches a presigned URL for the archived workbook and saves it. Requires the server to have S3 archiving configured.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runDownload(cmd.OutOrStdout(), api, output)
		},
	}

	cmd.Flags().StringVarP(&output, "out", "o", "workbook.xlsx", "Output file")

	return cmd
}

func runDownload(out io.Writer, api *APIClient, output string) error {
	resp, err := api.Get("/workbook/url")
	if err != nil {
		return err
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil || payload.URL == "" {
		return fmt.Errorf("server returned no download URL")
	}

	if err := api.DownloadFileWithProgress(payload.URL, output, nil); err != nil {
		_ = os.Remove(output)
		return err
	}
	fmt.Fprintf(out, "Saved %s\n", output)
	return nil
}

func printProgress(w io.Writer) ProgressFunc {
	last := -1
	return func(current, total int64) {
		if total <= 0 {
			return
		}
		pct := int(current * 100 / total)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rUploading... %3d%%", pct)
		if current >= total {
			fmt.Fprintln(w)
		}
	}
}
