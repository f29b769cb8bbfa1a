package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/cloo-solutions/sheetrag/internal/api/handlers"
	"github.com/cloo-solutions/sheetrag/internal/pagination"
	"github.com/spf13/cobra"
)

// IndexCmd creates the index parent command.
func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the server's index",
	}

	cmd.AddCommand(RebuildCmd())
	cmd.AddCommand(clearCmd())
	cmd.AddCommand(jobsCmd())
	cmd.AddCommand(jobCmd())

	return cmd
}

// RebuildCmd creates the rebuild command. It is also registered at the top level.
func RebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Queue a rebuild of the index from the current workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runRebuild(cmd.OutOrStdout(), api, outputJSON)
		},
	}
}

func runRebuild(out io.Writer, api *APIClient, outputJSON bool) error {
	resp, err := api.Post("/index/rebuild", nil)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	var job handlers.JobResponse
	if err := json.Unmarshal(resp.Data, &job); err != nil {
		return fmt.Errorf("failed to parse job: %w", err)
	}
	if outputJSON {
		return printJSON(out, job)
	}
	fmt.Fprintf(out, "Rebuild queued: job %s\n", job.ID)
	return nil
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the index; queries return not_ready until the next rebuild",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete("/index"); err != nil {
				return fmt.Errorf("clear failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Index cleared")
			return nil
		},
	}
}

func jobsCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent rebuild jobs (postgres backend only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runJobs(cmd.OutOrStdout(), api, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runJobs(out io.Writer, api *APIClient, limit int, cursor string, outputJSON bool) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	resp, err := api.Get("/index/jobs?" + q.Encode())
	if err != nil {
		return err
	}

	var page pagination.PageResult[handlers.JobResponse]
	if err := json.Unmarshal(resp.Data, &page); err != nil {
		return fmt.Errorf("failed to parse jobs: %w", err)
	}
	if outputJSON {
		return printJSON(out, page)
	}

	if len(page.Items) == 0 {
		fmt.Fprintln(out, "No jobs found.")
		return nil
	}
	for _, j := range page.Items {
		fmt.Fprintf(out, "%s  %-10s %-8s %s\n", j.CreatedAt, j.Status, j.Trigger, j.ID)
		if j.Error != "" {
			fmt.Fprintf(out, "    %s\n", j.Error)
		}
	}
	if page.HasMore {
		fmt.Fprintf(out, "\nMore: sheetrag index jobs --cursor %s\n", page.Cursor)
	}
	return nil
}

func jobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show one rebuild job (postgres backend only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runJob(cmd.OutOrStdout(), api, args[0], outputJSON)
		},
	}
}

func runJob(out io.Writer, api *APIClient, id string, outputJSON bool) error {
	resp, err := api.Get("/index/jobs/" + url.PathEscape(id))
	if err != nil {
		return err
	}

	var job handlers.JobResponse
	if err := json.Unmarshal(resp.Data, &job); err != nil {
		return fmt.Errorf("failed to parse job: %w", err)
	}
	if outputJSON {
		return printJSON(out, job)
	}

	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	fmt.Fprintf(out, "Trigger:  %s\n", job.Trigger)
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt)
	if job.FinishedAt != nil {
		fmt.Fprintf(out, "Finished: %s\n", *job.FinishedAt)
	}
	if job.ManifestID != "" {
		fmt.Fprintf(out, "Index:    %s\n", job.ManifestID)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", job.Error)
	}
	return nil
}
