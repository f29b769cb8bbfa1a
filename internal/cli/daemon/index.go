package daemon

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/sheetrag/internal/config"
	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/telemetry"
	"github.com/spf13/cobra"
)

// IndexCmd returns the offline index command
func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the index without starting the server",
		Long:  "Extract, chunk and embed the workbook and replace the persisted index. Exits non-zero when the rebuild fails; the previous index is kept.",
		RunE:  runIndex,
	}

	cmd.Flags().StringP("workbook", "w", "", "Workbook to index (default SHEETRAG_WORKBOOK_PATH)")
	cmd.Flags().Bool("force", false, "Rebuild even when the index is up to date")
	cmd.Flags().Bool("clear", false, "Delete the index instead of building it")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if path, _ := cmd.Flags().GetString("workbook"); path != "" {
		cfg.WorkbookPath = path
	}

	if shutdown := initTelemetry(); shutdown != nil {
		defer shutdown()
	}
	ctx, span := telemetry.StartTransaction(ctx, "sheetragd index", "index.offline")
	defer span.End()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		span.SetError(err)
		return err
	}
	defer app.Close()
	app.RecoverInterruptedJobs(ctx)

	clearIndex, _ := cmd.Flags().GetBool("clear")
	force, _ := cmd.Flags().GetBool("force")
	if err := indexWorkbook(ctx, cmd, app, force, clearIndex); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

func indexWorkbook(ctx context.Context, cmd *cobra.Command, app *App, force, clearIndex bool) error {
	out := cmd.OutOrStdout()

	if clearIndex {
		if err := app.Index.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "index cleared")
		return nil
	}

	path := app.Workbook.Path()
	if !app.Workbook.Exists() {
		return domain.Wrap(domain.ErrWorkbookNotFound, fmt.Errorf("%s", path))
	}

	if !force {
		needs, _, err := app.Index.NeedsRebuild(ctx, path)
		if err != nil {
			return err
		}
		if !needs {
			fmt.Fprintf(out, "index is up to date with %s\n", path)
			return nil
		}
	}

	log.Printf("indexing %s", path)
	manifest, err := app.Index.Rebuild(ctx, path, domain.IndexTriggerManual)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "indexed %s: %d units, %d chunks (index %s)\n",
		path, manifest.UnitCount, manifest.ChunkCount, manifest.ID)
	return nil
}
