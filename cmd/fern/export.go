package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
)

func newExportCommand() *cobra.Command {
	var req models.ExportRequest

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one channel and wait for the run to finish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := utils.Validate(req); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runExport(ctx, req)
		},
	}

	cmd.Flags().IntVar(&req.ChannelID, "channel", 0, "PIM entity id of the channel to export")
	cmd.Flags().BoolVar(&req.Full, "full", false, "replace the whole catalog instead of merging")
	cmd.Flags().BoolVar(&req.SkipImport, "skip-import", false, "write the documents without sending them to commerce")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}

func runExport(ctx context.Context, req models.ExportRequest) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(shutdownCtx)
	}()

	start := time.Now()
	run, err := a.service.ExportChannel(ctx, req)
	if err != nil {
		return err
	}

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":       run.ID,
		"channel_id":   run.ChannelID,
		"full":         run.Full,
		"nodes":        run.NodeCount,
		"entries":      run.EntryCount,
		"relations":    run.RelationCount,
		"associations": run.AssociationCount,
		"resources":    run.ResourceCount,
		"catalog_file": run.CatalogFile,
		"duration":     time.Since(start).String(),
	}).Info("Export completed")
	return nil
}
