package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediaforge/internal/api"
	"mediaforge/internal/config"
	"mediaforge/internal/store"
	"mediaforge/internal/submit"
)

func parseAssetID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid asset id %q", arg)
	}
	return id, nil
}

// submitJob sends a job request to the daemon and prints the accepted id.
func submitJob(cmd *cobra.Command, ctx *commandContext, kind store.Kind, assetID int64, params store.Params) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	client, err := ctx.client()
	if err != nil {
		return err
	}
	resp, err := client.Submit(cmd.Context(), api.SubmitRequest{Kind: string(kind), AssetID: assetID, Params: raw})
	if err != nil {
		return err
	}
	return printSubmission(cmd, ctx, resp.Job)
}

func printSubmission(cmd *cobra.Command, ctx *commandContext, sub submit.Submission) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, sub)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s job %s for asset %d\n", kindLabel(string(sub.Kind)), sub.JobID, sub.AssetID)
	return nil
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a media file and queue its ingest job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Upload(cmd.Context(), path)
			if err != nil {
				return err
			}
			return printSubmission(cmd, ctx, resp.Job)
		},
	}
}

func newTrimCommand(ctx *commandContext) *cobra.Command {
	var start, end float64
	cmd := &cobra.Command{
		Use:   "trim <asset-id>",
		Short: "Cut an asset to the [start, end) range in seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID, err := parseAssetID(args[0])
			if err != nil {
				return err
			}
			return submitJob(cmd, ctx, store.KindTrim, assetID, store.TrimParams{Start: start, End: end})
		},
	}
	cmd.Flags().Float64Var(&start, "start", 0, "Start time in seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "End time in seconds")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newQualityCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "quality <asset-id> <1080p|720p|480p>",
		Short: "Re-encode an asset at a quality tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID, err := parseAssetID(args[0])
			if err != nil {
				return err
			}
			return submitJob(cmd, ctx, store.KindQuality, assetID, store.QualityParams{Quality: args[1]})
		},
	}
}

func newOverlayCommand(ctx *commandContext) *cobra.Command {
	overlayCmd := &cobra.Command{
		Use:   "overlay",
		Short: "Composite b-roll video or an image over an asset",
	}
	overlayCmd.AddCommand(newOverlayKindCommand(ctx, "broll", "Overlay a b-roll clip (catalog name or path)", store.KindBRollOverlay))
	overlayCmd.AddCommand(newOverlayKindCommand(ctx, "image", "Overlay an image (catalog name or path)", store.KindImageOverlay))
	return overlayCmd
}

func newOverlayKindCommand(ctx *commandContext, use, short string, kind store.Kind) *cobra.Command {
	var position string
	var start, end float64
	cmd := &cobra.Command{
		Use:   use + " <asset-id> <source>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID, err := parseAssetID(args[0])
			if err != nil {
				return err
			}
			params := store.OverlayParams{OverlayPath: args[1], Position: position, Start: start}
			if cmd.Flags().Changed("end") {
				params.End = &end
			}
			return submitJob(cmd, ctx, kind, assetID, params)
		},
	}
	cmd.Flags().StringVar(&position, "position", "bottom-right", "top-left, top-right, bottom-left, bottom-right, or center")
	cmd.Flags().Float64Var(&start, "start", 0, "Show the overlay from this time in seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "Hide the overlay after this time in seconds")
	return cmd
}

func newWatermarkCommand(ctx *commandContext) *cobra.Command {
	var position string
	cmd := &cobra.Command{
		Use:   "watermark <asset-id> <image>",
		Short: "Burn a watermark image into an asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID, err := parseAssetID(args[0])
			if err != nil {
				return err
			}
			return submitJob(cmd, ctx, store.KindWatermark, assetID, store.WatermarkParams{WatermarkPath: args[1], Position: position})
		},
	}
	cmd.Flags().StringVar(&position, "position", "bottom-right", "top-left, top-right, bottom-left, bottom-right, or center")
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show the status of one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Job(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp.Job)
			}
			printJob(cmd.OutOrStdout(), resp.Job)
			return nil
		},
	}
}

func printJob(out io.Writer, job submit.JobView) {
	fmt.Fprintf(out, "Job:       %s\n", job.JobID)
	fmt.Fprintf(out, "Kind:      %s\n", kindLabel(string(job.Kind)))
	fmt.Fprintf(out, "Status:    %s\n", statusLabel(string(job.Status)))
	fmt.Fprintf(out, "Asset:     %d\n", job.AssetID)
	fmt.Fprintf(out, "Created:   %s\n", formatWhen(&job.CreatedAt))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "Finished:  %s\n", formatWhen(job.CompletedAt))
	}
	if produced, ok := job.Parameters["produced_asset_id"]; ok {
		fmt.Fprintf(out, "Produced:  %v\n", produced)
	}
	if msg, ok := job.Parameters["error"]; ok {
		fmt.Fprintf(out, "Error:     %v\n", msg)
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var assetID int64
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Jobs(cmd.Context(), statuses, assetID, limit)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp.Jobs)
			}
			out := cmd.OutOrStdout()
			if len(resp.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			rows := make([][]string, 0, len(resp.Jobs))
			for _, job := range resp.Jobs {
				rows = append(rows, []string{
					job.JobID,
					kindLabel(string(job.Kind)),
					statusLabel(string(job.Status)),
					formatID(job.AssetID),
					formatWhen(&job.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Kind", "Status", "Asset", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending, processing, completed, failed)")
	cmd.Flags().Int64Var(&assetID, "asset", 0, "Filter by input asset id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs to list")
	return cmd
}
