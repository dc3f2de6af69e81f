package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mediaforge/internal/api"
	"mediaforge/internal/config"
	"mediaforge/internal/logging"
	"mediaforge/internal/store"
	"mediaforge/internal/submit"
)

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	assetsCmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect and export media assets",
	}
	assetsCmd.AddCommand(newAssetsListCommand(ctx))
	assetsCmd.AddCommand(newAssetsTreeCommand(ctx))
	assetsCmd.AddCommand(newAssetsExportCommand(ctx))
	return assetsCmd
}

func newAssetsListCommand(ctx *commandContext) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Assets(cmd.Context(), offset, limit)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp.Assets)
			}
			out := cmd.OutOrStdout()
			if len(resp.Assets) == 0 {
				fmt.Fprintln(out, "No assets")
				return nil
			}
			rows := make([][]string, 0, len(resp.Assets))
			for _, asset := range resp.Assets {
				parent := "-"
				if asset.ParentID != nil {
					parent = formatID(*asset.ParentID)
				}
				quality := asset.Quality
				if quality == "" {
					quality = "-"
				}
				rows = append(rows, []string{
					formatID(asset.ID),
					asset.Name,
					quality,
					formatSeconds(asset.DurationSeconds),
					formatBytes(asset.SizeBytes),
					parent,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Quality", "Duration", "Size", "Parent"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many assets")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of assets to list (0 for all)")
	return cmd
}

func newAssetsTreeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <asset-id>",
		Short: "Show an asset and everything derived from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAssetID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			root, err := loadAssetTree(cmd.Context(), client, id)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, root)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAssetTree(root))
			return nil
		},
	}
}

// loadAssetTree walks derivatives depth first. Parent links form a tree, so
// the walk terminates.
func loadAssetTree(ctx context.Context, client *api.Client, id int64) (assetNode, error) {
	resp, err := client.Asset(ctx, id)
	if err != nil {
		return assetNode{}, err
	}
	node := assetNode{Asset: resp.Asset}
	for _, child := range resp.Children {
		sub, err := loadAssetTree(ctx, client, child.ID)
		if err != nil {
			return assetNode{}, err
		}
		node.Children = append(node.Children, sub)
	}
	return node, nil
}

func newAssetsExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <asset-id> <directory>",
		Short: "Copy an asset's media file out of the media directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAssetID(args[0])
			if err != nil {
				return err
			}
			dest, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create export directory: %w", err)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			// Export reads the store directly; no dispatcher is needed.
			svc := submit.NewService(cfg, st, nil, logging.NewNop())
			target, err := svc.ExportAsset(cmd.Context(), id, dest)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]string{"path": target})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported asset %d to %s\n", id, target)
			return nil
		},
	}
}

func newOverlaysCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "overlays",
		Short: "List the b-roll and image overlay catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Overlays(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp.Overlays)
			}
			out := cmd.OutOrStdout()
			if len(resp.Overlays) == 0 {
				fmt.Fprintln(out, "Overlay catalog is empty")
				return nil
			}
			rows := make([][]string, 0, len(resp.Overlays))
			for _, overlay := range resp.Overlays {
				kind := "image"
				if overlay.IsVideo() {
					kind = "broll"
				}
				rows = append(rows, []string{overlay.Name, kind, overlay.MediaType, formatBytes(overlay.SizeBytes)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Use", "Type", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}
