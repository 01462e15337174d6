package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/catalog"
	"github.com/glorpus-work/hoard/pkg/model"
)

// NewAssetsCmd creates the assets command with subcommands.
func NewAssetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect and select catalog assets",
		Long:  "List the assets recorded in the local catalog and choose which ones are mirrored",
	}

	cmd.AddCommand(
		newAssetsListCmd(),
		newAssetsWantCmd(true),
		newAssetsWantCmd(false),
		newAssetsDeleteCmd(),
	)

	return cmd
}

type assetListFlags struct {
	provider string
	wanted   string
	status   string
}

func newAssetsListCmd() *cobra.Command {
	var flags assetListFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		Long: `List the assets in the local catalog with the number of downloaded files.

Status is one of complete, partial or missing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAssetsList(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.provider, "provider", "", "Only list assets of this provider")
	cmd.Flags().StringVar(&flags.wanted, "wanted", "", "Filter by selection (true or false)")
	cmd.Flags().StringVar(&flags.status, "status", "", "Filter by status (complete, partial, missing)")

	return cmd
}

func assetFilter(flags assetListFlags) (catalog.AssetFilter, error) {
	filter := catalog.AssetFilter{Provider: flags.provider}
	if flags.wanted != "" {
		wanted, err := strconv.ParseBool(flags.wanted)
		if err != nil {
			return filter, fmt.Errorf("invalid --wanted value %q: %w", flags.wanted, err)
		}
		filter.Wanted = &wanted
	}
	if flags.status != "" {
		status, err := model.ParseAssetStatus(flags.status)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	return filter, nil
}

func runAssetsList(ctx context.Context, out io.Writer, flags assetListFlags) error {
	filter, err := assetFilter(flags)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()

	assets, err := cat.ListAssets(ctxOrBackground(ctx), filter)
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}

	if cfg.Settings.OutputFormat == FormatJSON {
		return writeJSON(out, assets)
	}
	return renderAssets(out, assets)
}

func renderAssets(w io.Writer, assets []catalog.AssetSummary) error {
	if len(assets) == 0 {
		_, _ = fmt.Fprintln(w, "No assets in catalog")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROVIDER\tASSET\tTITLE\tCREATOR\tFILES\tWANTED\tSTATUS")
	for _, a := range assets {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%t\t%s\n",
			a.ID.Provider, a.ID.Remote, truncate(a.Title, MaxTitleLength), a.Creator,
			a.Downloaded, a.Files, a.Wanted, a.Status)
	}
	return tw.Flush()
}

func newAssetsWantCmd(wanted bool) *cobra.Command {
	use, short := "want PROVIDER ASSET", "Mirror an asset on the next sync"
	if !wanted {
		use, short = "unwant PROVIDER ASSET", "Stop mirroring an asset"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

Files that were already downloaded stay on disk.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := model.AssetID{Provider: args[0], Remote: args[1]}
			return withCatalog(func(cat *catalog.Catalog) error {
				if err := cat.SetWanted(ctxOrBackground(cmd.Context()), id, wanted); err != nil {
					return fmt.Errorf("failed to update asset %s: %w", id, err)
				}
				logger.Success("Asset updated", logger.Fields{"asset": id.String(), "wanted": wanted})
				return nil
			})
		},
	}
}

func newAssetsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete PROVIDER ASSET",
		Short: "Delete an asset from the catalog",
		Long: `Delete an asset and its file records from the catalog.

Downloaded files stay on disk. The asset is recorded again by the next sync
if the provider still lists it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := model.AssetID{Provider: args[0], Remote: args[1]}
			return withCatalog(func(cat *catalog.Catalog) error {
				if err := cat.DeleteAsset(ctxOrBackground(cmd.Context()), id); err != nil {
					return fmt.Errorf("failed to delete asset %s: %w", id, err)
				}
				logger.Success("Asset deleted", logger.Fields{"asset": id.String()})
				return nil
			})
		},
	}
}

// withCatalog loads the configuration and runs fn against the opened catalog.
func withCatalog(fn func(cat *catalog.Catalog) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()
	return fn(cat)
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
