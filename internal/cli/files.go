package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/catalog"
	"github.com/glorpus-work/hoard/pkg/model"
)

// NewFilesCmd creates the files command with subcommands.
func NewFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Inspect and manage the files of an asset",
	}

	cmd.AddCommand(
		newFilesListCmd(),
		newFilesRemoveCmd(),
		newFilesRestoreCmd(),
	)

	return cmd
}

func newFilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list PROVIDER ASSET",
		Short: "List the files of an asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = cat.Close() }()

			files, err := cat.ListFiles(ctxOrBackground(cmd.Context()), model.AssetID{Provider: args[0], Remote: args[1]})
			if err != nil {
				return fmt.Errorf("failed to list files: %w", err)
			}
			if cfg.Settings.OutputFormat == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), files)
			}
			return renderFiles(cmd.OutOrStdout(), files)
		},
	}
}

func fileState(f model.File) string {
	switch {
	case f.Removed:
		return "removed"
	case f.Downloaded():
		return "downloaded"
	default:
		return "pending"
	}
}

func renderFiles(w io.Writer, files []model.File) error {
	if len(files) == 0 {
		_, _ = fmt.Fprintln(w, "No files recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FILE\tFILENAME\tSIZE\tSTATE\tPATH")
	for _, f := range files {
		path := f.Path
		if path == "" {
			path = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.ID.Remote, f.Filename, formatBytes(f.Size), fileState(f), path)
	}
	return tw.Flush()
}

func newFilesRemoveCmd() *cobra.Command {
	var deleteLocal bool

	cmd := &cobra.Command{
		Use:     "remove PROVIDER FILE",
		Aliases: []string{"removed"},
		Short:   "Mark a file removed so it is never downloaded again",
		Long: `Mark a file removed. Syncs skip removed files until they are restored.

With --delete the local copy is deleted as well.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := model.FileID{Provider: args[0], Remote: args[1]}
			return withCatalog(func(cat *catalog.Catalog) error {
				ctx := ctxOrBackground(cmd.Context())
				f, err := cat.GetFile(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to look up file %s: %w", id, err)
				}
				if err := cat.MarkRemoved(ctx, id); err != nil {
					return fmt.Errorf("failed to mark file %s removed: %w", id, err)
				}
				if deleteLocal && f.Path != "" {
					if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
						return fmt.Errorf("failed to delete %s: %w", f.Path, err)
					}
				}
				logger.Success("File marked removed", logger.Fields{"file": id.String()})
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&deleteLocal, "delete", false, "Delete the downloaded copy")

	return cmd
}

func newFilesRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore PROVIDER FILE",
		Short: "Clear the removed mark so the next sync downloads the file again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := model.FileID{Provider: args[0], Remote: args[1]}
			return withCatalog(func(cat *catalog.Catalog) error {
				if err := cat.ResetRemoved(ctxOrBackground(cmd.Context()), id); err != nil {
					return fmt.Errorf("failed to restore file %s: %w", id, err)
				}
				logger.Success("File restored", logger.Fields{"file": id.String()})
				return nil
			})
		},
	}
}
