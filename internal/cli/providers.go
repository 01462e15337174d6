package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/archive"
	"github.com/glorpus-work/hoard/pkg/provider"
)

// privateKeyMode keeps signing keys readable by the owner only.
const privateKeyMode = 0o600

// NewProvidersCmd creates the providers command with subcommands.
func NewProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Manage provider plugins",
		Long:  "List, enable and disable provider plugins, and pack and sign new ones",
	}

	cmd.AddCommand(
		newProvidersListCmd(),
		newProvidersEnableCmd(true),
		newProvidersEnableCmd(false),
		newProvidersPackCmd(),
		newProvidersSignCmd(),
		newProvidersKeygenCmd(),
	)

	return cmd
}

func newProvidersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered and rejected providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, _, err := newRegistry(ctxOrBackground(cmd.Context()), cfg)
			if err != nil {
				return err
			}
			entries := reg.List()
			if cfg.Settings.OutputFormat == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			return renderProviders(cmd.OutOrStdout(), entries)
		},
	}
}

func renderProviders(w io.Writer, entries []provider.Entry) error {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No providers found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tVERSION\tAPI\tKIND\tTRUST\tENABLED\tREASON")
	for _, e := range entries {
		reason := e.Reason
		if reason == "" {
			reason = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			e.ID, e.Name, e.Version, e.APIVersion, e.Kind, e.Trust, e.Enabled, reason)
	}
	return tw.Flush()
}

func newProvidersEnableCmd(enabled bool) *cobra.Command {
	use, short := "enable ID", "Include a provider in syncs"
	if !enabled {
		use, short = "disable ID", "Exclude a provider from syncs"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.SetProviderEnabled(args[0], enabled); err != nil {
				return err
			}
			if err := cfg.SaveConfig(getConfigPath()); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			logger.Success("Provider updated", logger.Fields{"provider": args[0], "enabled": enabled})
			return nil
		},
	}
}

func newProvidersPackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pack DIR OUTPUT",
		Short: "Pack a plugin directory into a " + archive.Extension + " package",
		Long: `Pack a plugin directory into a single package file that can be dropped
into the plugin directory. The manifest is validated first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := ctxOrBackground(cmd.Context())
			pkg, err := provider.LoadPackage(ctx, args[0])
			if err != nil {
				return fmt.Errorf("invalid plugin directory: %w", err)
			}
			if pkg.Signature == "" {
				logger.Warn("Packing an unsigned plugin; it will be rejected on load", logger.Fields{"dir": args[0]})
			}
			if err := archive.Create(ctx, args[0], args[1]); err != nil {
				return fmt.Errorf("failed to pack plugin: %w", err)
			}
			logger.Success("Plugin packed", logger.Fields{"provider": pkg.Manifest.ID, "output": args[1]})
			return nil
		},
	}
}

func newProvidersSignCmd() *cobra.Command {
	var keyFile string

	cmd := &cobra.Command{
		Use:   "sign DIR",
		Short: "Sign a plugin directory",
		Long:  "Sign the manifest and script of a plugin directory and write " + provider.SignatureFile,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := os.ReadFile(keyFile)
			if err != nil {
				return fmt.Errorf("failed to read key: %w", err)
			}
			if err := provider.SignDirectory(ctxOrBackground(cmd.Context()), args[0], key); err != nil {
				return fmt.Errorf("failed to sign plugin: %w", err)
			}
			logger.Success("Plugin signed", logger.Fields{"dir": args[0]})
			return nil
		},
	}

	cmd.Flags().StringVar(&keyFile, "key", "", "File holding the hex encoded private key")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newProvidersKeygenCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a plugin signing key pair",
		Long: `Generate an ed25519 key pair for signing plugins. The public key is printed;
add it to trusted_keys to accept plugins signed with the private key.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, priv, err := provider.GenerateKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if output == "" {
				_, _ = fmt.Fprintf(out, "public key:  %s\nprivate key: %s\n", pub, priv)
				return nil
			}
			if err := os.WriteFile(output, []byte(priv+"\n"), privateKeyMode); err != nil {
				return fmt.Errorf("failed to write private key: %w", err)
			}
			_, _ = fmt.Fprintf(out, "public key: %s\n", pub)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "O", "", "Write the private key to this file instead of printing it")

	return cmd
}
