package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/catalog"
	"github.com/glorpus-work/hoard/pkg/config"
	"github.com/glorpus-work/hoard/pkg/model"
)

// setupConfig writes a configuration rooted in a temporary directory and
// points the CLI at it.
func setupConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	logger.SetTestOutput(&bytes.Buffer{})
	t.Cleanup(logger.UnsetTestOutput)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Settings.RootDir = filepath.Join(dir, "library")
	cfg.Settings.StateDir = filepath.Join(dir, "state")
	cfg.Settings.PluginDir = filepath.Join(dir, "plugins")

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.SaveConfig(path))

	format, verbose := "", false
	ConfigPath, OutputFormat, Verbose = &path, &format, &verbose
	t.Cleanup(func() { ConfigPath, OutputFormat, Verbose = nil, nil, nil })
	return cfg, path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigCommands(t *testing.T) {
	_, path := setupConfig(t)

	_, err := execute(t, NewConfigCmd(), "set", "concurrency", "7")
	require.NoError(t, err)

	out, err := execute(t, NewConfigCmd(), "get", "concurrency")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	_, err = execute(t, NewConfigCmd(), "set", "concurrency", "0")
	assert.Error(t, err, "invalid values are not saved")
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Settings.Concurrency)

	out, err = execute(t, NewConfigCmd(), "show")
	require.NoError(t, err)
	assert.Contains(t, out, "concurrency")
	assert.Contains(t, out, "Providers (0):")

	_, err = execute(t, NewConfigCmd(), "init")
	assert.Error(t, err)
	_, err = execute(t, NewConfigCmd(), "init", "--force")
	require.NoError(t, err)
}

func TestProvidersEnableDisable(t *testing.T) {
	_, path := setupConfig(t)

	_, err := execute(t, NewProvidersCmd(), "disable", "shop")
	require.NoError(t, err)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.ProviderEnabled("shop"))

	_, err = execute(t, NewProvidersCmd(), "enable", "shop")
	require.NoError(t, err)
	cfg, err = config.LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.ProviderEnabled("shop"))

	out, err := execute(t, NewProvidersCmd(), "list")
	require.NoError(t, err)
	assert.Equal(t, "No providers found\n", out)
}

func TestProvidersKeygen(t *testing.T) {
	setupConfig(t)
	keyFile := filepath.Join(t.TempDir(), "signing.key")

	out, err := execute(t, NewProvidersCmd(), "keygen", "--output", keyFile)
	require.NoError(t, err)
	assert.Regexp(t, `^public key: [0-9a-f]{64}\n$`, out)

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(privateKeyMode), info.Mode().Perm())
}

func TestAssetAndFileCommands(t *testing.T) {
	cfg, _ := setupConfig(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(cfg.Settings.StateDir, 0o750))
	cat, err := catalog.Open(cfg.GetCatalogPath())
	require.NoError(t, err)
	asset := model.AssetID{Provider: "shop", Remote: "a1"}
	_, err = cat.UpsertAsset(ctx, model.Asset{ID: asset, Title: "Tiles", Creator: "Ada", RemoteModified: time.Now()})
	require.NoError(t, err)
	file := model.FileID{Provider: "shop", Remote: "f1"}
	_, _, err = cat.UpsertFile(ctx, model.File{ID: file, Asset: asset, Filename: "tiles.zip", Size: 10})
	require.NoError(t, err)
	require.NoError(t, cat.Close())

	_, err = execute(t, NewAssetsCmd(), "unwant", "shop", "a1")
	require.NoError(t, err)

	out, err := execute(t, NewAssetsCmd(), "list", "--wanted", "false")
	require.NoError(t, err)
	assert.Contains(t, out, "Tiles")

	out, err = execute(t, NewAssetsCmd(), "list", "--wanted", "true")
	require.NoError(t, err)
	assert.Equal(t, "No assets in catalog\n", out)

	_, err = execute(t, NewFilesCmd(), "remove", "shop", "f1")
	require.NoError(t, err)
	out, err = execute(t, NewFilesCmd(), "list", "shop", "a1")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	_, err = execute(t, NewFilesCmd(), "restore", "shop", "f1")
	require.NoError(t, err)
	out, err = execute(t, NewFilesCmd(), "list", "shop", "a1")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")

	_, err = execute(t, NewAssetsCmd(), "delete", "shop", "a1")
	require.NoError(t, err)
	_, err = execute(t, NewAssetsCmd(), "want", "shop", "a1")
	assert.Error(t, err)
}

func TestSyncWithoutProviders(t *testing.T) {
	setupConfig(t)

	out, err := execute(t, NewSyncCmd(), "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run")
	assert.Contains(t, out, "Enqueued: 0")
}
