package cli

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net/http"
	"os"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/catalog"
	"github.com/glorpus-work/hoard/pkg/config"
	"github.com/glorpus-work/hoard/pkg/fsutil"
	"github.com/glorpus-work/hoard/pkg/provider"
	"github.com/glorpus-work/hoard/pkg/provider/httpapi"
	"github.com/glorpus-work/hoard/pkg/provider/script"
)

// openCatalog opens the catalog below the configured state directory.
func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if err := os.MkdirAll(cfg.Settings.StateDir, fsutil.DirModeSecure); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	cat, err := catalog.Open(cfg.GetCatalogPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return cat, nil
}

// newRegistry builds the provider registry and registers every package found
// in the plugin directory.
func newRegistry(ctx context.Context, cfg *config.Config) (*provider.Registry, *provider.DiscoveryReport, error) {
	anchors := make([]ed25519.PublicKey, 0, len(cfg.Settings.TrustedKeys))
	for _, k := range cfg.Settings.TrustedKeys {
		key, err := provider.ParsePublicKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid trusted key: %w", err)
		}
		anchors = append(anchors, key)
	}

	credentials := cfg.ToAuthMap()
	httpClient := &http.Client{Timeout: cfg.Settings.HTTPTimeout}

	reg, err := provider.NewRegistry(
		provider.WithTrustAnchors(anchors...),
		provider.WithFactory(provider.KindHTTP, httpapi.Factory),
		provider.WithFactory(provider.KindScript, script.Factory),
		provider.WithEnabled(cfg.ProviderEnabled),
		provider.WithEnvironment(func(id string) provider.Env {
			return provider.Env{
				Settings:   cfg.ProviderSettings(id),
				Auth:       credentials[id],
				HTTPClient: httpClient,
				UserAgent:  cfg.Settings.UserAgent,
			}
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create provider registry: %w", err)
	}

	report, err := reg.Discover(ctx, cfg.Settings.PluginDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan plugin directory: %w", err)
	}
	for _, r := range report.Rejected {
		logger.Warn("Provider package rejected", logger.Fields{"source": r.Source, "reason": r.Reason})
	}
	return reg, report, nil
}
