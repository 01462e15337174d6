package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/archive"
)

// Rejection is a package that could not be loaded or registered.
type Rejection struct {
	Source string `json:"source"`
	Err    error  `json:"-"`
	Reason string `json:"reason"`
}

// DiscoveryReport summarizes one scan of a plugin directory.
type DiscoveryReport struct {
	Registered []string    `json:"registered"`
	Rejected   []Rejection `json:"rejected"`
}

// Discover scans dir for plugin packages (subdirectories and .tar.gz files),
// loads each one and registers it. Packages that fail are reported and never
// abort the scan. A missing dir yields an empty report.
func (r *Registry) Discover(ctx context.Context, dir string) (*DiscoveryReport, error) {
	report := &DiscoveryReport{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("Plugin directory does not exist", logger.Fields{"dir": dir})
			return report, nil
		}
		return nil, fmt.Errorf("failed to read plugin directory: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !archive.IsPackage(entry) {
			continue
		}
		source := filepath.Join(dir, entry.Name())

		pkg, err := LoadPackage(ctx, source)
		if err == nil {
			err = r.Register(pkg)
		}
		if err != nil {
			report.Rejected = append(report.Rejected, Rejection{Source: source, Err: err, Reason: err.Error()})
			continue
		}
		report.Registered = append(report.Registered, pkg.Manifest.ID)
		logger.Info("Discovered provider", logger.Fields{"provider": pkg.Manifest.ID, "source": source})
	}
	return report, nil
}

// Rescan drops every provider previously discovered from dir, along with
// recorded rejections, and scans it again. Enable/disable state is kept.
func (r *Registry) Rescan(ctx context.Context, dir string) (*DiscoveryReport, error) {
	r.mu.Lock()
	for id, e := range r.entries {
		if e.Source != "" && filepath.Dir(e.Source) == filepath.Clean(dir) {
			delete(r.entries, id)
		}
	}
	for key, e := range r.rejected {
		if e.Source != "" && filepath.Dir(e.Source) == filepath.Clean(dir) {
			delete(r.rejected, key)
		}
	}
	r.mu.Unlock()
	return r.Discover(ctx, dir)
}
