package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glorpus-work/hoard/pkg/archive"
	"github.com/glorpus-work/hoard/pkg/errors"
)

// Package is a loaded plugin package: its manifest, the raw bytes that the
// signature covers and the detached signature itself.
type Package struct {
	// Source is the directory or archive the package was loaded from. Empty
	// for packages built in memory.
	Source       string
	Manifest     *Manifest
	ManifestData []byte
	Script       []byte
	Signature    string
}

// LoadPackage reads a plugin package from a directory or archive. A missing
// signature is not an error here; the Registry rejects the package.
func LoadPackage(ctx context.Context, path string) (*Package, error) {
	manifestData, err := archive.ReadFile(ctx, path, ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrManifestInvalid, err)
	}
	manifest, err := ParseManifest(manifestData)
	if err != nil {
		return nil, err
	}

	pkg := &Package{Source: path, Manifest: manifest, ManifestData: manifestData}

	sig, err := archive.ReadFile(ctx, path, SignatureFile)
	switch {
	case err == nil:
		pkg.Signature = string(sig)
	case !stderrors.Is(err, archive.ErrFileNotInPackage):
		return nil, err
	}

	if manifest.Kind == KindScript {
		if pkg.Script, err = archive.ReadFile(ctx, path, manifest.ScriptFile()); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrManifestInvalid, err)
		}
	}
	return pkg, nil
}

// NewPackage builds an in-memory package from manifest bytes and a script.
func NewPackage(manifestData, script []byte, signature string) (*Package, error) {
	manifest, err := ParseManifest(manifestData)
	if err != nil {
		return nil, err
	}
	return &Package{Manifest: manifest, ManifestData: manifestData, Script: script, Signature: signature}, nil
}

// SignDirectory signs the plugin package in dir with key and writes
// manifest.sig next to the manifest.
func SignDirectory(ctx context.Context, dir string, key []byte) error {
	pkg, err := LoadPackage(ctx, dir)
	if err != nil {
		return err
	}
	priv, err := ParsePrivateKey(string(key))
	if err != nil {
		return err
	}
	sig := Sign(priv, pkg.ManifestData, pkg.Script)
	return os.WriteFile(filepath.Join(dir, SignatureFile), []byte(sig+"\n"), 0o644)
}
