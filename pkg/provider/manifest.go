package provider

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/hoard/pkg/errors"
)

// Package file names.
const (
	ManifestFile      = "manifest.yaml"
	SignatureFile     = "manifest.sig"
	DefaultScriptFile = "provider.tengo"
)

// Kind selects the provider implementation that a manifest is built with.
type Kind string

// Provider kinds.
const (
	KindHTTP   Kind = "http"
	KindScript Kind = "script"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Manifest describes a provider plugin package.
type Manifest struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Version     string            `yaml:"version"`
	APIVersion  string            `yaml:"api_version"`
	Kind        Kind              `yaml:"kind"`
	BaseURL     string            `yaml:"base_url,omitempty"`
	TokenURL    string            `yaml:"token_url,omitempty"`
	MinInterval time.Duration     `yaml:"min_interval,omitempty"`
	Script      string            `yaml:"script,omitempty"`
	Settings    map[string]string `yaml:"settings,omitempty"`
}

// ParseManifest decodes and validates a manifest. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrManifestInvalid, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the fields every provider kind needs.
func (m *Manifest) Validate() error {
	if !idPattern.MatchString(m.ID) {
		return fmt.Errorf("%w: id %q must match %s", errors.ErrManifestInvalid, m.ID, idPattern)
	}
	if _, err := version.NewSemver(m.Version); err != nil {
		return fmt.Errorf("%w: version %q: %v", errors.ErrManifestInvalid, m.Version, err)
	}
	if _, err := version.NewSemver(m.APIVersion); err != nil {
		return fmt.Errorf("%w: api_version %q: %v", errors.ErrManifestInvalid, m.APIVersion, err)
	}
	if m.Kind == "" {
		return fmt.Errorf("%w: kind is required", errors.ErrManifestInvalid)
	}
	if m.Kind == KindHTTP && m.BaseURL == "" {
		return fmt.Errorf("%w: base_url is required for kind %s", errors.ErrManifestInvalid, m.Kind)
	}
	for name, raw := range map[string]string{"base_url": m.BaseURL, "token_url": m.TokenURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: %s %q must be an absolute http(s) URL", errors.ErrManifestInvalid, name, raw)
		}
	}
	if m.MinInterval < 0 {
		return fmt.Errorf("%w: min_interval cannot be negative", errors.ErrManifestInvalid)
	}
	return nil
}

// ScriptFile returns the package-relative path of the provider script.
func (m *Manifest) ScriptFile() string {
	if m.Script != "" {
		return m.Script
	}
	return DefaultScriptFile
}
