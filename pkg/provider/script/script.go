// Package script implements providers written as tengo scripts shipped inside
// the signed plugin package.
//
// A script is run once per provider operation with these globals:
//
//	op          "authenticate", "enumerate", "files" or "locator"
//	args        {page: N} | {asset: "id"} | {file: "id"}
//	settings    the manifest settings overlaid with the local configuration
//	fetch_json  func(path) performing an authenticated GET below base_url
//
// and reports back through the result and err globals. The os module is not
// available and fetch_json cannot reach hosts other than base_url.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/model"
	"github.com/glorpus-work/hoard/pkg/provider"
	"github.com/glorpus-work/hoard/pkg/provider/httpapi"
)

// Operations passed to the script in op.
const (
	OpAuthenticate = "authenticate"
	OpEnumerate    = "enumerate"
	OpFiles        = "files"
	OpLocator      = "locator"
)

// maxAllocs bounds the objects a single script run may allocate.
const maxAllocs = 5_000_000

var allowedModules = []string{"base64", "enum", "hex", "json", "math", "text", "times"}

// Provider runs provider operations through a compiled script.
type Provider struct {
	id          string
	compiled    *tengo.Compiled
	client      *httpapi.Client
	settings    map[string]interface{}
	minInterval time.Duration
}

var (
	_ provider.Provider  = (*Provider)(nil)
	_ provider.Throttled = (*Provider)(nil)
)

// Factory builds a script provider from a verified package.
func Factory(pkg *provider.Package, env provider.Env) (provider.Provider, error) {
	return New(pkg.Manifest, pkg.Script, env)
}

// New compiles source for the provider described by m.
func New(m *provider.Manifest, source []byte, env provider.Env) (*Provider, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: provider %s has no script", errors.ErrProviderScript, m.ID)
	}

	settings := make(map[string]interface{}, len(m.Settings)+len(env.Settings))
	for k, v := range m.Settings {
		settings[k] = v
	}
	for k, v := range env.Settings {
		settings[k] = v
	}

	s := tengo.NewScript(source)
	s.SetImports(stdlib.GetModuleMap(allowedModules...))
	s.SetMaxAllocs(maxAllocs)
	globals := map[string]interface{}{
		"op":         "",
		"args":       map[string]interface{}{},
		"settings":   settings,
		"result":     nil,
		"err":        nil,
		"fetch_json": &tengo.UserFunction{Name: "fetch_json", Value: unavailable},
	}
	for name, value := range globals {
		if err := s.Add(name, value); err != nil {
			return nil, fmt.Errorf("%w: provider %s: define %s: %v", errors.ErrProviderScript, m.ID, name, err)
		}
	}
	compiled, err := s.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: provider %s: compile: %v", errors.ErrProviderScript, m.ID, err)
	}

	p := &Provider{
		id:          m.ID,
		compiled:    compiled,
		settings:    settings,
		minInterval: m.MinInterval,
	}
	if m.BaseURL != "" {
		if p.client, err = httpapi.NewClient(m.BaseURL, env); err != nil {
			return nil, fmt.Errorf("provider %s: %w", m.ID, err)
		}
	}
	return p, nil
}

func unavailable(...tengo.Object) (tengo.Object, error) {
	return &tengo.Error{Value: &tengo.String{Value: "fetch_json is not available"}}, nil
}

// Identifier returns the manifest id.
func (p *Provider) Identifier() string { return p.id }

// MinInterval returns the manifest's minimum request interval.
func (p *Provider) MinInterval() time.Duration { return p.minInterval }

// Authenticate runs the authenticate operation. An error reported by the
// script itself is an authentication failure.
func (p *Provider) Authenticate(ctx context.Context) error {
	err := p.run(ctx, OpAuthenticate, map[string]interface{}{}, nil)
	if err != nil && errors.Is(err, errors.ErrProviderScript) && !errors.IsAuth(err) {
		return fmt.Errorf("%w: %v", errors.ErrAuth, err)
	}
	return err
}

// EnumeratePage runs the enumerate operation.
func (p *Provider) EnumeratePage(ctx context.Context, page int) ([]model.RemoteAsset, error) {
	var assets []model.RemoteAsset
	if err := p.run(ctx, OpEnumerate, map[string]interface{}{"page": page}, &assets); err != nil {
		return nil, err
	}
	for i, a := range assets {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: %s enumerate page %d: asset %d has no id", errors.ErrProviderScript, p.id, page, i)
		}
	}
	return assets, nil
}

// ResolveFileMetadata runs the files operation.
func (p *Provider) ResolveFileMetadata(ctx context.Context, asset model.AssetID) ([]model.FileDescriptor, error) {
	var files []model.FileDescriptor
	if err := p.run(ctx, OpFiles, map[string]interface{}{"asset": asset.Remote}, &files); err != nil {
		return nil, err
	}
	for i, f := range files {
		if f.ID == "" || f.Filename == "" {
			return nil, fmt.Errorf("%w: %s files of %s: file %d lacks id or filename", errors.ErrProviderScript, p.id, asset.Remote, i)
		}
	}
	return files, nil
}

type locatorResult struct {
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// ResolveFetchLocator runs the locator operation. Relative URLs are resolved
// against base_url.
func (p *Provider) ResolveFetchLocator(ctx context.Context, file model.FileID) (*provider.Locator, error) {
	var res locatorResult
	if err := p.run(ctx, OpLocator, map[string]interface{}{"file": file.Remote}, &res); err != nil {
		return nil, err
	}
	if p.client != nil {
		return p.client.Locator(res.URL, res.Headers, res.ExpiresAt)
	}
	if res.URL == "" {
		return nil, fmt.Errorf("locator has no url: %w", errors.ErrNotFound)
	}
	loc := &provider.Locator{URL: res.URL, Header: make(map[string][]string), ExpiresAt: res.ExpiresAt}
	for k, v := range res.Headers {
		loc.Header.Set(k, v)
	}
	return loc, nil
}

// run executes one operation on a fresh copy of the compiled script and
// decodes result into out when out is not nil. Errors from fetch_json keep
// their category so callers can retry or re-authenticate.
func (p *Provider) run(ctx context.Context, op string, args map[string]interface{}, out interface{}) error {
	var callErr error
	c := p.compiled.Clone()
	for name, value := range map[string]interface{}{
		"op":         op,
		"args":       args,
		"fetch_json": &tengo.UserFunction{Name: "fetch_json", Value: p.fetchJSON(ctx, &callErr)},
	} {
		if err := c.Set(name, value); err != nil {
			return fmt.Errorf("%w: %s %s: set %s: %v", errors.ErrProviderScript, p.id, op, name, err)
		}
	}

	if err := c.RunContext(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.failure(op, err.Error(), callErr)
	}
	if msg := errorMessage(c.Get("err").Object()); msg != "" {
		return p.failure(op, msg, callErr)
	}
	if out == nil {
		return nil
	}

	result := c.Get("result")
	if e, ok := result.Object().(*tengo.Error); ok {
		return p.failure(op, errorMessage(e), callErr)
	}
	if result.IsUndefined() {
		return fmt.Errorf("%w: %s %s: script did not set result", errors.ErrProviderScript, p.id, op)
	}
	data, err := json.Marshal(result.Value())
	if err != nil {
		return fmt.Errorf("%w: %s %s: encode result: %v", errors.ErrProviderScript, p.id, op, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: decode result: %v", errors.ErrProviderScript, p.id, op, err)
	}
	return nil
}

func (p *Provider) failure(op, msg string, callErr error) error {
	logger.Debug("Provider script reported an error", logger.Fields{"provider": p.id, "op": op, "error": msg})
	if callErr != nil {
		return fmt.Errorf("%s %s: %s: %w", p.id, op, msg, callErr)
	}
	return fmt.Errorf("%w: %s %s: %s", errors.ErrProviderScript, p.id, op, msg)
}

// fetchJSON returns the fetch_json builtin for one run. The first request
// failure is stored in failure; the script sees an error value.
func (p *Provider) fetchJSON(ctx context.Context, failure *error) tengo.CallableFunc {
	return func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 1 {
			return nil, tengo.ErrWrongNumArguments
		}
		ref, ok := tengo.ToString(args[0])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "path", Expected: "string", Found: args[0].TypeName()}
		}
		if p.client == nil {
			return &tengo.Error{Value: &tengo.String{Value: "provider has no base_url"}}, nil
		}

		var body interface{}
		if err := p.client.GetJSON(ctx, ref, &body); err != nil {
			if *failure == nil {
				*failure = err
			}
			return &tengo.Error{Value: &tengo.String{Value: err.Error()}}, nil
		}
		return tengo.FromInterface(body)
	}
}

// errorMessage extracts the message of an err value set by a script.
func errorMessage(o tengo.Object) string {
	switch v := o.(type) {
	case nil:
		return ""
	case *tengo.Error:
		if s, ok := tengo.ToString(v.Value); ok && s != "" {
			return s
		}
		return "error"
	case *tengo.String:
		return v.Value
	default:
		if v.IsFalsy() {
			return ""
		}
		return v.String()
	}
}
