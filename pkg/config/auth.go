package config

import "github.com/glorpus-work/hoard/pkg/auth"

// AuthConfigContainer defines the interface for authentication configuration types that can be converted to an Authenticator.
type AuthConfigContainer interface {
	ToAuthenticator() auth.Authenticator
}

// AuthConfig holds the credentials of a provider. At most one kind is used;
// basic takes precedence over header, header over bearer.
type AuthConfig struct {
	BasicAuth  *BasicAuth  `yaml:"basic,omitempty"`
	HeaderAuth *HeaderAuth `yaml:"header,omitempty"`
	BearerAuth *BearerAuth `yaml:"bearer,omitempty"`
}

// BasicAuth holds configuration for HTTP Basic Authentication.
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HeaderAuth holds configuration for custom header-based authentication.
type HeaderAuth struct {
	Headers map[string]string `yaml:"headers"`
}

// BearerAuth holds configuration for Bearer token authentication. With a
// refresh token the access token is renewed by the provider before each sync.
type BearerAuth struct {
	Token        string `yaml:"token,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
}

// ToAuthenticator converts the BasicAuth configuration to an Authenticator.
func (b *BasicAuth) ToAuthenticator() auth.Authenticator {
	return &auth.BasicAuth{
		Username: b.Username,
		Password: b.Password,
	}
}

// ToAuthenticator converts the HeaderAuth configuration to an Authenticator.
func (h *HeaderAuth) ToAuthenticator() auth.Authenticator {
	return &auth.HeaderAuth{
		Headers: h.Headers,
	}
}

// ToAuthenticator converts the BearerAuth configuration to an Authenticator.
// A refreshable credential yields a TokenAuth the provider can update.
func (b *BearerAuth) ToAuthenticator() auth.Authenticator {
	if b.RefreshToken != "" {
		return auth.NewTokenAuth(b.Token)
	}
	return &auth.BearerAuth{
		Token: b.Token,
	}
}

// ToAuthenticator returns the configured credential, or nil when none is set.
func (a *AuthConfig) ToAuthenticator() auth.Authenticator {
	if a == nil {
		return nil
	}
	var c AuthConfigContainer
	switch {
	case a.BasicAuth != nil:
		c = a.BasicAuth
	case a.HeaderAuth != nil:
		c = a.HeaderAuth
	case a.BearerAuth != nil:
		c = a.BearerAuth
	default:
		return nil
	}
	return c.ToAuthenticator()
}

// ToAuthMap converts the provider credentials to a map of provider ids to Authenticators.
// Returns nil if no credentials are configured.
func (c *Config) ToAuthMap() map[string]auth.Authenticator {
	results := make(map[string]auth.Authenticator, len(c.Providers))
	for _, p := range c.Providers {
		if a := p.Auth.ToAuthenticator(); a != nil {
			results[p.ID] = a
		}
	}

	if len(results) == 0 {
		return nil
	}
	return results
}
