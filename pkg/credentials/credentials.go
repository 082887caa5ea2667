// Package credentials resolves the identity and secret used to log a named
// session into the portal.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a provider has no credentials for a name.
var ErrNotFound = errors.New("credentials not found")

// Credentials is the identity/secret pair entered by the login workflow.
type Credentials struct {
	Identity string `yaml:"identity"`
	Secret   string `yaml:"secret"`
}

// Valid reports whether both halves are present.
func (c Credentials) Valid() bool {
	return c.Identity != "" && c.Secret != ""
}

// Provider looks up credentials by session name.
type Provider interface {
	Get(ctx context.Context, name string) (Credentials, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, name string) (Credentials, error)

// Get calls f.
func (f ProviderFunc) Get(ctx context.Context, name string) (Credentials, error) {
	return f(ctx, name)
}

// Static is an in-memory Provider keyed by session name.
type Static map[string]Credentials

// Get returns the entry for name.
func (s Static) Get(ctx context.Context, name string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	c, ok := s[name]
	if !ok || !c.Valid() {
		return Credentials{}, fmt.Errorf("static %q: %w", name, ErrNotFound)
	}
	return c, nil
}

// Source names accepted by New.
const (
	SourceEnv     = "env"
	SourceKeyring = "keyring"
	SourceFile    = "file"
)

// New builds a Chain over the named sources, in order.
func New(sources []string, file string) (*Chain, error) {
	providers := make([]Provider, 0, len(sources))
	for _, src := range sources {
		switch strings.ToLower(src) {
		case SourceEnv:
			providers = append(providers, NewEnvProvider())
		case SourceKeyring:
			providers = append(providers, NewKeyringProvider(DefaultKeyringService))
		case SourceFile:
			if file == "" {
				return nil, errors.New("file credential source requires a path")
			}
			providers = append(providers, NewFileProvider(file))
		default:
			return nil, fmt.Errorf("unknown credential source %q", src)
		}
	}
	return NewChain(providers...)
}
