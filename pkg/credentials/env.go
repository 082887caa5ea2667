package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// EnvPrefix starts every credential environment variable.
const EnvPrefix = "PORTALKEEPER_"

// EnvProvider reads PORTALKEEPER_<NAME>_IDENTITY and PORTALKEEPER_<NAME>_SECRET,
// where NAME is the session name upper-cased with non-alphanumerics mapped
// to underscores.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

var _ Provider = (*EnvProvider)(nil)

// NewEnvProvider reads from the process environment.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

// NewEnvProviderWithLookup reads through lookup instead of os.LookupEnv.
func NewEnvProviderWithLookup(lookup func(string) (string, bool)) *EnvProvider {
	return &EnvProvider{lookup: lookup}
}

// Get returns the credentials for name.
func (p *EnvProvider) Get(ctx context.Context, name string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	identityKey, secretKey := EnvKeys(name)
	identity, _ := p.lookup(identityKey)
	secret, _ := p.lookup(secretKey)

	creds := Credentials{Identity: identity, Secret: secret}
	if !creds.Valid() {
		return Credentials{}, fmt.Errorf("env %s/%s: %w", identityKey, secretKey, ErrNotFound)
	}
	return creds, nil
}

// EnvKeys returns the identity and secret variable names for a session.
func EnvKeys(name string) (identity, secret string) {
	key := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, name)
	return EnvPrefix + key + "_IDENTITY", EnvPrefix + key + "_SECRET"
}
