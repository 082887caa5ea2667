package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the service name entries are stored under.
const DefaultKeyringService = "portalkeeper"

// KeyringProvider stores credentials in the OS keychain. Identity and secret
// are kept as two items, "<name>/identity" and "<name>/secret".
type KeyringProvider struct {
	service string
}

var _ Provider = (*KeyringProvider)(nil)

// NewKeyringProvider creates a provider for service.
func NewKeyringProvider(service string) *KeyringProvider {
	return &KeyringProvider{service: service}
}

// Get returns the credentials for name.
func (p *KeyringProvider) Get(ctx context.Context, name string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	identity, err := p.get(name + "/identity")
	if err != nil {
		return Credentials{}, err
	}
	secret, err := p.get(name + "/secret")
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Identity: identity, Secret: secret}, nil
}

// Set stores creds for name, replacing existing items.
func (p *KeyringProvider) Set(ctx context.Context, name string, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !creds.Valid() {
		return errors.New("identity and secret are both required")
	}

	if err := keyring.Set(p.service, name+"/identity", creds.Identity); err != nil {
		return fmt.Errorf("keyring set identity for %q: %w", name, err)
	}
	if err := keyring.Set(p.service, name+"/secret", creds.Secret); err != nil {
		return fmt.Errorf("keyring set secret for %q: %w", name, err)
	}
	return nil
}

// Delete removes the items for name. Missing items are ignored.
func (p *KeyringProvider) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, user := range []string{name + "/identity", name + "/secret"} {
		if err := keyring.Delete(p.service, user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring delete %q: %w", user, err)
		}
	}
	return nil
}

func (p *KeyringProvider) get(user string) (string, error) {
	value, err := keyring.Get(p.service, user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("keyring %s/%s: %w", p.service, user, ErrNotFound)
		}
		return "", fmt.Errorf("keyring %s/%s: %w", p.service, user, err)
	}
	return value, nil
}
