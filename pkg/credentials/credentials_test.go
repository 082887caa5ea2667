package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestEnvKeys(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		secret   string
	}{
		{"driver", "PORTALKEEPER_DRIVER_IDENTITY", "PORTALKEEPER_DRIVER_SECRET"},
		{"driver_m", "PORTALKEEPER_DRIVER_M_IDENTITY", "PORTALKEEPER_DRIVER_M_SECRET"},
		{"buyer-2.eu", "PORTALKEEPER_BUYER_2_EU_IDENTITY", "PORTALKEEPER_BUYER_2_EU_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, secret := EnvKeys(tt.name)
			assert.Equal(t, tt.identity, identity)
			assert.Equal(t, tt.secret, secret)
		})
	}
}

func TestEnvProvider(t *testing.T) {
	env := map[string]string{
		"PORTALKEEPER_DRIVER_IDENTITY": "buyer@example.com",
		"PORTALKEEPER_DRIVER_SECRET":   "hunter2",
		"PORTALKEEPER_HALF_IDENTITY":   "only-identity",
	}
	p := NewEnvProviderWithLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	creds, err := p.Get(context.Background(), "driver")
	require.NoError(t, err)
	assert.Equal(t, Credentials{Identity: "buyer@example.com", Secret: "hunter2"}, creds)

	_, err = p.Get(context.Background(), "half")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.Get(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver:\n  identity: buyer@example.com\n  secret: hunter2\n"), 0o600))

	p := NewFileProvider(path)
	ctx := context.Background()

	creds, err := p.Get(ctx, "driver")
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", creds.Identity)

	_, err = p.Get(ctx, "driver_m")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, p.Put(ctx, "driver_m", Credentials{Identity: "second@example.com", Secret: "s3cret"}))
	creds, err = p.Get(ctx, "driver_m")
	require.NoError(t, err)
	assert.Equal(t, "second@example.com", creds.Identity)

	// Existing entries survive a Put
	_, err = p.Get(ctx, "driver")
	assert.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileProviderMissingFile(t *testing.T) {
	p := NewFileProvider(filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := p.Get(context.Background(), "driver")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileProviderMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: [not, a, map"), 0o600))

	_, err := NewFileProvider(path).Get(context.Background(), "driver")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestKeyringProvider(t *testing.T) {
	keyring.MockInit()

	p := NewKeyringProvider(DefaultKeyringService)
	ctx := context.Background()

	_, err := p.Get(ctx, "driver")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, p.Set(ctx, "driver", Credentials{Identity: "buyer@example.com", Secret: "hunter2"}))

	creds, err := p.Get(ctx, "driver")
	require.NoError(t, err)
	assert.Equal(t, Credentials{Identity: "buyer@example.com", Secret: "hunter2"}, creds)

	require.NoError(t, p.Delete(ctx, "driver"))
	_, err = p.Get(ctx, "driver")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op
	assert.NoError(t, p.Delete(ctx, "driver"))

	assert.Error(t, p.Set(ctx, "driver", Credentials{Identity: "only"}))
}

func TestKeyringProviderBackendError(t *testing.T) {
	keyring.MockInitWithError(errors.New("keychain locked"))
	t.Cleanup(keyring.MockInit)

	_, err := NewKeyringProvider(DefaultKeyringService).Get(context.Background(), "driver")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorContains(t, err, "keychain locked")
}

func TestChainUsesFirstHit(t *testing.T) {
	chain, err := NewChain(
		Static{},
		Static{"driver": {Identity: "second", Secret: "s"}},
		Static{"driver": {Identity: "third", Secret: "s"}},
	)
	require.NoError(t, err)

	creds, err := chain.Get(context.Background(), "driver")
	require.NoError(t, err)
	assert.Equal(t, "second", creds.Identity)
}

func TestChainNotFoundEverywhere(t *testing.T) {
	chain, err := NewChain(Static{}, Static{})
	require.NoError(t, err)

	_, err = chain.Get(context.Background(), "driver")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChainFallsThroughBackendFailure(t *testing.T) {
	broken := ProviderFunc(func(context.Context, string) (Credentials, error) {
		return Credentials{}, errors.New("keychain locked")
	})

	chain, err := NewChain(broken, Static{"driver": {Identity: "from-file", Secret: "s"}})
	require.NoError(t, err)

	creds, err := chain.Get(context.Background(), "driver")
	require.NoError(t, err)
	assert.Equal(t, "from-file", creds.Identity)

	chain, err = NewChain(broken, Static{})
	require.NoError(t, err)
	_, err = chain.Get(context.Background(), "driver")
	require.Error(t, err)
	assert.ErrorContains(t, err, "keychain locked")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestChainStopsOnCancellation(t *testing.T) {
	calls := 0
	counting := ProviderFunc(func(context.Context, string) (Credentials, error) {
		calls++
		return Credentials{Identity: "x", Secret: "y"}, nil
	})

	chain, err := NewChain(Static{}, counting)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = chain.Get(ctx, "driver")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestNewChainValidation(t *testing.T) {
	_, err := NewChain()
	assert.Error(t, err)

	_, err = NewChain(Static{}, nil)
	assert.Error(t, err)
}

func TestNewFromSources(t *testing.T) {
	chain, err := New([]string{"env", "keyring", "file"}, "/tmp/credentials.yaml")
	require.NoError(t, err)
	assert.Len(t, chain.providers, 3)

	_, err = New([]string{"file"}, "")
	assert.Error(t, err)

	_, err = New([]string{"vault"}, "")
	assert.Error(t, err)
}
