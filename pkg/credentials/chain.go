package credentials

import (
	"context"
	"errors"
	"fmt"
)

// Chain tries each provider in order and returns the first hit.
// A provider reporting ErrNotFound, or failing outright, falls through to the
// next one. Cancellation stops the walk immediately.
type Chain struct {
	providers []Provider
}

var _ Provider = (*Chain)(nil)

var errEmptyChain = errors.New("credential chain has no providers")

// NewChain creates a chain. Nil providers are rejected.
func NewChain(providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, errEmptyChain
	}
	for i, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("credential provider %d is nil", i)
		}
	}
	return &Chain{providers: providers}, nil
}

// Get returns the credentials from the first provider that has them.
func (c *Chain) Get(ctx context.Context, name string) (Credentials, error) {
	var failures []error
	for _, p := range c.providers {
		creds, err := p.Get(ctx, name)
		if err == nil {
			return creds, nil
		}
		if shouldSkipFallback(err) {
			return Credentials{}, err
		}
		if !errors.Is(err, ErrNotFound) {
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		return Credentials{}, fmt.Errorf("no provider returned credentials for %q: %w", name, errors.Join(failures...))
	}
	return Credentials{}, fmt.Errorf("%q: %w", name, ErrNotFound)
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
