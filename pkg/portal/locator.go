package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/portalkeeper/pkg/browser"
)

// LocatorChain is an ordered list of selectors for the same control.
// The first is the primary; the rest are fallbacks for alternate layouts.
type LocatorChain []string

// Click clicks the first selector in the chain that resolves within timeout
// and returns its index. Index 0 means the primary matched.
func (c LocatorChain) Click(ctx context.Context, h browser.Handle, timeout time.Duration) (int, error) {
	if len(c) == 0 {
		return -1, fmt.Errorf("empty locator chain: %w", ErrLocatorExhausted)
	}

	var errs []error
	for i, selector := range c {
		err := h.Click(ctx, selector, timeout)
		if err == nil {
			return i, nil
		}
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		errs = append(errs, err)
	}
	return -1, fmt.Errorf("%w: %w", ErrLocatorExhausted, errors.Join(errs...))
}
