package portal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gobwas/glob"
)

// Entry pairs a display label in the portal with the file name its export is
// saved under. The pairing is fixed; entries are never re-keyed.
type Entry struct {
	Label    string
	FileName string
}

// Catalog is the ordered list of entries a download run walks.
type Catalog []Entry

// Filter returns the entries whose label matches any of patterns, keeping
// their relative order. No patterns selects everything.
func (c Catalog) Filter(patterns []string) (Catalog, error) {
	if len(patterns) == 0 {
		return append(Catalog(nil), c...), nil
	}

	matchers := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid catalog pattern %q: %w", p, err)
		}
		matchers = append(matchers, g)
	}

	var out Catalog
	for _, e := range c {
		for _, g := range matchers {
			if g.Match(e.Label) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

// Labels returns the labels in order.
func (c Catalog) Labels() []string {
	labels := make([]string, len(c))
	for i, e := range c {
		labels[i] = e.Label
	}
	return labels
}

// Fresh reports whether path exists and was last modified on the same
// calendar day as today, in today's location.
func Fresh(path string, today time.Time) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	return sameDay(info.ModTime().In(today.Location()), today), nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
