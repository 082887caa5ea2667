package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileProvider reads a YAML file mapping session names to credentials:
//
//	driver:
//	  identity: buyer@example.com
//	  secret: hunter2
//
// The file is re-read on every lookup so edits apply without a restart.
type FileProvider struct {
	path string
	mu   sync.RWMutex
}

var _ Provider = (*FileProvider)(nil)

// NewFileProvider creates a provider for the file at path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: filepath.Clean(path)}
}

// Get returns the credentials for name.
func (p *FileProvider) Get(ctx context.Context, name string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	entries, err := p.read()
	if err != nil {
		return Credentials{}, err
	}

	creds, ok := entries[name]
	if !ok || !creds.Valid() {
		return Credentials{}, fmt.Errorf("file %s entry %q: %w", p.path, name, ErrNotFound)
	}
	return creds, nil
}

// Put stores creds under name, creating the file with owner-only permissions.
func (p *FileProvider) Put(ctx context.Context, name string, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.readLocked()
	if err != nil {
		return err
	}
	entries[name] = creds

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode credentials file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	return nil
}

func (p *FileProvider) read() (map[string]Credentials, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.readLocked()
}

func (p *FileProvider) readLocked() (map[string]Credentials, error) {
	entries := make(map[string]Credentials)

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, nil
		}
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	return entries, nil
}
