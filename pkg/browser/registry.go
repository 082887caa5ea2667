package browser

import (
	"sort"
	"sync"
)

// Registry maps session names to their live handles.
// Reads from the keep-alive tasks and writes from login/close may happen
// concurrently. The registry never closes handles itself.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Handle),
	}
}

// Register stores h under name, replacing any previous handle.
// Callers are responsible for closing the previous handle first.
func (r *Registry) Register(name string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[name] = h
}

// Get retrieves an active session by name.
func (r *Registry) Get(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.sessions[name]
	return h, ok
}

// Remove deletes the entry for name. Missing names are ignored.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, name)
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns information about all registered sessions.
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(handles))
	for _, h := range handles {
		infos = append(infos, h.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
