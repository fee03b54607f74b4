package prompts

import (
	"fmt"
	"sync"
)

// Registry maps prompt ids to their revisions.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]map[Version]*Prompt
}

var builtin = sync.OnceValue(NewRegistry)

// Builtin returns the registry the packaged prompts register into.
func Builtin() *Registry { return builtin() }

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]map[Version]*Prompt)}
}

// Register stores p, replacing an earlier prompt with the same id and version.
func (r *Registry) Register(p *Prompt) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID[p.ID] == nil {
		r.byID[p.ID] = make(map[Version]*Prompt)
	}
	r.byID[p.ID][p.Version] = p
}

// Lookup returns one revision of a prompt.
func (r *Registry) Lookup(id string, v Version) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id][v]
	if !ok {
		return nil, fmt.Errorf("prompt %s@%s not registered", id, v)
	}
	return p, nil
}

// Latest returns the newest revision that is not deprecated. When every
// revision is deprecated the newest one is returned anyway.
func (r *Registry) Latest(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var live, newest *Prompt
	for _, p := range r.byID[id] {
		if newest == nil || p.Version > newest.Version {
			newest = p
		}
		if !p.Deprecated && (live == nil || p.Version > live.Version) {
			live = p
		}
	}
	switch {
	case live != nil:
		return live, nil
	case newest != nil:
		return newest, nil
	default:
		return nil, fmt.Errorf("prompt %s not registered", id)
	}
}
