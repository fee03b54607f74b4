package plans

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu        sync.RWMutex
	sessionID string
	plans     map[string]Plan
	order     []string
	changed   chan struct{}
}

// NewMemoryRegistry returns an empty registry for one session.
func NewMemoryRegistry(sessionID string) *MemoryRegistry {
	return &MemoryRegistry{
		sessionID: sessionID,
		plans:     make(map[string]Plan),
		changed:   make(chan struct{}),
	}
}

func (r *MemoryRegistry) Create(_ context.Context, p Plan) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	p.ID = uuid.NewString()
	p.SessionID = r.sessionID
	p.Status = StatusPending
	p.CreatedAt, p.UpdatedAt = now, now
	r.plans[p.ID] = p
	r.order = append(r.order, p.ID)
	r.notifyLocked()
	return p, nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[id]
	if !ok {
		return Plan{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRegistry) ActivePlans(_ context.Context) ([]Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plan, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plans[id])
	}
	return out, nil
}

func (r *MemoryRegistry) SetStatus(_ context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return ErrNotFound
	}
	if err := checkTransition(id, p.Status, status); err != nil {
		return err
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	r.plans[id] = p
	r.notifyLocked()
	return nil
}

// Changes returns a channel closed on the next modification.
func (r *MemoryRegistry) Changes() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changed
}

func (r *MemoryRegistry) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}
