package personality

import (
	"context"
	"fmt"
	"sync"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
)

// MemoryRepository is a thread-safe Repository that keeps insertion order.
type MemoryRepository struct {
	mu     sync.RWMutex
	order  []string
	items  map[string]types.Personality
	closed bool
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository(seed ...types.Personality) *MemoryRepository {
	ret := &MemoryRepository{
		items: map[string]types.Personality{},
	}
	for _, p := range seed {
		if _, ok := ret.items[p.ID]; ok {
			continue
		}
		ret.order = append(ret.order, p.ID)
		ret.items[p.ID] = p
	}
	return ret
}

func (r *MemoryRepository) List(_ context.Context) ([]types.Personality, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	out := make([]types.Personality, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out, nil
}

func (r *MemoryRepository) Create(_ context.Context, p types.Personality) error {
	if p.ID == "" {
		return &api.ValidationError{Field: "id", Reason: "is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if _, ok := r.items[p.ID]; ok {
		return &api.ValidationError{Field: "id", Reason: fmt.Sprintf("personality %q already exists", p.ID)}
	}
	r.order = append(r.order, p.ID)
	r.items[p.ID] = p
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, id string, p types.Personality) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if _, ok := r.items[id]; !ok {
		return &api.NotFoundError{Resource: "personality", ID: id}
	}
	p.ID = id
	r.items[id] = p
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if _, ok := r.items[id]; !ok {
		return &api.NotFoundError{Resource: "personality", ID: id}
	}
	delete(r.items, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *MemoryRepository) ensureOpen() error {
	if r.closed {
		return fmt.Errorf("memory personality repository closed")
	}
	return nil
}
