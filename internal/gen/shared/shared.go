// Package shared is the per-pass channel through which one layer publishes its
// finished field for other layers to read.
package shared

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"procgen2d.ai/internal/gen/field"
	"procgen2d.ai/internal/gen/task"
)

var (
	ErrDuplicateID = errors.New("shared data id already registered")
	ErrNotFound    = errors.New("shared data id not found")
)

type entry struct {
	field *field.Field
	token task.Handle
}

// Registry maps ids to published fields for one generation pass. Each id has
// exactly one writer; readers wait on the writer's token before reading.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]entry{}}
}

// Publish transfers ownership of f to the registry until the next Clear.
// token completes when f holds its final values.
func (r *Registry) Publish(id string, f *field.Field, token task.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	r.entries[id] = entry{field: f, token: token}
	return nil
}

func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Token returns the completion token for id, or the zero handle.
func (r *Registry) Token(id string) (task.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e.token, ok
}

// Await waits for the writer of id and returns its field. The field must be
// treated as read-only.
func (r *Registry) Await(ctx context.Context, id string) (*field.Field, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err := e.token.Wait(ctx); err != nil {
		return nil, err
	}
	return e.field, nil
}

func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear releases every published field. Called at pass boundaries.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
}
