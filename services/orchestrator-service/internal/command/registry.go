package command

import (
	"context"
	"sort"
	"sync"
)

// Logic is the domain collaborator supplying rail-agnostic business logic for
// one command type. Execute returns the id of the domain event it caused to
// be published through the emission gate, or raises a business-level error
// (ideally a rejection.DomainError for exact classification).
type Logic interface {
	Validate(ctx context.Context, cmd *Command) error
	Execute(ctx context.Context, cmd *Command) (eventID string, err error)
}

// Registry maps command types to their logic. Registration happens at wiring
// time; lookups are safe under concurrent handling.
type Registry struct {
	mu     sync.RWMutex
	logics map[string]Logic
}

func NewRegistry() *Registry {
	return &Registry{logics: make(map[string]Logic)}
}

func (r *Registry) Register(commandType string, logic Logic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logics[commandType] = logic
}

func (r *Registry) Resolve(commandType string) (Logic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	logic, ok := r.logics[commandType]
	return logic, ok
}

// Types lists the registered command types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.logics))
	for t := range r.logics {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
