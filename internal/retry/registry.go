// Package retry implements the Retry Policy Adapter: resolving whether a
// registered job module defines a custom "when should this run again?"
// schedule.
package retry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rezkam/rihanna/internal/domain"
)

// Handler executes a claimed job's (module, args) payload. Implementations
// live outside this module; ModuleRegistry only dispatches by name.
type Handler interface {
	Handle(ctx context.Context, job domain.Job) error
}

// RetryScheduler is an optional capability a Handler may implement, in the
// same spirit as http.Flusher or io.ReaderFrom: most handlers don't need a
// custom retry schedule, so it's a separate interface detected by type
// assertion rather than a method every Handler must provide.
type RetryScheduler interface {
	RetryAt(reason string, args json.RawMessage, attempts int32) (time.Time, error)
}

// RetryDecision is the answer to "when, if ever, should this job next
// run?" Noop is the sentinel for "no custom schedule"; the caller falls
// back to its own default (typically MarkFailed).
type RetryDecision struct {
	Noop bool
	At   time.Time
}

// ModuleRegistry maps module names to the Handler that executes them. It
// is the Go encoding of spec.md's "registered capability table keyed by
// module name".
type ModuleRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewModuleRegistry returns an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{handlers: make(map[string]Handler)}
}

// Register associates a module name with the Handler that runs it.
// Registering the same name twice replaces the previous handler.
func (r *ModuleRegistry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Lookup returns the Handler registered for module, if any.
func (r *ModuleRegistry) Lookup(module string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[module]
	return h, ok
}

// RetryAt resolves the retry policy for a failed job. If module isn't
// registered, or its Handler doesn't implement RetryScheduler, the
// sentinel noop decision is returned — spec.md's "module does not export
// a retry_at/3 capability" case.
func (r *ModuleRegistry) RetryAt(module, reason string, args json.RawMessage, attempts int32) (RetryDecision, error) {
	handler, ok := r.Lookup(module)
	if !ok {
		return RetryDecision{Noop: true}, nil
	}

	scheduler, ok := handler.(RetryScheduler)
	if !ok {
		return RetryDecision{Noop: true}, nil
	}

	at, err := scheduler.RetryAt(reason, args, attempts)
	if err != nil {
		return RetryDecision{}, err
	}
	return RetryDecision{At: at}, nil
}
