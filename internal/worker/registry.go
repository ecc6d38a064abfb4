// Package worker implements the processing tick: the bounded loop that
// claims jobs, dispatches them to registered processors, and reports
// outcomes back to the job queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ProcessorFunc executes the business logic for one job type. The
// payload is opaque to the queue; userID is present for user-scoped
// jobs. Processors must be idempotent: a retried job runs the same
// logic again, though never concurrently for the same claimed job ID.
type ProcessorFunc func(ctx context.Context, payload json.RawMessage, userID *uuid.UUID) (json.RawMessage, error)

// Registry maps job-type names to their processors. It is populated at
// startup and read-only afterwards, so no locking is needed at dispatch.
type Registry struct {
	processors map[string]ProcessorFunc
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[string]ProcessorFunc),
	}
}

// Register binds a processor to a job type.
// Returns an error if the type is already registered or the processor is nil.
func (r *Registry) Register(jobType string, processor ProcessorFunc) error {
	if jobType == "" {
		return fmt.Errorf("job type cannot be empty")
	}
	if processor == nil {
		return fmt.Errorf("processor for job type %q cannot be nil", jobType)
	}
	if _, exists := r.processors[jobType]; exists {
		return fmt.Errorf("processor for job type %q already registered", jobType)
	}

	r.processors[jobType] = processor
	return nil
}

// MustRegister is Register that panics on error, for static wiring at startup.
func (r *Registry) MustRegister(jobType string, processor ProcessorFunc) {
	if err := r.Register(jobType, processor); err != nil {
		// ALLOW-PANIC: registration happens during startup wiring only
		panic(err)
	}
}

// Lookup returns the processor for a job type, or false if none is registered.
func (r *Registry) Lookup(jobType string) (ProcessorFunc, bool) {
	processor, ok := r.processors[jobType]
	return processor, ok
}

// Types returns the registered job types, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.processors))
	for jobType := range r.processors {
		types = append(types, jobType)
	}
	sort.Strings(types)
	return types
}
