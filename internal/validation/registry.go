// Package validation turns raw rows into create payloads, one import type at a time.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"hr-bulk-import/internal/reference"
	"hr-bulk-import/internal/tabular"
)

// ErrUnknownImportType is returned when no transformer is registered for a type.
var ErrUnknownImportType = errors.New("unknown import type")

// FieldError is a row-level validation failure.
type FieldError struct {
	Column  string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

// Transformer validates one raw row against a reference snapshot.
// Transform must not retain idx or mutate raw.
type Transformer interface {
	ImportType() string
	// References lists the master-data kinds to fetch; mandatory ones must be non-empty.
	References() (kinds, mandatory []reference.Kind)
	Transform(raw tabular.Row, idx *reference.Index) (any, error)
	// Stub reports a pass-through type that has no real validation yet.
	Stub() bool
}

// Registry maps import types to transformers.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]Transformer
}

func NewRegistry(ts ...Transformer) *Registry {
	r := &Registry{byType: make(map[string]Transformer)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// DefaultRegistry wires the employee transformer plus the pass-through stubs.
func DefaultRegistry(suggestionLimit int) *Registry {
	return NewRegistry(
		NewEmployee(suggestionLimit, nil),
		Passthrough("attendance"),
		Passthrough("leave"),
	)
}

// Register binds a transformer to its import type, replacing any previous one.
func (r *Registry) Register(t Transformer) {
	if t == nil || t.ImportType() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t.ImportType()] = t
}

func (r *Registry) Lookup(importType string) (Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byType[importType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownImportType, importType)
	}
	return t, nil
}

// Types returns the registered import types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for k := range r.byType {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type passthrough string

// Passthrough is a stub transformer: every row is accepted as-is and never sent anywhere.
func Passthrough(importType string) Transformer {
	return passthrough(importType)
}

func (p passthrough) ImportType() string { return string(p) }

func (p passthrough) References() (kinds, mandatory []reference.Kind) { return nil, nil }

func (p passthrough) Transform(raw tabular.Row, _ *reference.Index) (any, error) {
	return raw, nil
}

func (p passthrough) Stub() bool { return true }
