// Package format holds the descriptor registry and the bounded-prefix
// sniffer described in §4.1. It has no dependency on any concrete
// parser package; parsers register themselves with a Descriptor that names
// which package handles a format once it has been identified.
package format

import (
	"regexp"
	"sort"
	"sync"

	"github.com/chatlab/chatlab-core/internal/model"
)

// Signature is the set of prefix checks a format must satisfy to be
// selected (§4.1).
type Signature struct {
	// Patterns are regular expressions matched against the bounded prefix;
	// every pattern must match at least once.
	Patterns []*regexp.Regexp
	// RequiredFields are JSON field names that must appear as keys
	// somewhere in the prefix.
	RequiredFields []string
}

// Descriptor is one registered format.
type Descriptor struct {
	ID         string
	Name       string
	Platform   model.Platform
	Priority   int // lower sorts first
	Extensions []string // empty means unconstrained
	Signature  Signature
}

// Registry is an ordered, mutable set of descriptors. There is no
// package-level instance: production code builds one through
// bootstrap.Registry, and tests construct their own so format registration
// in one test can't leak into another.
type Registry struct {
	mu    sync.RWMutex
	descs []Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a descriptor and keeps the set sorted by Priority.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descs = append(r.descs, d)
	sort.SliceStable(r.descs, func(i, j int) bool {
		return r.descs[i].Priority < r.descs[j].Priority
	})
}

// List returns the registered descriptors in priority order. The slice is a
// copy; callers may not mutate the registry through it.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.descs))
	copy(out, r.descs)
	return out
}

// NewDefault builds a fresh registry populated by every parser package's
// RegisterInto function. Callers that want the full built-in format set
// call this once at startup; tests that want an isolated subset call
// Register/RegisterInto directly instead, avoiding any init()-time global
// mutation (§9: a descriptor table plus dispatch, not class-level
// side effects).
func NewDefault(register ...func(*Registry)) *Registry {
	r := NewRegistry()
	for _, fn := range register {
		fn(r)
	}
	return r
}
