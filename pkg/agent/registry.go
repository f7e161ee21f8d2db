package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an agent from its dependencies.
type Constructor func(deps Deps) Agent

// Registry maps agent names to constructors. The orchestrator resolves the
// agents a workflow stage needs by name at execution time.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under name, replacing any previous entry.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = ctor
}

// Create instantiates the named agent with the given dependencies. An
// unknown name is an error that lists the registered agents.
func (r *Registry) Create(name string, deps Deps) (Agent, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent %q (known agents: %v)", name, r.Names())
	}
	return ctor(deps), nil
}

// Names returns the registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with every built-in agent registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NameAnalyzer, NewAnalyzer)
	r.Register(NameReviewer, NewReviewer)
	r.Register(NameTestGenerator, NewTestGenerator)
	r.Register(NameDocUpdater, NewDocUpdater)
	r.Register(NameSynthesizer, NewSynthesizer)
	return r
}
