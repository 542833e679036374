package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Entry describes a registered agent in the directory.
type Entry struct {
	Name        string
	Description string
	Tools       int
}

// Registry is a thread-safe directory of agents by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register adds agents. Names must be unique.
func (r *Registry) Register(agents ...*Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range agents {
		if a == nil || a.name == "" {
			return fmt.Errorf("agent: registry: agent without a name")
		}
		if _, ok := r.agents[a.name]; ok {
			return fmt.Errorf("agent: registry: duplicate agent %q", a.name)
		}
		r.agents[a.name] = a
	}
	return nil
}

// Get returns the named agent.
func (r *Registry) Get(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	return a, ok
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}

// List returns all registry entries sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.agents))
	for _, a := range r.agents {
		entries = append(entries, Entry{Name: a.name, Description: a.description, Tools: a.ToolCount()})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return entries
}
