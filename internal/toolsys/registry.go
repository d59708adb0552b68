package toolsys

import (
	"fmt"
	"sync"
)

// Registry holds callable tool descriptors behind an RWMutex-guarded map,
// grounded on the teacher's ToolRegistry: readers (schema export, lookup
// during dispatch) vastly outnumber writers (registration at agent
// construction time).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register adds a tool descriptor, validating its generated schema first.
// Re-registering a name overwrites the previous descriptor.
func (r *Registry) Register(d *Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("toolsys: descriptor has empty name")
	}
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = d
	return nil
}

// Unregister removes a tool by name. It is a no-op if the name is absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get resolves a tool descriptor by exact name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// All returns a snapshot slice of every registered descriptor, suitable for
// AsSchemas or for seeding an Agent's tool list.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}

// AsSchemas renders every descriptor's JSON function schema, the shape the
// provider contract expects for the tools field of a completion request.
func (r *Registry) AsSchemas(names []string) [][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][]byte, 0, len(names))
	for _, n := range names {
		if d, ok := r.tools[n]; ok {
			out = append(out, d.Schema())
		}
	}
	return out
}
