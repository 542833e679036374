// Package catalog is the static registry of builtin tool boxes. A Catalog is
// built once at startup and only read afterwards.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/germanamz/relay/pkg/state"
	"github.com/germanamz/relay/pkg/tools/calculator"
	"github.com/germanamz/relay/pkg/tools/flight"
	"github.com/germanamz/relay/pkg/tools/party"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/germanamz/relay/pkg/tools/web"
)

// ErrUnknown is returned by Build for names the catalog does not hold.
var ErrUnknown = errors.New("catalog: unknown toolbox")

// Factory builds a fresh tool box.
type Factory func() *toolbox.ToolBox

// Builtin lists the tool boxes shipped with relay.
func Builtin() map[string]Factory {
	return map[string]Factory{
		"calculator": calculator.New,
		"flight":     flight.New,
		"party":      party.New,
		"web":        web.New,
		"state":      func() *toolbox.ToolBox { return state.Tools("shared") },
	}
}

// Catalog maps tool box names to factories.
type Catalog struct {
	factories map[string]Factory
}

// New returns a catalog holding the builtins plus extra. An extra entry may
// not shadow a builtin.
func New(extra map[string]Factory) (*Catalog, error) {
	factories := Builtin()
	for name, f := range extra {
		if _, dup := factories[name]; dup {
			return nil, fmt.Errorf("catalog: %q is already registered", name)
		}
		if f == nil {
			return nil, fmt.Errorf("catalog: %q has no factory", name)
		}
		factories[name] = f
	}
	return &Catalog{factories: factories}, nil
}

// Default returns a catalog of the builtins only.
func Default() *Catalog {
	c, _ := New(nil)
	return c
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	_, ok := c.factories[name]
	return ok
}

// Build runs the factory registered under name.
func (c *Catalog) Build(name string) (*toolbox.ToolBox, error) {
	f, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return f(), nil
}

// Names returns the registered names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
