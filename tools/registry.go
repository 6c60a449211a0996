// Package tools holds the registry of validated tool descriptors and binds it
// to an MCP server.
package tools

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	toolerrors "github.com/olgasafonova/tooldock-mcp-server/internal/errors"
)

// ErrSealed is returned when registering into an installed catalog.
var ErrSealed = errors.New("catalog is sealed")

// BuiltinUnit is the owner recorded for reserved names.
const BuiltinUnit = "builtin"

// View is the read-only registry surface handed to consumers.
type View interface {
	Lookup(name string) (*Descriptor, bool)
	All() iter.Seq[*Descriptor]
	Len() int
}

// Catalog is a set of descriptors keyed by name. A catalog is built by one
// goroutine and becomes immutable once sealed.
type Catalog struct {
	byName     map[string]*Descriptor
	reserved   map[string]string // name -> owner
	sorted     []*Descriptor
	sealed     bool
	generation uint64
}

// NewCatalog creates an empty, unsealed catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byName:   make(map[string]*Descriptor),
		reserved: make(map[string]string),
	}
}

// Reserve marks name as taken by owner without adding a descriptor.
func (c *Catalog) Reserve(name, owner string) {
	c.reserved[name] = owner
}

// Register inserts d. A name that is already present or reserved fails with
// a *DuplicateToolError and leaves the catalog unchanged.
func (c *Catalog) Register(d *Descriptor) error {
	if c.sealed {
		return ErrSealed
	}
	if d == nil || d.Name == "" {
		return fmt.Errorf("descriptor has no name")
	}
	if existing, ok := c.byName[d.Name]; ok {
		return &toolerrors.DuplicateToolError{Name: d.Name, ExistingUnit: existing.Unit, IncomingUnit: d.Unit}
	}
	if owner, ok := c.reserved[d.Name]; ok {
		return &toolerrors.DuplicateToolError{Name: d.Name, ExistingUnit: owner, IncomingUnit: d.Unit}
	}
	c.byName[d.Name] = d
	return nil
}

// Lookup returns the descriptor registered under name.
func (c *Catalog) Lookup(name string) (*Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.byName)
}

// Generation returns the generation the catalog was installed with.
func (c *Catalog) Generation() uint64 {
	return c.generation
}

// Names returns the registered names in order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for d := range c.All() {
		names = append(names, d.Name)
	}
	return names
}

// All yields the descriptors sorted by name. The sequence can be iterated
// any number of times.
func (c *Catalog) All() iter.Seq[*Descriptor] {
	list := c.sorted
	if !c.sealed {
		list = c.sortedCopy()
	}
	return func(yield func(*Descriptor) bool) {
		for _, d := range list {
			if !yield(d) {
				return
			}
		}
	}
}

// Descriptors returns the descriptors sorted by name.
func (c *Catalog) Descriptors() []*Descriptor {
	return slices.Collect(c.All())
}

func (c *Catalog) sortedCopy() []*Descriptor {
	list := make([]*Descriptor, 0, len(c.byName))
	for _, d := range c.byName {
		list = append(list, d)
	}
	slices.SortFunc(list, func(a, b *Descriptor) int {
		return strings.Compare(a.Name, b.Name)
	})
	return list
}

func (c *Catalog) seal(generation uint64) {
	c.generation = generation
	c.sorted = c.sortedCopy()
	c.sealed = true
}

// Registry holds the live catalog. Readers never block; ReplaceAll swaps in a
// complete new catalog, so a reader sees either the old or the new set.
type Registry struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Catalog]
}

// NewRegistry creates a registry holding an empty catalog at generation 0.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := NewCatalog()
	empty.seal(0)
	r.current.Store(empty)
	return r
}

// Snapshot returns the live catalog.
func (r *Registry) Snapshot() *Catalog {
	return r.current.Load()
}

// Lookup returns the descriptor registered under name in the live catalog.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	return r.Snapshot().Lookup(name)
}

// All yields the descriptors of the catalog that is live when All is called.
func (r *Registry) All() iter.Seq[*Descriptor] {
	return r.Snapshot().All()
}

// Len returns the number of tools in the live catalog.
func (r *Registry) Len() int {
	return r.Snapshot().Len()
}

// Generation returns the generation of the live catalog.
func (r *Registry) Generation() uint64 {
	return r.Snapshot().Generation()
}

// ReplaceAll installs a new catalog built from descs. Descriptors are copied
// and stamped with the new generation. A duplicate name means the caller
// handed over an inconsistent set; it is returned as an error and the live
// catalog is left as it was.
func (r *Registry) ReplaceAll(descs []*Descriptor) (*Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	generation := r.Snapshot().Generation() + 1
	next := NewCatalog()
	for _, d := range descs {
		cp := *d
		cp.Generation = generation
		if err := next.Register(&cp); err != nil {
			return nil, fmt.Errorf("registry corruption: %w", err)
		}
	}
	next.seal(generation)
	r.current.Store(next)
	return next, nil
}
