package router

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// DescriptorYAML represents the repository descriptor file structure
type DescriptorYAML struct {
	Version string                `yaml:"version"`
	Default string                `yaml:"default,omitempty"`
	Stores  map[string]*StoreYAML `yaml:"stores"`
}

// StoreYAML represents one declared store
type StoreYAML struct {
	Index       string        `yaml:"index"`
	Description string        `yaml:"description,omitempty"`
	Types       []BindingYAML `yaml:"types,omitempty"`
	URIs        []string      `yaml:"uris,omitempty"`
}

// BindingYAML binds an entity type to a store
type BindingYAML struct {
	Name string `yaml:"name"`
	URI  string `yaml:"uri,omitempty"`
}

// Descriptor is the static routing table.
type Descriptor struct {
	// Default owns everything no binding or pattern claims. Empty means
	// unclaimed types and IRIs are routing errors.
	Default string
	Stores  []Store
}

// Store is one physical store and what it owns.
type Store struct {
	Name string
	// Index selects the backend: "sqlite:<path>", "memory:" or
	// "nats://host:port/<bucket>".
	Index       string
	Description string
	Types       []Binding
	// URIs are glob patterns matched against host+path of identity IRIs.
	URIs []string
}

// Binding routes a type name to a store. URI, when set, is an IRI prefix
// shared by the type's instances.
type Binding struct {
	Name string
	URI  string
}

// LoadDescriptor loads a repository descriptor from a YAML file
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	return ParseDescriptor(data)
}

// ParseDescriptor parses a repository descriptor from YAML bytes
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var y DescriptorYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	d := &Descriptor{Default: y.Default}
	names := make([]string, 0, len(y.Stores))
	for name := range y.Stores {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := y.Stores[name]
		if s == nil {
			return nil, fmt.Errorf("store %s: empty definition", name)
		}
		st := Store{Name: name, Index: s.Index, Description: s.Description, URIs: s.URIs}
		for _, b := range s.Types {
			st.Types = append(st.Types, Binding{Name: b.Name, URI: b.URI})
		}
		d.Stores = append(d.Stores, st)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks that store names are unique, each type is bound once,
// every pattern compiles and the default store exists.
func (d *Descriptor) Validate() error {
	stores := make(map[string]bool, len(d.Stores))
	types := make(map[string]string)
	for _, s := range d.Stores {
		if s.Name == "" {
			return fmt.Errorf("store with index %q has no name", s.Index)
		}
		if stores[s.Name] {
			return fmt.Errorf("store %s declared twice", s.Name)
		}
		stores[s.Name] = true
		if s.Index == "" {
			return fmt.Errorf("store %s: index is required", s.Name)
		}
		for _, b := range s.Types {
			if b.Name == "" {
				return fmt.Errorf("store %s: type binding without a name", s.Name)
			}
			if owner, ok := types[b.Name]; ok {
				return fmt.Errorf("type %s bound to both %s and %s", b.Name, owner, s.Name)
			}
			types[b.Name] = s.Name
		}
		for _, p := range s.URIs {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("store %s: invalid URI pattern %q", s.Name, p)
			}
		}
	}
	if d.Default != "" && !stores[d.Default] {
		return fmt.Errorf("default store %s is not declared", d.Default)
	}
	return nil
}

// ExportDescriptor exports a descriptor to YAML format
func ExportDescriptor(d *Descriptor) ([]byte, error) {
	y := DescriptorYAML{
		Version: "1",
		Default: d.Default,
		Stores:  make(map[string]*StoreYAML, len(d.Stores)),
	}
	for _, s := range d.Stores {
		sy := &StoreYAML{Index: s.Index, Description: s.Description, URIs: s.URIs}
		for _, b := range s.Types {
			sy.Types = append(sy.Types, BindingYAML{Name: b.Name, URI: b.URI})
		}
		y.Stores[s.Name] = sy
	}
	return yaml.Marshal(&y)
}
