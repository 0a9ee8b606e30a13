package device

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogEntry struct {
	Kind  string `yaml:"kind"`
	Tipo  string `yaml:"tipo"`
	Label string `yaml:"label"`
}

type catalogFile struct {
	Kinds []catalogEntry `yaml:"kinds"`
}

// Catalog maps backend device type names to kinds and display labels.
type Catalog struct {
	byTipo map[string]Kind
	labels map[Kind]string
}

var defaultCatalog = mustLoadCatalog(catalogYAML)

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// LoadCatalog parses a catalog document.
func LoadCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse device catalog: %w", err)
	}

	c := &Catalog{
		byTipo: make(map[string]Kind, len(file.Kinds)),
		labels: make(map[Kind]string, len(file.Kinds)),
	}
	for _, e := range file.Kinds {
		kind, ok := ParseKind(e.Kind)
		if !ok || kind == KindPond {
			return nil, fmt.Errorf("device catalog: unknown kind %q", e.Kind)
		}
		tipo := strings.ToLower(strings.TrimSpace(e.Tipo))
		if tipo == "" {
			return nil, fmt.Errorf("device catalog: kind %q has no tipo", e.Kind)
		}
		if _, dup := c.byTipo[tipo]; dup {
			return nil, fmt.Errorf("device catalog: duplicate tipo %q", tipo)
		}
		c.byTipo[tipo] = kind
		c.labels[kind] = e.Label
	}
	return c, nil
}

func mustLoadCatalog(data []byte) *Catalog {
	c, err := LoadCatalog(data)
	if err != nil {
		panic(err)
	}
	return c
}

// KindOf resolves a backend tipo, case-insensitively.
func (c *Catalog) KindOf(tipo string) Kind {
	return c.byTipo[strings.ToLower(strings.TrimSpace(tipo))]
}

// Label returns the display label of k, falling back to its String form.
func (c *Catalog) Label(k Kind) string {
	if l, ok := c.labels[k]; ok && l != "" {
		return l
	}
	return k.String()
}
