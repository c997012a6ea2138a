package schema

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/conduit-lang/flatquery/internal/orm/errs"
)

// Catalog is the on-disk form of a set of entity declarations
type Catalog struct {
	Entities []EntityDecl `json:"entities"`
}

// ParseCatalog decodes a YAML (or JSON) catalogue. Unknown keys are rejected.
func ParseCatalog(data []byte) ([]EntityDecl, error) {
	var catalog Catalog
	if err := yaml.UnmarshalStrict(data, &catalog); err != nil {
		return nil, fmt.Errorf("%w: failed to parse catalog: %v", errs.ErrInvalidArgument, err)
	}
	if len(catalog.Entities) == 0 {
		return nil, fmt.Errorf("%w: catalog declares no entities", errs.ErrInvalidArgument)
	}
	return catalog.Entities, nil
}

// LoadFile reads a catalogue file and builds a registry from it
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	decls, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Build(decls...)
}

// MarshalCatalog encodes declarations as a YAML catalogue
func MarshalCatalog(decls []EntityDecl) ([]byte, error) {
	out, err := yaml.Marshal(Catalog{Entities: decls})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog: %w", err)
	}
	return out, nil
}
