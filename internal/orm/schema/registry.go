package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/conduit-lang/flatquery/internal/orm/errs"
)

// Registry is the read-only catalogue of queryable entities. It is built once
// by Build and never mutated afterwards, so it can be shared by any number of
// goroutines without locking.
type Registry struct {
	entities map[string]*Entity
	names    []string
}

// RegistryStats summarises the registry contents
type RegistryStats struct {
	Entities    int
	Scalars     int
	Navigations int
	Collections int
}

// Build creates a registry from entity declarations. Navigations may refer to
// entities declared later in the list.
func Build(decls ...EntityDecl) (*Registry, error) {
	r := &Registry{entities: make(map[string]*Entity, len(decls))}

	pending := make(map[*Navigation]NavigationDecl)

	// Pass 1: entities, scalars and navigation shells
	for _, decl := range decls {
		entity, err := newEntityFromDecl(decl, pending)
		if err != nil {
			return nil, err
		}
		if _, exists := r.entities[entity.Name]; exists {
			return nil, fmt.Errorf("%w: entity %s is already registered", errs.ErrInvalidArgument, entity.Name)
		}
		r.entities[entity.Name] = entity
		r.names = append(r.names, entity.Name)
	}
	sort.Strings(r.names)

	// Pass 2: targets and inverses
	for _, name := range r.names {
		entity := r.entities[name]
		for _, nav := range entity.Navigations {
			if err := r.linkNavigation(entity, nav); err != nil {
				return nil, err
			}
		}
	}

	// Pass 3: storage keys. ManyToOne first so OneToMany can reuse the
	// inverse's foreign key.
	for _, c := range []Cardinality{ManyToOne, OneToMany, ManyToMany} {
		for _, name := range r.names {
			entity := r.entities[name]
			for _, nav := range entity.Navigations {
				if nav.Cardinality != c {
					continue
				}
				if err := r.resolveKeys(entity, nav, pending[nav]); err != nil {
					return nil, err
				}
			}
		}
	}

	// Pass 4: default sort paths
	for _, name := range r.names {
		entity := r.entities[name]
		for _, s := range entity.DefaultSort {
			if err := r.ValidateSortPath(entity, s.Path); err != nil {
				return nil, fmt.Errorf("entity %s: @order_by: %w", entity.Name, err)
			}
		}
		for _, nav := range entity.Navigations {
			target := r.entities[nav.Target]
			for _, s := range nav.DefaultSort {
				if err := r.ValidateSortPath(target, s.Path); err != nil {
					return nil, fmt.Errorf("%s.%s: @order_by: %w", entity.Name, nav.Name, err)
				}
			}
		}
	}

	return r, nil
}

func newEntityFromDecl(decl EntityDecl, pending map[*Navigation]NavigationDecl) (*Entity, error) {
	if strings.TrimSpace(decl.Name) == "" {
		return nil, fmt.Errorf("%w: entity name must not be empty", errs.ErrInvalidArgument)
	}

	table := decl.Table
	if table == "" {
		table = TableName(decl.Name)
	}
	entity := newEntity(decl.Name, table)
	if decl.Model != nil {
		t := reflect.TypeOf(decl.Model)
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		entity.Type = t
	}

	for _, pd := range decl.Properties {
		if strings.TrimSpace(pd.Name) == "" {
			return nil, fmt.Errorf("%w: entity %s: property name must not be empty", errs.ErrInvalidArgument, decl.Name)
		}
		prop := &Property{
			Name:     pd.Name,
			Column:   pd.Column,
			Type:     pd.Type,
			Nullable: pd.Nullable,
		}
		if prop.Column == "" {
			prop.Column = ToSnakeCase(pd.Name)
		}
		if err := applyPropertyAnnotations(decl.Name, prop, pd.Annotations); err != nil {
			return nil, err
		}
		if err := entity.addScalar(prop); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
		}
	}
	if len(entity.PrimaryKey()) == 0 {
		return nil, fmt.Errorf("%w: entity %s has no @primary property", errs.ErrInvalidArgument, decl.Name)
	}

	for _, nd := range decl.Navigations {
		if strings.TrimSpace(nd.Name) == "" {
			return nil, fmt.Errorf("%w: entity %s: navigation name must not be empty", errs.ErrInvalidArgument, decl.Name)
		}
		nav := &Navigation{
			Property:    Property{Name: nd.Name, Nullable: nd.Cardinality == ManyToOne},
			Target:      nd.Target,
			Cardinality: nd.Cardinality,
			Inverse:     nd.Inverse,
		}
		if err := applyNavigationAnnotations(decl.Name, nav, nd.Annotations); err != nil {
			return nil, err
		}
		if err := entity.addNavigation(nav); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
		}
		pending[nav] = nd
	}

	if err := applyEntityAnnotations(entity, decl.Annotations); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *Registry) linkNavigation(owner *Entity, nav *Navigation) error {
	target, ok := r.entities[nav.Target]
	if !ok {
		return fmt.Errorf("%w: %s.%s targets %s", ErrUnknownEntity, owner.Name, nav.Name, nav.Target)
	}
	if nav.Inverse == "" {
		return nil
	}
	inverse, err := target.Navigation(nav.Inverse)
	if err != nil {
		return fmt.Errorf("%s.%s: inverse: %w", owner.Name, nav.Name, err)
	}
	if inverse.Target != owner.Name {
		return fmt.Errorf("%w: %s.%s: inverse %s.%s targets %s", errs.ErrInvalidArgument,
			owner.Name, nav.Name, target.Name, inverse.Name, inverse.Target)
	}
	// canonical spelling
	nav.Inverse = inverse.Name
	return nil
}

func (r *Registry) resolveKeys(owner *Entity, nav *Navigation, decl NavigationDecl) error {
	target := r.entities[nav.Target]
	nav.LocalKey = decl.LocalKey
	nav.RemoteKey = decl.RemoteKey

	switch nav.Cardinality {
	case ManyToOne:
		if nav.LocalKey == "" {
			nav.LocalKey = ToSnakeCase(nav.Name) + "_id"
		}
		if nav.RemoteKey == "" {
			pk, err := singleKeyColumn(target)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", owner.Name, nav.Name, err)
			}
			nav.RemoteKey = pk
		}
	case OneToMany:
		if nav.LocalKey == "" {
			pk, err := singleKeyColumn(owner)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", owner.Name, nav.Name, err)
			}
			nav.LocalKey = pk
		}
		if nav.RemoteKey == "" {
			nav.RemoteKey = ToSnakeCase(owner.Name) + "_id"
			if nav.Inverse != "" {
				if inverse, err := target.Navigation(nav.Inverse); err == nil && inverse.Cardinality == ManyToOne {
					nav.RemoteKey = inverse.LocalKey
				}
			}
		}
	case ManyToMany:
		if decl.JoinTable == "" {
			return fmt.Errorf("%w: %s.%s: many_to_many requires a join table", errs.ErrInvalidArgument, owner.Name, nav.Name)
		}
		nav.JoinTable = decl.JoinTable
		nav.JoinLocalKey = decl.JoinLocalKey
		nav.JoinRemoteKey = decl.JoinRemoteKey
		if nav.JoinLocalKey == "" {
			nav.JoinLocalKey = ToSnakeCase(owner.Name) + "_id"
		}
		if nav.JoinRemoteKey == "" {
			nav.JoinRemoteKey = ToSnakeCase(target.Name) + "_id"
		}
		if nav.LocalKey == "" {
			pk, err := singleKeyColumn(owner)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", owner.Name, nav.Name, err)
			}
			nav.LocalKey = pk
		}
		if nav.RemoteKey == "" {
			pk, err := singleKeyColumn(target)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", owner.Name, nav.Name, err)
			}
			nav.RemoteKey = pk
		}
	}
	return nil
}

func singleKeyColumn(e *Entity) (string, error) {
	keys := e.PrimaryKey()
	if len(keys) != 1 {
		return "", fmt.Errorf("%w: entity %s has a composite primary key; declare key columns explicitly",
			errs.ErrInvalidArgument, e.Name)
	}
	return keys[0].Column, nil
}

// ValidateSortPath checks that path, relative to entity, walks single-valued
// navigations and ends at a scalar.
func (r *Registry) ValidateSortPath(entity *Entity, path string) error {
	segments := strings.Split(path, ".")
	current := entity
	for i, seg := range segments {
		if i == len(segments)-1 {
			_, err := current.Scalar(seg)
			return err
		}
		nav, err := current.Navigation(seg)
		if err != nil {
			return err
		}
		if nav.IsCollection() {
			return fmt.Errorf("%w: %s.%s is a collection", errs.ErrInvalidOperation, current.Name, nav.Name)
		}
		current = r.entities[nav.Target]
	}
	return nil
}

// Lookup returns the metadata of the named entity. Entity names are case-sensitive.
func (r *Registry) Lookup(name string) (*Entity, error) {
	entity, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return entity, nil
}

// Names returns the registered entity names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Entities returns all entities ordered by name
func (r *Registry) Entities() []*Entity {
	entities := make([]*Entity, 0, len(r.names))
	for _, name := range r.names {
		entities = append(entities, r.entities[name])
	}
	return entities
}

// Count returns the number of registered entities
func (r *Registry) Count() int {
	return len(r.entities)
}

// Stats returns statistics about the registry
func (r *Registry) Stats() RegistryStats {
	stats := RegistryStats{Entities: len(r.entities)}
	for _, entity := range r.entities {
		stats.Scalars += len(entity.Scalars)
		stats.Navigations += len(entity.Navigations)
		for _, nav := range entity.Navigations {
			if nav.IsCollection() {
				stats.Collections++
			}
		}
	}
	return stats
}
