// Package schema provides the entity metadata catalogue used by the dynamic
// query engine. It describes every queryable entity's scalar properties and
// navigation (relationship) properties, together with the storage mapping and
// the declarative defaults (sort order, implicit filters, recursion caps)
// attached to them.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Lookup errors
var (
	// ErrUnknownEntity is returned when an entity name is not registered
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownProperty is returned when a property name does not exist on an entity
	ErrUnknownProperty = errors.New("unknown property")

	// ErrNotANavigation is returned when a scalar property is used as a relationship
	ErrNotANavigation = errors.New("not a navigation property")
)

// PrimitiveType represents the semantic type of a scalar property
type PrimitiveType int

const (
	// Text types
	TypeString PrimitiveType = iota
	TypeText

	// Numeric types
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal

	// Boolean
	TypeBool

	// Time types
	TypeTimestamp
	TypeDate
	TypeTime

	// Unique identifiers
	TypeUUID
)

// String returns the string representation of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeUUID:
		return "uuid"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a string to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch strings.ToLower(s) {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "int", "integer":
		return TypeInt, nil
	case "bigint":
		return TypeBigInt, nil
	case "float", "double":
		return TypeFloat, nil
	case "decimal":
		return TypeDecimal, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "timestamp", "datetime":
		return TypeTimestamp, nil
	case "date":
		return TypeDate, nil
	case "time":
		return TypeTime, nil
	case "uuid":
		return TypeUUID, nil
	default:
		return 0, fmt.Errorf("unknown primitive type: %s", s)
	}
}

// Cardinality describes the shape of a navigation property
type Cardinality int

const (
	// ManyToOne is a single-valued reference
	ManyToOne Cardinality = iota
	// OneToMany is a collection whose rows point back at the owner
	OneToMany
	// ManyToMany is a collection linked through a join table
	ManyToMany
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	switch c {
	case ManyToOne:
		return "many_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// ParseCardinality converts a string to a Cardinality
func ParseCardinality(s string) (Cardinality, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "many_to_one", "belongs_to", "has_one":
		return ManyToOne, nil
	case "one_to_many", "has_many":
		return OneToMany, nil
	case "many_to_many", "has_many_through":
		return ManyToMany, nil
	default:
		return 0, fmt.Errorf("unknown cardinality: %s", s)
	}
}

// SortSpec is a single (path, direction) pair of a default sort order.
// Path is relative to the entity the sort is declared on.
type SortSpec struct {
	Path       string
	Descending bool
}

// String renders the sort spec as "path ASC|DESC"
func (s SortSpec) String() string {
	if s.Descending {
		return s.Path + " DESC"
	}
	return s.Path + " ASC"
}

// Property describes a scalar member of an entity
type Property struct {
	Name       string
	Column     string
	Type       PrimitiveType
	Nullable   bool
	PrimaryKey bool
}

// Navigation describes a relationship member of an entity
type Navigation struct {
	Property

	Target      string
	Cardinality Cardinality
	Inverse     string

	// LocalKey is the column on the owning entity, RemoteKey the column on the
	// target. For ManyToMany they are matched against JoinLocalKey and
	// JoinRemoteKey of JoinTable.
	LocalKey      string
	RemoteKey     string
	JoinTable     string
	JoinLocalKey  string
	JoinRemoteKey string

	// RecursionCap bounds wildcard expansion through this navigation (0 = none)
	RecursionCap int

	// DefaultFilter and DefaultSort override the target entity's defaults when
	// this collection is expanded.
	DefaultFilter string
	DefaultSort   []SortSpec
}

// IsCollection reports whether the navigation is collection-valued
func (n *Navigation) IsCollection() bool {
	return n.Cardinality == OneToMany || n.Cardinality == ManyToMany
}

// member is an entry of the case-insensitive lookup; exactly one field is set
type member struct {
	scalar *Property
	nav    *Navigation
}

// Entity describes a queryable entity
type Entity struct {
	Name  string
	Table string
	// Type is the Go type backing the entity, when one was declared
	Type reflect.Type

	Scalars     []*Property
	Navigations []*Navigation

	DefaultSort   []SortSpec
	DefaultFilter string

	members map[string]member
}

func newEntity(name, table string) *Entity {
	return &Entity{
		Name:    name,
		Table:   table,
		members: make(map[string]member),
	}
}

// HasProperty reports whether the entity has a scalar or navigation named name
func (e *Entity) HasProperty(name string) bool {
	_, ok := e.members[strings.ToLower(name)]
	return ok
}

// IsNavigation reports whether name is a navigation property of the entity
func (e *Entity) IsNavigation(name string) bool {
	m, ok := e.members[strings.ToLower(name)]
	return ok && m.nav != nil
}

// Property returns the metadata for the named member. Navigations are
// returned through their embedded Property.
func (e *Entity) Property(name string) (*Property, error) {
	m, ok := e.members[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, e.Name, name)
	}
	if m.nav != nil {
		return &m.nav.Property, nil
	}
	return m.scalar, nil
}

// Scalar returns the named scalar property
func (e *Entity) Scalar(name string) (*Property, error) {
	m, ok := e.members[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, e.Name, name)
	}
	if m.nav != nil {
		return nil, fmt.Errorf("%s.%s is a navigation property, not a scalar", e.Name, m.nav.Name)
	}
	return m.scalar, nil
}

// Navigation returns the named navigation property
func (e *Entity) Navigation(name string) (*Navigation, error) {
	m, ok := e.members[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, e.Name, name)
	}
	if m.nav == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotANavigation, e.Name, m.scalar.Name)
	}
	return m.nav, nil
}

// NavigationTarget returns the target entity name of the named navigation
func (e *Entity) NavigationTarget(name string) (string, error) {
	nav, err := e.Navigation(name)
	if err != nil {
		return "", err
	}
	return nav.Target, nil
}

// PrimaryKey returns the primary key properties in declaration order
func (e *Entity) PrimaryKey() []*Property {
	var keys []*Property
	for _, p := range e.Scalars {
		if p.PrimaryKey {
			keys = append(keys, p)
		}
	}
	return keys
}

func (e *Entity) addScalar(p *Property) error {
	key := strings.ToLower(p.Name)
	if _, exists := e.members[key]; exists {
		return fmt.Errorf("entity %s: duplicate property %s", e.Name, p.Name)
	}
	e.members[key] = member{scalar: p}
	e.Scalars = append(e.Scalars, p)
	return nil
}

func (e *Entity) addNavigation(n *Navigation) error {
	key := strings.ToLower(n.Name)
	if _, exists := e.members[key]; exists {
		return fmt.Errorf("entity %s: duplicate property %s", e.Name, n.Name)
	}
	e.members[key] = member{nav: n}
	e.Navigations = append(e.Navigations, n)
	return nil
}
