package schema

import (
	"encoding/json"
	"fmt"
)

// Annotation is a declarative tag attached to an entity, property or
// navigation declaration, e.g. {Name: "order_by", Args: ["lastName"]}.
type Annotation struct {
	Name string        `json:"name"`
	Args []interface{} `json:"args,omitempty"`
}

// EntityDecl declares one queryable entity. Declarations are turned into an
// immutable Registry by Build.
type EntityDecl struct {
	Name  string `json:"name"`
	Table string `json:"table,omitempty"`
	// Model is an optional value of the Go type backing the entity
	Model       interface{}      `json:"-"`
	Properties  []PropertyDecl   `json:"properties"`
	Navigations []NavigationDecl `json:"navigations,omitempty"`
	Annotations []Annotation     `json:"annotations,omitempty"`
}

// PropertyDecl declares a scalar property
type PropertyDecl struct {
	Name        string        `json:"name"`
	Type        PrimitiveType `json:"type"`
	Column      string        `json:"column,omitempty"`
	Nullable    bool          `json:"nullable,omitempty"`
	Annotations []Annotation  `json:"annotations,omitempty"`
}

// NavigationDecl declares a relationship to another entity. Key columns left
// empty are derived from naming conventions when the registry is built.
type NavigationDecl struct {
	Name          string       `json:"name"`
	Target        string       `json:"target"`
	Cardinality   Cardinality  `json:"cardinality"`
	Inverse       string       `json:"inverse,omitempty"`
	LocalKey      string       `json:"local_key,omitempty"`
	RemoteKey     string       `json:"remote_key,omitempty"`
	JoinTable     string       `json:"join_table,omitempty"`
	JoinLocalKey  string       `json:"join_local_key,omitempty"`
	JoinRemoteKey string       `json:"join_remote_key,omitempty"`
	Annotations   []Annotation `json:"annotations,omitempty"`
}

// Primary marks a property as (part of) the primary key
func Primary() Annotation {
	return Annotation{Name: AnnotationPrimary}
}

// OrderBy declares an ascending default sort on path
func OrderBy(path string) Annotation {
	return Annotation{Name: AnnotationOrderBy, Args: []interface{}{path}}
}

// OrderByDesc declares a descending default sort on path
func OrderByDesc(path string) Annotation {
	return Annotation{Name: AnnotationOrderBy, Args: []interface{}{path, "desc"}}
}

// Where declares a default filter expression
func Where(expr string) Annotation {
	return Annotation{Name: AnnotationWhere, Args: []interface{}{expr}}
}

// RecursionCap bounds wildcard expansion through a navigation
func RecursionCap(levels int) Annotation {
	return Annotation{Name: AnnotationRecursionCap, Args: []interface{}{levels}}
}

// MarshalJSON encodes the type by name
func (p PrimitiveType) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a type name such as "string" or "timestamp"
func (p *PrimitiveType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("property type must be a string: %w", err)
	}
	parsed, err := ParsePrimitiveType(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON encodes the cardinality by name
func (c Cardinality) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a cardinality name such as "many_to_one"
func (c *Cardinality) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("cardinality must be a string: %w", err)
	}
	parsed, err := ParseCardinality(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
