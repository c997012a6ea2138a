package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"
)

// RelationshipGraph is the directed graph of navigations between entities.
// Cycles are legal (Employee -> Department -> Employee); the graph exists to
// report them, not to reject them.
type RelationshipGraph struct {
	g graph.Graph[string, string]
}

// Graph builds the relationship graph of the registry
func (r *Registry) Graph() (*RelationshipGraph, error) {
	g := graph.New(graph.StringHash, graph.Directed())
	for _, name := range r.names {
		if err := g.AddVertex(name); err != nil {
			return nil, fmt.Errorf("failed to add entity %s: %w", name, err)
		}
	}
	for _, name := range r.names {
		for _, nav := range r.entities[name].Navigations {
			err := g.AddEdge(name, nav.Target)
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("failed to add navigation %s.%s: %w", name, nav.Name, err)
			}
		}
	}
	return &RelationshipGraph{g: g}, nil
}

// Neighbours returns the entities directly reachable from entity
func (rg *RelationshipGraph) Neighbours(entity string) ([]string, error) {
	adjacency, err := rg.g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	edges, ok := adjacency[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	out := make([]string, 0, len(edges))
	for target := range edges {
		out = append(out, target)
	}
	sort.Strings(out)
	return out, nil
}

// Cycles returns every group of mutually reachable entities, including
// entities that navigate to themselves. Members and groups are sorted.
func (rg *RelationshipGraph) Cycles() ([][]string, error) {
	components, err := graph.StronglyConnectedComponents(rg.g)
	if err != nil {
		return nil, err
	}
	adjacency, err := rg.g.AdjacencyMap()
	if err != nil {
		return nil, err
	}

	var cycles [][]string
	for _, component := range components {
		if len(component) == 1 {
			if _, self := adjacency[component[0]][component[0]]; !self {
				continue
			}
		}
		members := append([]string(nil), component...)
		sort.Strings(members)
		cycles = append(cycles, members)
	}
	sort.Slice(cycles, func(i, j int) bool {
		return strings.Join(cycles[i], ",") < strings.Join(cycles[j], ",")
	})
	return cycles, nil
}

// FormatCycles formats cycles for display
func FormatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  Cycle %d: %s", i+1, strings.Join(cycle, " <-> "))
	}
	return b.String()
}
