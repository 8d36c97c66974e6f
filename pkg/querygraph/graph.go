// Package querygraph plans which dependent reads must run when request parameters change.
//
// Each node derives a fetch key from the current State. A node is planned when its key changed
// since the previous state or when any upstream node is planned. Nodes whose key is not
// derivable (missing parameters) are disabled and never planned.
package querygraph

import (
	"fmt"
	"sort"
)

// State carries the request parameters nodes derive their keys from.
type State map[string]string

// Node describes one query.
type Node struct {
	Name     string
	Upstream []string
	Key      func(State) (string, bool)
}

// Step is one planned query with the key it should be fetched by.
type Step struct {
	Name string
	Key  string
}

// Graph is an immutable, topologically ordered set of nodes.
type Graph struct {
	order []Node
}

// New validates the nodes (unique names, known upstreams, no cycles) and orders them.
func New(nodes ...Node) (*Graph, error) {
	byName := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if n.Name == "" || n.Key == nil {
			return nil, fmt.Errorf("querygraph: node %q needs a name and a key function", n.Name)
		}
		if _, dup := byName[n.Name]; dup {
			return nil, fmt.Errorf("querygraph: duplicate node %q", n.Name)
		}
		byName[n.Name] = n
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(byName))
	order := make([]Node, 0, len(byName))

	var visit func(string) error
	visit = func(name string) error {
		switch marks[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("querygraph: cycle through %q", name)
		}
		marks[name] = visiting
		node := byName[name]
		for _, up := range node.Upstream {
			if _, ok := byName[up]; !ok {
				return fmt.Errorf("querygraph: node %q depends on unknown %q", name, up)
			}
			if err := visit(up); err != nil {
				return err
			}
		}
		marks[name] = done
		order = append(order, node)
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return &Graph{order: order}, nil
}

// Plan returns the steps to run when moving from prev to next, upstream first. A nil prev plans
// every enabled node.
func (g *Graph) Plan(prev, next State) []Step {
	planned := make(map[string]bool, len(g.order))
	var steps []Step
	for _, node := range g.order {
		key, ok := node.Key(next)
		if !ok {
			continue
		}
		run := prev == nil
		if !run {
			prevKey, prevOK := node.Key(prev)
			run = !prevOK || prevKey != key
		}
		for _, up := range node.Upstream {
			if planned[up] {
				run = true
			}
		}
		if run {
			planned[node.Name] = true
			steps = append(steps, Step{Name: node.Name, Key: key})
		}
	}
	return steps
}

// Enabled lists the steps derivable from s regardless of history.
func (g *Graph) Enabled(s State) []Step {
	return g.Plan(nil, s)
}
