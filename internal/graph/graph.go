package graph

import (
	"fmt"
	"sort"
	"sync"
)

// Provider is a registration that can be placed in the graph.
type Provider interface {
	// GraphKey returns the key the provider is registered under.
	GraphKey() string

	// DependencyKeys returns the keys the provider resolves when invoked.
	DependencyKeys() []string

	// GraphKind describes the registration, e.g. "singleton" or "alias".
	GraphKind() string
}

// DependencyGraph tracks which keys each registration depends on.
// Cycles are allowed to exist; they are reported by DetectCycles.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// Node represents a key in the dependency graph.
type Node struct {
	Key          string
	Kind         string
	Registered   bool     // false for keys only referenced as dependencies
	Dependencies []string // keys this node depends on
}

// NewDependencyGraph creates a new dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*Node),
	}
}

// AddProvider adds or replaces the node for a provider.
func (g *DependencyGraph) AddProvider(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	key := provider.GraphKey()
	if key == "" {
		return fmt.Errorf("provider key cannot be empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	node := g.node(key)
	node.Kind = provider.GraphKind()
	node.Registered = true

	deps := provider.DependencyKeys()
	node.Dependencies = make([]string, 0, len(deps))
	seen := make(map[string]bool, len(deps))
	for _, dep := range deps {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		node.Dependencies = append(node.Dependencies, dep)
		g.node(dep)
	}

	return nil
}

func (g *DependencyGraph) node(key string) *Node {
	node, ok := g.nodes[key]
	if !ok {
		node = &Node{Key: key}
		g.nodes[key] = node
	}
	return node
}

// RemoveProvider removes the registration for key. A key still referenced
// by other nodes is kept as an unregistered placeholder.
func (g *DependencyGraph) RemoveProvider(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[key]
	if !ok {
		return
	}

	deps := node.Dependencies
	node.Dependencies = nil
	node.Registered = false
	node.Kind = ""

	g.prune(key)
	for _, dep := range deps {
		g.prune(dep)
	}
}

// prune deletes an unregistered node nothing depends on.
func (g *DependencyGraph) prune(key string) {
	node, ok := g.nodes[key]
	if !ok || node.Registered {
		return
	}

	for _, other := range g.nodes {
		for _, dep := range other.Dependencies {
			if dep == key {
				return
			}
		}
	}

	delete(g.nodes, key)
}

// DetectCycles returns a CircularDependencyError for the first cycle found,
// visiting keys in sorted order.
func (g *DependencyGraph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(key string) error
	visit = func(key string) error {
		switch state[key] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, k := range stack {
				if k == key {
					start = i
					break
				}
			}
			path := append([]string{}, stack[start:]...)
			return CircularDependencyError{Path: append(path, key)}
		}

		state[key] = visiting
		stack = append(stack, key)

		if node, ok := g.nodes[key]; ok {
			for _, dep := range node.Dependencies {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[key] = done
		return nil
	}

	for _, key := range g.sortedKeys() {
		if err := visit(key); err != nil {
			return err
		}
	}

	return nil
}

// TopologicalSort returns keys with dependencies before their dependents.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.topologicalSort()
}

func (g *DependencyGraph) topologicalSort() ([]string, error) {
	pending := make(map[string]int, len(g.nodes))
	dependents := g.dependents()

	queue := make([]string, 0)
	for _, key := range g.sortedKeys() {
		pending[key] = len(g.nodes[key].Dependencies)
		if pending[key] == 0 {
			queue = append(queue, key)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range dependents[current] {
			pending[dependent]--
			if pending[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return result, fmt.Errorf("circular dependency detected: graph contains %d nodes but only %d could be sorted",
			len(g.nodes), len(result))
	}

	return result, nil
}

// dependents maps each key to the sorted keys depending on it.
func (g *DependencyGraph) dependents() map[string][]string {
	result := make(map[string][]string, len(g.nodes))
	for _, key := range g.sortedKeys() {
		for _, dep := range g.nodes[key].Dependencies {
			result[dep] = append(result[dep], key)
		}
	}
	return result
}

// Dependencies returns the direct dependencies of key.
func (g *DependencyGraph) Dependencies(key string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[key]
	if !ok {
		return nil
	}
	return append([]string(nil), node.Dependencies...)
}

// Dependents returns the keys that depend directly on key.
func (g *DependencyGraph) Dependents(key string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[key]; !ok {
		return nil
	}
	return g.dependents()[key]
}

// TransitiveDependencies returns every key reachable from key.
func (g *DependencyGraph) TransitiveDependencies(key string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[string]bool{key: true}
	result := make([]string, 0)

	var collect func(current string)
	collect = func(current string) {
		node, ok := g.nodes[current]
		if !ok {
			return
		}
		for _, dep := range node.Dependencies {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			result = append(result, dep)
			collect(dep)
		}
	}

	collect(key)
	return result
}

func (g *DependencyGraph) sortedKeys() []string {
	keys := make([]string, 0, len(g.nodes))
	for key := range g.nodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// depths assigns each node the length of its longest dependency chain.
// Nodes on a cycle get -1.
func (g *DependencyGraph) depths() map[string]int {
	order, _ := g.topologicalSort()

	result := make(map[string]int, len(g.nodes))
	for key := range g.nodes {
		result[key] = -1
	}

	for _, key := range order {
		depth := 0
		for _, dep := range g.nodes[key].Dependencies {
			if d := result[dep]; d >= 0 && d+1 > depth {
				depth = d + 1
			}
		}
		result[key] = depth
	}

	return result
}
