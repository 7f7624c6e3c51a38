package graph

import (
	"fmt"
	"io"
	"strings"
)

// Visualizer renders a dependency graph.
type Visualizer struct {
	graph *DependencyGraph
}

// NewVisualizer creates a new graph visualizer.
func NewVisualizer(graph *DependencyGraph) *Visualizer {
	return &Visualizer{graph: graph}
}

// WriteDOT writes the graph in Graphviz DOT format. Output is sorted by key.
func (v *Visualizer) WriteDOT(w io.Writer) error {
	v.graph.mu.RLock()
	defer v.graph.mu.RUnlock()

	keys := v.graph.sortedKeys()
	ids := make(map[string]string, len(keys))

	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box];\n")

	for i, key := range keys {
		ids[key] = fmt.Sprintf("n%d", i)
		node := v.graph.nodes[key]
		fmt.Fprintf(&b, "  %s [label=%q, fillcolor=%q, style=filled];\n",
			ids[key], shortKey(key), nodeColor(node))
	}

	for _, key := range keys {
		for _, dep := range v.graph.nodes[key].Dependencies {
			fmt.Fprintf(&b, "  %s -> %s;\n", ids[key], ids[dep])
		}
	}

	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteText writes the graph grouped by dependency depth.
func (v *Visualizer) WriteText(w io.Writer) error {
	v.graph.mu.RLock()
	defer v.graph.mu.RUnlock()

	var b strings.Builder
	b.WriteString("Dependency Graph:\n")
	b.WriteString("=================\n\n")

	depths := v.graph.depths()
	dependents := v.graph.dependents()

	levels := make(map[int][]string)
	maxDepth := -1
	for _, key := range v.graph.sortedKeys() {
		d := depths[key]
		levels[d] = append(levels[d], key)
		if d > maxDepth {
			maxDepth = d
		}
	}

	for depth := 0; depth <= maxDepth; depth++ {
		keys, ok := levels[depth]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Level %d:\n", depth)
		b.WriteString("--------\n")
		for _, key := range keys {
			v.writeNodeDetails(&b, v.graph.nodes[key], dependents[key], "  ")
		}
		b.WriteString("\n")
	}

	if keys, ok := levels[-1]; ok {
		b.WriteString("Nodes in Cycles:\n")
		b.WriteString("----------------\n")
		for _, key := range keys {
			v.writeNodeDetails(&b, v.graph.nodes[key], dependents[key], "  ")
		}
		b.WriteString("\n")
	}

	edges := 0
	for _, node := range v.graph.nodes {
		edges += len(node.Dependencies)
	}

	b.WriteString("Statistics:\n")
	b.WriteString("-----------\n")
	fmt.Fprintf(&b, "  Total nodes: %d\n", len(v.graph.nodes))
	fmt.Fprintf(&b, "  Total edges: %d\n", edges)
	if _, cyclic := levels[-1]; cyclic {
		b.WriteString("  Cycles: DETECTED\n")
	} else {
		b.WriteString("  Cycles: None\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (v *Visualizer) writeNodeDetails(b *strings.Builder, node *Node, dependents []string, indent string) {
	fmt.Fprintf(b, "%s%s\n", indent, node.Key)

	if node.Registered {
		fmt.Fprintf(b, "%s  Kind: %s\n", indent, node.Kind)
	} else {
		fmt.Fprintf(b, "%s  Kind: unregistered\n", indent)
	}

	if len(node.Dependencies) > 0 {
		fmt.Fprintf(b, "%s  Dependencies: [%s]\n", indent, strings.Join(node.Dependencies, ", "))
	}

	if len(dependents) > 0 {
		fmt.Fprintf(b, "%s  Dependents: [%s]\n", indent, strings.Join(dependents, ", "))
	}
}

// shortKey drops the import path from a type key for labels.
func shortKey(key string) string {
	prefix := ""
	for strings.HasPrefix(key, "*") {
		prefix += "*"
		key = key[1:]
	}
	if i := strings.LastIndex(key, "/"); i >= 0 {
		key = key[i+1:]
	}
	return prefix + key
}

func nodeColor(node *Node) string {
	if !node.Registered {
		return "lightgray"
	}

	switch node.Kind {
	case "singleton":
		return "lightblue"
	case "transient":
		return "lightyellow"
	case "alias", "reference":
		return "lightgreen"
	default:
		return "white"
	}
}
