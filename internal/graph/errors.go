package graph

import (
	"fmt"
	"strings"
)

// CircularDependencyError reports a dependency cycle. Path starts and ends
// with the same key.
type CircularDependencyError struct {
	Path []string
}

func (e CircularDependencyError) Error() string {
	var b strings.Builder
	b.WriteString("circular dependency detected:\n\n")

	for i, key := range e.Path {
		if i == len(e.Path)-1 && i > 0 {
			b.WriteString(fmt.Sprintf("    %s (cycle)\n", key))
			break
		}
		b.WriteString(fmt.Sprintf("    %s\n", key))
		b.WriteString("      ↓\n")
	}

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Depend on an interface registered under another key\n")
	b.WriteString("  • Inject the depository and make the dependency lazily\n")

	return b.String()
}

// Chain returns the cycle as "a -> b -> a".
func (e CircularDependencyError) Chain() string {
	return strings.Join(e.Path, " -> ")
}
