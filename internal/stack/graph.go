package stack

import "fmt"

// CycleError reports the node at which a dependency cycle was detected.
type CycleError struct {
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected at %q", e.Node)
}

// TopologicalSort orders the keys of deps (name -> its dependencies) so that
// every dependency precedes its dependent. It performs a depth-first
// post-order walk over the full key set; a node re-entered while still on
// the current recursion path is reported as a cycle. Nodes with no
// dependencies land earliest. Relative order among independent nodes is
// unspecified.
func TopologicalSort(deps map[string][]string) ([]string, error) {
	visited := make(map[string]bool, len(deps))
	onPath := make(map[string]bool, len(deps))
	result := make([]string, 0, len(deps))

	var visit func(node string) error
	visit = func(node string) error {
		if visited[node] {
			return nil
		}
		if onPath[node] {
			return &CycleError{Node: node}
		}
		onPath[node] = true
		for _, dep := range deps[node] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		onPath[node] = false
		visited[node] = true
		result = append(result, node)
		return nil
	}

	// Dependency-free nodes are visited first so they lead the order.
	for node, d := range deps {
		if len(d) == 0 {
			if err := visit(node); err != nil {
				return nil, err
			}
		}
	}
	for node := range deps {
		if err := visit(node); err != nil {
			return nil, err
		}
	}
	return result, nil
}
