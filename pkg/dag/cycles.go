package dag

import (
	"fmt"
	"strings"
)

// CycleError rejects an AddEdge call that would close a cycle. Path
// holds the existing chain from the edge's consumer back to its
// producer; the rejected edge is the closing link. The graph is left
// unchanged.
type CycleError struct {
	From  string
	To    string
	Label string
	Path  []string
}

func (e *CycleError) Error() string {
	loop := append([]string{e.From}, e.Path...)
	return fmt.Sprintf("edge %s -> %s (%s) would close a cycle: %s",
		e.From, e.To, e.Label, strings.Join(loop, " -> "))
}

// AddEdge records that From supplies the dynamic part Label to To.
// Both nodes must exist, the label must be produced by From and still
// pending on To, and the edge must not close a cycle. An exact
// duplicate of an existing edge is a no-op.
func (d *DAG) AddEdge(from, to, label string) error {
	producer, ok := d.nodes[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	consumer, ok := d.nodes[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}

	for _, e := range d.edges {
		if e.From == from && e.To == to && e.Label == label {
			return nil
		}
	}

	if !contains(producer.ExtractedParts, label) {
		return fmt.Errorf("node %s does not produce %q", from, label)
	}
	if !contains(consumer.DynamicParts, label) {
		return fmt.Errorf("node %s is not waiting on %q", to, label)
	}

	if path := d.pathBetween(to, from); path != nil {
		return &CycleError{From: from, To: to, Label: label, Path: path}
	}

	d.edges = append(d.edges, Edge{From: from, To: to, Label: label})
	return nil
}

// pathBetween returns the node ids along an existing directed path
// from start to target, or nil when target is unreachable. A start
// equal to target is the trivial path.
func (d *DAG) pathBetween(start, target string) []string {
	if start == target {
		return []string{start}
	}
	visited := map[string]bool{start: true}
	var walk func(id string) []string
	walk = func(id string) []string {
		for _, e := range d.edges {
			if e.From != id || visited[e.To] {
				continue
			}
			if e.To == target {
				return []string{e.To}
			}
			visited[e.To] = true
			if rest := walk(e.To); rest != nil {
				return append([]string{e.To}, rest...)
			}
		}
		return nil
	}
	rest := walk(start)
	if rest == nil {
		return nil
	}
	return append([]string{start}, rest...)
}

// DetectCycles returns the node ids of one cycle, or nil when the
// graph is acyclic. AddEdge keeps the graph acyclic, so this only
// finds cycles in graphs loaded from external JSON.
func (d *DAG) DetectCycles() []string {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(d.order))

	var cycle []string
	var visit func(id string, stack []string) bool
	visit = func(id string, stack []string) bool {
		state[id] = inProgress
		stack = append(stack, id)
		for _, e := range d.edges {
			if e.From != id {
				continue
			}
			switch state[e.To] {
			case inProgress:
				for i, s := range stack {
					if s == e.To {
						cycle = append([]string(nil), stack[i:]...)
						return true
					}
				}
			case unvisited:
				if visit(e.To, stack) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	for _, id := range d.order {
		if state[id] == unvisited && visit(id, nil) {
			return cycle
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
