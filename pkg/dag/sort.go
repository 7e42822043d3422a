package dag

import "fmt"

// TopologicalSort returns every node id with producers before
// consumers. When several nodes are ready at the same time, insertion
// order decides, so repeated sorts of the same graph agree.
func (d *DAG) TopologicalSort() ([]string, error) {
	indegree := make(map[string]int, len(d.order))
	for _, id := range d.order {
		indegree[id] = 0
	}
	for _, e := range d.edges {
		indegree[e.To]++
	}

	sorted := make([]string, 0, len(d.order))
	placed := make(map[string]bool, len(d.order))
	for len(sorted) < len(d.order) {
		ready := ""
		for _, id := range d.order {
			if !placed[id] && indegree[id] == 0 {
				ready = id
				break
			}
		}
		if ready == "" {
			return nil, fmt.Errorf("graph contains a cycle")
		}
		placed[ready] = true
		sorted = append(sorted, ready)
		for _, e := range d.edges {
			if e.From == ready {
				indegree[e.To]--
			}
		}
	}
	return sorted, nil
}
