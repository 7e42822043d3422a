package dag

import (
	"encoding/json"
	"fmt"

	"github.com/harvest-ai/harvest/pkg/curl"
)

// Requests serialize as their canonical curl rendering, which
// round-trips the fields analysis and emission rely on. Captured
// responses are not part of the graph document, they belong to the
// session's parsed capture.

type nodeJSON struct {
	ID             string            `json:"id"`
	Type           NodeType          `json:"type"`
	Curl           string            `json:"curl,omitempty"`
	Key            string            `json:"key,omitempty"`
	Value          string            `json:"value,omitempty"`
	ExtractedParts []string          `json:"extracted_parts,omitempty"`
	DynamicParts   []string          `json:"dynamic_parts,omitempty"`
	InputVariables map[string]string `json:"input_variables,omitempty"`
}

type dagJSON struct {
	Nodes []nodeJSON `json:"nodes"`
	Edges []Edge     `json:"edges"`
}

// MarshalJSON renders the graph as {"nodes": [...], "edges": [...]},
// nodes in insertion order.
func (d *DAG) MarshalJSON() ([]byte, error) {
	doc := dagJSON{
		Nodes: make([]nodeJSON, 0, len(d.order)),
		Edges: append([]Edge{}, d.edges...),
	}
	for _, id := range d.order {
		node := d.nodes[id]
		nj := nodeJSON{
			ID:             node.ID,
			Type:           node.Type,
			Key:            node.Key,
			Value:          node.Value,
			ExtractedParts: node.ExtractedParts,
			DynamicParts:   node.DynamicParts,
			InputVariables: node.InputVariables,
		}
		if node.Request != nil {
			nj.Curl = node.Request.Render()
		}
		doc.Nodes = append(doc.Nodes, nj)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON loads a graph document, parsing each node's curl text
// back into a request and rejecting documents that contain a cycle.
func (d *DAG) UnmarshalJSON(data []byte) error {
	var doc dagJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid graph document: %w", err)
	}

	loaded := DAG{nodes: make(map[string]*Node, len(doc.Nodes))}
	for _, nj := range doc.Nodes {
		if nj.ID == "" {
			return fmt.Errorf("invalid graph document: node without id")
		}
		if _, exists := loaded.nodes[nj.ID]; exists {
			return fmt.Errorf("invalid graph document: duplicate node id %s", nj.ID)
		}
		node := &Node{
			ID:             nj.ID,
			Type:           nj.Type,
			Key:            nj.Key,
			Value:          nj.Value,
			ExtractedParts: nj.ExtractedParts,
			DynamicParts:   nj.DynamicParts,
			InputVariables: nj.InputVariables,
		}
		if nj.Curl != "" {
			req, err := curl.Parse(nj.Curl)
			if err != nil {
				return fmt.Errorf("invalid graph document: node %s: %w", nj.ID, err)
			}
			node.Request = req
		}
		loaded.nodes[node.ID] = node
		loaded.order = append(loaded.order, node.ID)
	}

	for _, e := range doc.Edges {
		if _, ok := loaded.nodes[e.From]; !ok {
			return fmt.Errorf("invalid graph document: edge from unknown node %s", e.From)
		}
		if _, ok := loaded.nodes[e.To]; !ok {
			return fmt.Errorf("invalid graph document: edge to unknown node %s", e.To)
		}
		loaded.edges = append(loaded.edges, e)
	}

	if cycle := loaded.DetectCycles(); cycle != nil {
		return fmt.Errorf("invalid graph document: contains a cycle through %v", cycle)
	}

	loaded.restoreNextID()
	*d = loaded
	return nil
}
