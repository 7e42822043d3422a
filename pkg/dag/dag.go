// Package dag holds the dependency graph built during analysis: one
// node per request, cookie, input variable or unresolved part, edges
// labeled with the dynamic part the producer supplies to the consumer.
// The graph rejects any edge that would close a cycle, so it is acyclic
// at all times. A DAG belongs to exactly one session and is mutated
// only from that session's event loop, so it carries no locking.
package dag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/harvest-ai/harvest/pkg/curl"
)

// NodeType discriminates the node variants.
type NodeType string

const (
	// NodeMasterCurl is the target request realizing the user's prompt.
	// At most one exists per graph.
	NodeMasterCurl NodeType = "master_curl"

	// NodeCurl is a dependency request whose response supplies dynamic
	// parts consumed downstream.
	NodeCurl NodeType = "curl"

	// NodeCookie supplies a dynamic part from the cookie jar.
	NodeCookie NodeType = "cookie"

	// NodeInputVariable supplies a dynamic part from a user-provided
	// variable.
	NodeInputVariable NodeType = "input_variable"

	// NodeNotFound marks a dynamic part whose provenance could not be
	// determined. Its presence makes the graph incomplete.
	NodeNotFound NodeType = "not_found"
)

// ErrNodeNotFound is returned for operations naming an unknown node id.
var ErrNodeNotFound = errors.New("node not found")

// ErrDuplicateMaster is returned when a second master_curl node is
// added.
var ErrDuplicateMaster = errors.New("a master_curl node already exists")

// Node is one vertex of the dependency graph.
//
// The payload depends on the type: curl and master_curl nodes carry a
// Request, cookie nodes carry the cookie name in Key and its value in
// Value, input_variable nodes carry the variable name and value the
// same way, and not_found nodes carry the unresolved token in Key.
//
// ExtractedParts are the strings this node produces for downstream
// consumers. DynamicParts are the strings this node still consumes
// without a resolved producer; analysis only ever shrinks this list.
// Mutate nodes through UpdateNode, not through the returned pointers.
type Node struct {
	ID             string
	Type           NodeType
	Request        *curl.Request
	Key            string
	Value          string
	ExtractedParts []string
	DynamicParts   []string
	InputVariables map[string]string
}

// Edge supplies the dynamic part Label from the node From to the node
// To.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// NodeSpec describes a node to insert.
type NodeSpec struct {
	Type           NodeType
	Request        *curl.Request
	Key            string
	Value          string
	ExtractedParts []string
	DynamicParts   []string
	InputVariables map[string]string
}

// NodePatch updates a node. Nil slices and maps leave the field
// untouched; a non-nil empty slice replaces with empty.
type NodePatch struct {
	// ExtractedParts replaces the node's produced parts.
	ExtractedParts []string

	// DynamicParts replaces the node's unresolved parts. A node
	// without pending parts accepts any list (classification filling
	// it in); afterwards the new list must be a subset of the current
	// one.
	DynamicParts []string

	// InputVariables is merged into the node's bound variables.
	InputVariables map[string]string
}

// DAG is the dependency graph. The zero value is not usable, call New.
type DAG struct {
	nodes  map[string]*Node
	order  []string
	edges  []Edge
	nextID int
}

// New returns an empty graph.
func New() *DAG {
	return &DAG{nodes: make(map[string]*Node)}
}

// AddNode inserts a node and returns its generated id.
func (d *DAG) AddNode(spec NodeSpec) (string, error) {
	switch spec.Type {
	case NodeMasterCurl:
		if d.MasterNode() != nil {
			return "", ErrDuplicateMaster
		}
		if spec.Request == nil {
			return "", fmt.Errorf("%s node requires a request", spec.Type)
		}
	case NodeCurl:
		if spec.Request == nil {
			return "", fmt.Errorf("%s node requires a request", spec.Type)
		}
	case NodeCookie, NodeInputVariable, NodeNotFound:
		if spec.Key == "" {
			return "", fmt.Errorf("%s node requires a key", spec.Type)
		}
	default:
		return "", fmt.Errorf("unknown node type %q", spec.Type)
	}

	d.nextID++
	node := &Node{
		ID:             fmt.Sprintf("node_%d", d.nextID),
		Type:           spec.Type,
		Request:        spec.Request,
		Key:            spec.Key,
		Value:          spec.Value,
		ExtractedParts: append([]string(nil), spec.ExtractedParts...),
		DynamicParts:   append([]string(nil), spec.DynamicParts...),
	}
	if len(spec.InputVariables) > 0 {
		node.InputVariables = make(map[string]string, len(spec.InputVariables))
		for k, v := range spec.InputVariables {
			node.InputVariables[k] = v
		}
	}

	d.nodes[node.ID] = node
	d.order = append(d.order, node.ID)
	return node.ID, nil
}

// UpdateNode applies a patch. DynamicParts may be populated once on a
// node that has none pending; after that it only shrinks, so a part,
// once resolved, never comes back.
func (d *DAG) UpdateNode(id string, patch NodePatch) error {
	node, ok := d.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	if patch.DynamicParts != nil {
		if len(node.DynamicParts) > 0 {
			current := make(map[string]bool, len(node.DynamicParts))
			for _, part := range node.DynamicParts {
				current[part] = true
			}
			for _, part := range patch.DynamicParts {
				if !current[part] {
					return fmt.Errorf("dynamic parts only shrink: %q is not pending on %s", part, id)
				}
			}
		}
		node.DynamicParts = append([]string(nil), patch.DynamicParts...)
	}

	if patch.ExtractedParts != nil {
		node.ExtractedParts = append([]string(nil), patch.ExtractedParts...)
	}

	if len(patch.InputVariables) > 0 {
		if node.InputVariables == nil {
			node.InputVariables = make(map[string]string, len(patch.InputVariables))
		}
		for k, v := range patch.InputVariables {
			node.InputVariables[k] = v
		}
	}
	return nil
}

// AddExtractedParts appends parts the node produces, skipping
// duplicates.
func (d *DAG) AddExtractedParts(id string, parts ...string) error {
	node, ok := d.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	existing := make(map[string]bool, len(node.ExtractedParts))
	for _, part := range node.ExtractedParts {
		existing[part] = true
	}
	for _, part := range parts {
		if !existing[part] {
			existing[part] = true
			node.ExtractedParts = append(node.ExtractedParts, part)
		}
	}
	return nil
}

// GetNode looks up a node by id.
func (d *DAG) GetNode(id string) (*Node, bool) {
	node, ok := d.nodes[id]
	return node, ok
}

// GetAllNodes returns the nodes in insertion order.
func (d *DAG) GetAllNodes() []*Node {
	nodes := make([]*Node, 0, len(d.order))
	for _, id := range d.order {
		nodes = append(nodes, d.nodes[id])
	}
	return nodes
}

// Len returns the node count.
func (d *DAG) Len() int {
	return len(d.order)
}

// Edges returns a copy of all edges in insertion order.
func (d *DAG) Edges() []Edge {
	return append([]Edge(nil), d.edges...)
}

// IncomingEdges returns the edges feeding a node, in insertion order.
func (d *DAG) IncomingEdges(id string) []Edge {
	var incoming []Edge
	for _, e := range d.edges {
		if e.To == id {
			incoming = append(incoming, e)
		}
	}
	return incoming
}

// OutgoingEdges returns the edges a node supplies, in insertion order.
func (d *DAG) OutgoingEdges(id string) []Edge {
	var outgoing []Edge
	for _, e := range d.edges {
		if e.From == id {
			outgoing = append(outgoing, e)
		}
	}
	return outgoing
}

// MasterNode returns the master_curl node, or nil.
func (d *DAG) MasterNode() *Node {
	for _, id := range d.order {
		if d.nodes[id].Type == NodeMasterCurl {
			return d.nodes[id]
		}
	}
	return nil
}

// FindCookieNode returns the cookie node for the given cookie name, or
// nil. Cookie nodes are deduplicated by name.
func (d *DAG) FindCookieNode(name string) *Node {
	for _, id := range d.order {
		node := d.nodes[id]
		if node.Type == NodeCookie && node.Key == name {
			return node
		}
	}
	return nil
}

// FindNotFoundNode returns the not_found node for the given part, or
// nil. Unresolvable parts are deduplicated by value.
func (d *DAG) FindNotFoundNode(part string) *Node {
	for _, id := range d.order {
		node := d.nodes[id]
		if node.Type == NodeNotFound && node.Key == part {
			return node
		}
	}
	return nil
}

// FindRequestNode returns the first curl or master_curl node whose
// request matches the method and URL, or nil.
func (d *DAG) FindRequestNode(method, url string) *Node {
	method = strings.ToUpper(method)
	for _, id := range d.order {
		node := d.nodes[id]
		if node.Type != NodeCurl && node.Type != NodeMasterCurl {
			continue
		}
		if node.Request.Method == method && node.Request.URL == url {
			return node
		}
	}
	return nil
}

// IsComplete reports whether analysis resolved everything: a master
// node exists, no node is still consuming parts, and nothing fell
// through to not_found.
func (d *DAG) IsComplete() bool {
	if d.MasterNode() == nil {
		return false
	}
	for _, id := range d.order {
		node := d.nodes[id]
		if len(node.DynamicParts) > 0 {
			return false
		}
		if node.Type == NodeNotFound {
			return false
		}
	}
	return true
}

// restoreNextID aligns the id counter with loaded node ids so later
// inserts stay unique.
func (d *DAG) restoreNextID() {
	for _, id := range d.order {
		if n, err := strconv.Atoi(strings.TrimPrefix(id, "node_")); err == nil && n > d.nextID {
			d.nextID = n
		}
	}
}
