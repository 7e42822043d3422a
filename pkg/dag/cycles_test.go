package dag

import (
	"errors"
	"strings"
	"testing"

	"github.com/harvest-ai/harvest/pkg/curl"
)

// chain builds producer -> consumer nodes a -> b -> c where each link
// supplies the part named after its producer.
func chain(t *testing.T, parts ...string) (*DAG, []string) {
	t.Helper()
	d := New()
	ids := make([]string, len(parts))
	for i, part := range parts {
		spec := NodeSpec{
			Type:           NodeCurl,
			Request:        curl.NewRequest("GET", "https://app.example.com/api/"+part),
			ExtractedParts: []string{part},
		}
		if i > 0 {
			spec.DynamicParts = []string{parts[i-1]}
		}
		id, err := d.AddNode(spec)
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = id
	}
	for i := 1; i < len(ids); i++ {
		if err := d.AddEdge(ids[i-1], ids[i], parts[i-1]); err != nil {
			t.Fatal(err)
		}
	}
	return d, ids
}

func TestAddEdge(t *testing.T) {
	d, ids := chain(t, "a", "b", "c")

	edges := d.Edges()
	if len(edges) != 2 {
		t.Fatalf("Edges() = %v", edges)
	}
	if edges[0] != (Edge{From: ids[0], To: ids[1], Label: "a"}) {
		t.Errorf("edges[0] = %+v", edges[0])
	}

	incoming := d.IncomingEdges(ids[2])
	if len(incoming) != 1 || incoming[0].Label != "b" {
		t.Errorf("IncomingEdges = %+v", incoming)
	}
	outgoing := d.OutgoingEdges(ids[0])
	if len(outgoing) != 1 || outgoing[0].To != ids[1] {
		t.Errorf("OutgoingEdges = %+v", outgoing)
	}
}

func TestAddEdge_Validation(t *testing.T) {
	d, ids := chain(t, "a", "b")

	if err := d.AddEdge("node_99", ids[1], "a"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("unknown producer error = %v", err)
	}
	if err := d.AddEdge(ids[0], "node_99", "a"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("unknown consumer error = %v", err)
	}

	if err := d.AddEdge(ids[0], ids[1], "not_produced"); err == nil {
		t.Error("label outside the producer's parts should be rejected")
	}

	// b's only pending part is "a", already satisfied, so a new label
	// the consumer is not waiting on is rejected
	if err := d.AddExtractedParts(ids[0], "zz"); err != nil {
		t.Fatal(err)
	}
	if err := d.AddEdge(ids[0], ids[1], "zz"); err == nil || !strings.Contains(err.Error(), "not waiting") {
		t.Errorf("unexpected error = %v", err)
	}
}

func TestAddEdge_DuplicateIsNoOp(t *testing.T) {
	d, ids := chain(t, "a", "b")

	if err := d.AddEdge(ids[0], ids[1], "a"); err != nil {
		t.Fatalf("duplicate edge error = %v", err)
	}
	if got := len(d.Edges()); got != 1 {
		t.Errorf("edge count = %d, want 1", got)
	}
}

func TestAddEdge_RejectsCycle(t *testing.T) {
	d, ids := chain(t, "a", "b", "c")

	// give a a pending part that c could supply, then try to close the
	// loop c -> a
	first, _ := d.GetNode(ids[0])
	first.DynamicParts = []string{"c"}

	err := d.AddEdge(ids[2], ids[0], "c")
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("error = %v, want *CycleError", err)
	}
	if cycleErr.From != ids[2] || cycleErr.To != ids[0] || cycleErr.Label != "c" {
		t.Errorf("CycleError = %+v", cycleErr)
	}
	if len(cycleErr.Path) < 2 || cycleErr.Path[0] != ids[0] || cycleErr.Path[len(cycleErr.Path)-1] != ids[2] {
		t.Errorf("Path = %v, want the chain from %s back to %s", cycleErr.Path, ids[0], ids[2])
	}
	if !strings.Contains(cycleErr.Error(), "would close a cycle") {
		t.Errorf("Error() = %q", cycleErr.Error())
	}

	// rejection leaves the graph unchanged
	if got := len(d.Edges()); got != 2 {
		t.Errorf("edge count after rejection = %d, want 2", got)
	}
	if cycle := d.DetectCycles(); cycle != nil {
		t.Errorf("DetectCycles() = %v after a rejected edge", cycle)
	}
}

func TestAddEdge_RejectsSelfLoop(t *testing.T) {
	d := New()
	id, _ := d.AddNode(NodeSpec{
		Type:           NodeCurl,
		Request:        curl.NewRequest("GET", "https://app.example.com/api/self"),
		ExtractedParts: []string{"x"},
		DynamicParts:   []string{"x"},
	})

	err := d.AddEdge(id, id, "x")
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("self loop error = %v, want *CycleError", err)
	}
}

func TestDetectCycles(t *testing.T) {
	d, _ := chain(t, "a", "b", "c")
	if cycle := d.DetectCycles(); cycle != nil {
		t.Errorf("DetectCycles() = %v on an acyclic graph", cycle)
	}

	// force a cycle the way a hostile document would
	d.edges = append(d.edges, Edge{From: "node_3", To: "node_1", Label: "x"})
	cycle := d.DetectCycles()
	if len(cycle) != 3 {
		t.Errorf("DetectCycles() = %v, want all three nodes", cycle)
	}
}
