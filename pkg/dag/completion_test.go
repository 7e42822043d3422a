package dag

import (
	"reflect"
	"testing"

	"github.com/harvest-ai/harvest/pkg/curl"
)

func blockerKinds(report *CompletionReport) []BlockerKind {
	kinds := make([]BlockerKind, 0, len(report.Blockers))
	for _, b := range report.Blockers {
		kinds = append(kinds, b.Kind)
	}
	return kinds
}

func TestAnalyzeCompletion_EmptyGraph(t *testing.T) {
	report := New().AnalyzeCompletion(nil)

	if report.CanGenerateCode {
		t.Error("CanGenerateCode = true for an empty graph")
	}
	if got := blockerKinds(report); !reflect.DeepEqual(got, []BlockerKind{BlockerMissingMasterNode}) {
		t.Errorf("blockers = %v, want [MissingMasterNode]", got)
	}
	if report.Diagnostics.HasMasterNode || report.Diagnostics.HasActionURL {
		t.Errorf("diagnostics = %+v, want no master and no action URL", report.Diagnostics)
	}
	if len(report.Recommendations) == 0 {
		t.Error("expected a recommendation for the missing master node")
	}
}

func TestAnalyzeCompletion_UnresolvedAndNotFound(t *testing.T) {
	d := New()
	masterID, err := d.AddNode(NodeSpec{
		Type:         NodeMasterCurl,
		Request:      orderRequest(),
		DynamicParts: []string{"tok_1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	notFoundID, err := d.AddNode(NodeSpec{Type: NodeNotFound, Key: "missing_token"})
	if err != nil {
		t.Fatal(err)
	}

	report := d.AnalyzeCompletion(nil)

	if report.CanGenerateCode {
		t.Error("CanGenerateCode = true with unresolved parts and a not_found node")
	}
	want := []BlockerKind{BlockerUnresolvedDynamicParts, BlockerNotFoundDependency}
	if got := blockerKinds(report); !reflect.DeepEqual(got, want) {
		t.Errorf("blockers = %v, want %v", got, want)
	}
	if got := report.Blockers[0].NodeIDs; !reflect.DeepEqual(got, []string{masterID}) {
		t.Errorf("unresolved node ids = %v, want [%s]", got, masterID)
	}
	if got := report.Blockers[1].NodeIDs; !reflect.DeepEqual(got, []string{notFoundID}) {
		t.Errorf("not_found node ids = %v, want [%s]", got, notFoundID)
	}
	diag := report.Diagnostics
	if !diag.HasMasterNode || !diag.HasActionURL || diag.UnresolvedNodeCount != 1 || diag.NotFoundCount != 1 || diag.DagComplete {
		t.Errorf("diagnostics = %+v", diag)
	}
}

func TestAnalyzeCompletion_PendingQueue(t *testing.T) {
	d := New()
	if _, err := d.AddNode(NodeSpec{Type: NodeMasterCurl, Request: orderRequest()}); err != nil {
		t.Fatal(err)
	}

	report := d.AnalyzeCompletion([]string{"node_7", "node_9"})

	if report.CanGenerateCode {
		t.Error("CanGenerateCode = true with nodes still queued")
	}
	if got := blockerKinds(report); !reflect.DeepEqual(got, []BlockerKind{BlockerAnalysisIncomplete}) {
		t.Errorf("blockers = %v, want [AnalysisIncomplete]", got)
	}
	if got := report.Blockers[0].NodeIDs; !reflect.DeepEqual(got, []string{"node_7", "node_9"}) {
		t.Errorf("pending ids = %v", got)
	}
	if !report.Diagnostics.DagComplete {
		t.Error("DagComplete = false; the graph itself has nothing unresolved")
	}
}

func TestAnalyzeCompletion_Ready(t *testing.T) {
	d := New()
	if _, err := d.AddNode(NodeSpec{Type: NodeMasterCurl, Request: orderRequest()}); err != nil {
		t.Fatal(err)
	}

	report := d.AnalyzeCompletion(nil)

	if !report.CanGenerateCode {
		t.Errorf("CanGenerateCode = false: %+v", report.Blockers)
	}
	if len(report.Blockers) != 0 || len(report.Recommendations) != 0 {
		t.Errorf("report = %+v, want no blockers", report)
	}
	if !report.Diagnostics.DagComplete {
		t.Error("DagComplete = false")
	}
}

func TestFindNotFoundNode(t *testing.T) {
	d := New()
	id, err := d.AddNode(NodeSpec{Type: NodeNotFound, Key: "missing_token", ExtractedParts: []string{"missing_token"}})
	if err != nil {
		t.Fatal(err)
	}

	if got := d.FindNotFoundNode("missing_token"); got == nil || got.ID != id {
		t.Errorf("FindNotFoundNode(missing_token) = %v, want %s", got, id)
	}
	if got := d.FindNotFoundNode("other"); got != nil {
		t.Errorf("FindNotFoundNode(other) = %v, want nil", got)
	}
}

func TestAnalyzeCompletion_UsesPlainRequest(t *testing.T) {
	d := New()
	req := curl.NewRequest("GET", "")
	if _, err := d.AddNode(NodeSpec{Type: NodeMasterCurl, Request: req}); err != nil {
		t.Fatal(err)
	}

	report := d.AnalyzeCompletion(nil)
	if report.Diagnostics.HasActionURL {
		t.Error("HasActionURL = true for a master without a URL")
	}
}
