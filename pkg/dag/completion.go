package dag

// BlockerKind names one class of reason code generation cannot
// proceed.
type BlockerKind string

const (
	BlockerMissingMasterNode      BlockerKind = "MissingMasterNode"
	BlockerUnresolvedDynamicParts BlockerKind = "UnresolvedDynamicParts"
	BlockerNotFoundDependency     BlockerKind = "NotFoundDependency"
	BlockerAnalysisIncomplete     BlockerKind = "AnalysisIncomplete"
)

// Blocker is one obstacle to code generation and the nodes involved.
type Blocker struct {
	Kind    BlockerKind `json:"kind"`
	NodeIDs []string    `json:"node_ids,omitempty"`
}

// Diagnostics summarizes the graph state behind a completion report.
type Diagnostics struct {
	DagComplete         bool `json:"dag_complete"`
	HasMasterNode       bool `json:"has_master_node"`
	HasActionURL        bool `json:"has_action_url"`
	UnresolvedNodeCount int  `json:"unresolved_node_count"`
	NotFoundCount       int  `json:"not_found_count"`
}

// CompletionReport says whether code generation can proceed and, when
// it cannot, why.
type CompletionReport struct {
	CanGenerateCode bool        `json:"can_generate_code"`
	Blockers        []Blocker   `json:"blockers,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
	Diagnostics     Diagnostics `json:"diagnostics"`
}

// AnalyzeCompletion builds the completion report. pendingIDs are node
// ids still queued for analysis; pass nil when the queue is empty or
// unknown.
func (d *DAG) AnalyzeCompletion(pendingIDs []string) *CompletionReport {
	report := &CompletionReport{}

	master := d.MasterNode()
	report.Diagnostics.HasMasterNode = master != nil
	report.Diagnostics.HasActionURL = master != nil && master.Request != nil && master.Request.URL != ""

	var unresolved, notFound []string
	for _, node := range d.GetAllNodes() {
		if len(node.DynamicParts) > 0 {
			unresolved = append(unresolved, node.ID)
		}
		if node.Type == NodeNotFound {
			notFound = append(notFound, node.ID)
		}
	}
	report.Diagnostics.UnresolvedNodeCount = len(unresolved)
	report.Diagnostics.NotFoundCount = len(notFound)
	report.Diagnostics.DagComplete = d.IsComplete()

	if master == nil {
		report.Blockers = append(report.Blockers, Blocker{Kind: BlockerMissingMasterNode})
		report.Recommendations = append(report.Recommendations,
			"Identify the workflow first so the target request is known.")
	}
	if len(unresolved) > 0 {
		report.Blockers = append(report.Blockers, Blocker{Kind: BlockerUnresolvedDynamicParts, NodeIDs: unresolved})
		report.Recommendations = append(report.Recommendations,
			"Keep processing until every dynamic part is resolved.")
	}
	if len(notFound) > 0 {
		report.Blockers = append(report.Blockers, Blocker{Kind: BlockerNotFoundDependency, NodeIDs: notFound})
		report.Recommendations = append(report.Recommendations,
			"Supply the missing values as input variables, or re-capture a session in which they appear.")
	}
	if len(pendingIDs) > 0 {
		report.Blockers = append(report.Blockers, Blocker{
			Kind:    BlockerAnalysisIncomplete,
			NodeIDs: append([]string(nil), pendingIDs...),
		})
		report.Recommendations = append(report.Recommendations,
			"Nodes are still queued for analysis; keep processing.")
	}

	report.CanGenerateCode = len(report.Blockers) == 0
	return report
}
