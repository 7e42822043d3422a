package emitter

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harvest-ai/harvest/pkg/curl"
	"github.com/harvest-ai/harvest/pkg/dag"
)

// Plan is the language-neutral program derived from a graph: cookie
// annotations, one function per request node in dependency order, and
// a main entry point that threads results into the master call.
type Plan struct {
	SessionID   string
	Prompt      string
	GeneratedAt time.Time
	Cookies     []CookieAnnotation
	Functions   []Function
	Main        Main
}

// CookieAnnotation documents one cookie dependency at the top of the
// emitted file.
type CookieAnnotation struct {
	Name  string
	Value string
}

// Function is one emitted request function.
type Function struct {
	Name     string
	NodeID   string
	Params   []Param
	Request  RequestPlan
	Extracts []Extract
}

// Param is one function parameter. Edge parameters carry the dynamic
// part they stand in for; input-variable parameters carry a literal
// default instead.
type Param struct {
	Name       string
	Part       string
	Default    string
	HasDefault bool
}

// RequestPlan is the request a function issues, with parameter holes
// where dynamic parts appeared in the capture.
type RequestPlan struct {
	Method  string
	URL     Template
	Headers []HeaderPlan
	Body    *BodyPlan
}

// HeaderPlan is one emitted request header.
type HeaderPlan struct {
	Name  string
	Value Template
}

// BodyPlan is the emitted request body.
type BodyPlan struct {
	Text Template
}

// ExtractKind says where an extracted part lives in the captured
// response.
type ExtractKind string

const (
	// ExtractJSON reads a path in the response's JSON body.
	ExtractJSON ExtractKind = "json"

	// ExtractHeader reads a response header whose value was the part.
	ExtractHeader ExtractKind = "header"

	// ExtractLiteral falls back to the captured text when the part
	// could not be located in the response structure.
	ExtractLiteral ExtractKind = "literal"
)

// PathStep is one step of a JSON extraction path.
type PathStep struct {
	Key     string
	Index   int
	IsIndex bool
}

// Extract is one field of a function's result record.
type Extract struct {
	Field  string
	Kind   ExtractKind
	Path   []PathStep
	Header string
	Value  string
}

// Main is the emitted entry point.
type Main struct {
	// Unresolved lists dynamic parts with no producer. Each renders
	// as a guard that aborts the program.
	Unresolved []string

	Calls        []Call
	MasterResult string
}

// Call is one function invocation inside main.
type Call struct {
	Function  string
	ResultVar string
	Args      []Arg
}

// Arg is one positional argument: either a field of an earlier call's
// result or a literal (cookie values, unresolved placeholders).
type Arg struct {
	FromResult string
	Field      string
	Literal    string
	IsLiteral  bool
}

// Template is a string with parameter holes.
type Template struct {
	Segments []Segment
}

// Segment is either a literal or a parameter reference. Param wins
// when set.
type Segment struct {
	Literal string
	Param   string
}

// IsLiteral reports whether the template has no parameter holes.
func (t Template) IsLiteral() bool {
	for _, seg := range t.Segments {
		if seg.Param != "" {
			return false
		}
	}
	return true
}

// Text joins the literal segments, rendering holes as ${name}. Used
// for literal-only templates and diagnostics.
func (t Template) Text() string {
	var b strings.Builder
	for _, seg := range t.Segments {
		if seg.Param != "" {
			b.WriteString("${" + seg.Param + "}")
			continue
		}
		b.WriteString(seg.Literal)
	}
	return b.String()
}

func literalTemplate(s string) Template {
	return Template{Segments: []Segment{{Literal: s}}}
}

// BuildPlan walks the graph into a plan. Node insertion order seeds
// every generated identifier, so the same graph always produces the
// same plan.
func BuildPlan(in Input) (*Plan, error) {
	g := in.Graph
	topo, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		SessionID:   in.SessionID,
		Prompt:      in.Prompt,
		GeneratedAt: in.GeneratedAt,
	}

	names := newNamer()
	funcNames := make(map[string]string)
	resultVars := make(map[string]string)
	for _, node := range g.GetAllNodes() {
		switch node.Type {
		case dag.NodeCurl, dag.NodeMasterCurl:
			funcNames[node.ID] = names.function(node.Request.URL)
			resultVars[node.ID] = names.topLevel(funcNames[node.ID] + "Result")
			for _, part := range node.ExtractedParts {
				names.part(part)
			}
		case dag.NodeCookie:
			plan.Cookies = append(plan.Cookies, CookieAnnotation{Name: node.Key, Value: node.Value})
			for _, part := range node.ExtractedParts {
				names.part(part)
			}
		case dag.NodeNotFound:
			plan.Main.Unresolved = append(plan.Main.Unresolved, node.Key)
		}
	}

	for _, id := range topo {
		node, ok := g.GetNode(id)
		if !ok {
			return nil, fmt.Errorf("sorted node %s is not in the graph", id)
		}
		if node.Type != dag.NodeCurl && node.Type != dag.NodeMasterCurl {
			continue
		}

		fn := buildFunction(g, node, funcNames[id], names)
		plan.Functions = append(plan.Functions, fn)

		call := buildCall(g, node, fn, resultVars, names)
		plan.Main.Calls = append(plan.Main.Calls, call)
		if node.Type == dag.NodeMasterCurl {
			plan.Main.MasterResult = call.ResultVar
		}
	}

	return plan, nil
}

// buildFunction assembles one request function: edge parameters in
// edge insertion order, input-variable parameters sorted by name, and
// the request template with both substituted in.
func buildFunction(g *dag.DAG, node *dag.Node, name string, names *namer) Function {
	fn := Function{Name: name, NodeID: node.ID}

	taken := make(map[string]bool)
	var subs []substitution

	seen := make(map[string]bool)
	for _, edge := range g.IncomingEdges(node.ID) {
		if seen[edge.Label] {
			continue
		}
		seen[edge.Label] = true
		param := names.part(edge.Label)
		taken[param] = true
		fn.Params = append(fn.Params, Param{Name: param, Part: edge.Label})
		subs = append(subs, substitution{Value: edge.Label, Param: param})
	}

	varNames := make([]string, 0, len(node.InputVariables))
	for varName := range node.InputVariables {
		varNames = append(varNames, varName)
	}
	sort.Strings(varNames)
	for _, varName := range varNames {
		param := uniqueName(sanitizeIdentifier(varName), taken)
		value := node.InputVariables[varName]
		fn.Params = append(fn.Params, Param{Name: param, Default: value, HasDefault: true})
		subs = append(subs, substitution{Value: value, Param: param})
	}

	fn.Request = buildRequest(node.Request, subs)

	for _, part := range node.ExtractedParts {
		fn.Extracts = append(fn.Extracts, buildExtract(names.part(part), part, node.Request.Response))
	}
	return fn
}

func buildRequest(req *curl.Request, subs []substitution) RequestPlan {
	out := RequestPlan{
		Method: req.Method,
		URL:    buildTemplate(req.FullURL(), subs),
	}

	hasContentType := false
	if req.Headers != nil {
		for _, header := range req.Headers.Sorted() {
			if strings.EqualFold(header.Name, "Content-Type") {
				hasContentType = true
			}
			out.Headers = append(out.Headers, HeaderPlan{
				Name:  header.Name,
				Value: buildTemplate(strings.Join(header.Values, ", "), subs),
			})
		}
	}

	if !req.Body.IsEmpty() {
		if ct := req.Body.ContentType(); ct != "" && !hasContentType {
			out.Headers = append(out.Headers, HeaderPlan{Name: "Content-Type", Value: literalTemplate(ct)})
		}
		out.Body = &BodyPlan{Text: buildTemplate(req.Body.Text(), subs)}
	}
	return out
}

// buildExtract locates a part in the captured response: a JSON path
// first, then an exact header value, then the captured literal.
func buildExtract(field, part string, resp *curl.Response) Extract {
	if resp != nil {
		if tree, ok := resp.JSON(); ok {
			if path, found := findJSONPath(tree, part); found {
				return Extract{Field: field, Kind: ExtractJSON, Path: path}
			}
		}
		if resp.Headers != nil {
			for _, header := range resp.Headers.Sorted() {
				for _, value := range header.Values {
					if value == part {
						return Extract{Field: field, Kind: ExtractHeader, Header: header.Name}
					}
				}
			}
		}
	}
	return Extract{Field: field, Kind: ExtractLiteral, Value: part}
}

// buildCall resolves one function's arguments from its incoming
// edges: producer results by field, cookie values as literals.
func buildCall(g *dag.DAG, node *dag.Node, fn Function, resultVars map[string]string, names *namer) Call {
	call := Call{Function: fn.Name, ResultVar: resultVars[node.ID]}

	edges := g.IncomingEdges(node.ID)
	for _, param := range fn.Params {
		if param.HasDefault {
			continue
		}
		var edge *dag.Edge
		for i := range edges {
			if edges[i].Label == param.Part {
				edge = &edges[i]
				break
			}
		}
		if edge == nil {
			call.Args = append(call.Args, Arg{Literal: param.Part, IsLiteral: true})
			continue
		}
		producer, ok := g.GetNode(edge.From)
		if !ok {
			call.Args = append(call.Args, Arg{Literal: param.Part, IsLiteral: true})
			continue
		}
		switch producer.Type {
		case dag.NodeCurl, dag.NodeMasterCurl:
			call.Args = append(call.Args, Arg{
				FromResult: resultVars[producer.ID],
				Field:      names.part(edge.Label),
			})
		case dag.NodeCookie:
			call.Args = append(call.Args, Arg{Literal: producer.Value, IsLiteral: true})
		default:
			call.Args = append(call.Args, Arg{Literal: edge.Label, IsLiteral: true})
		}
	}
	return call
}

type substitution struct {
	Value string
	Param string
}

// buildTemplate splits s around occurrences of the substitution
// values. The earliest match wins each round; on a tie the longest
// value wins, and first listed breaks exact ties.
func buildTemplate(s string, subs []substitution) Template {
	var segments []Segment
	for s != "" {
		bestIdx := -1
		var best substitution
		for _, sub := range subs {
			if sub.Value == "" {
				continue
			}
			idx := strings.Index(s, sub.Value)
			if idx < 0 {
				continue
			}
			if bestIdx == -1 || idx < bestIdx || (idx == bestIdx && len(sub.Value) > len(best.Value)) {
				bestIdx = idx
				best = sub
			}
		}
		if bestIdx < 0 {
			segments = append(segments, Segment{Literal: s})
			break
		}
		if bestIdx > 0 {
			segments = append(segments, Segment{Literal: s[:bestIdx]})
		}
		segments = append(segments, Segment{Param: best.Param})
		s = s[bestIdx+len(best.Value):]
	}
	if len(segments) == 0 {
		segments = []Segment{{Literal: ""}}
	}
	return Template{Segments: segments}
}

// findJSONPath locates the first leaf equal to target, walking object
// keys in sorted order so repeated searches agree.
func findJSONPath(tree interface{}, target string) ([]PathStep, bool) {
	switch v := tree.(type) {
	case string:
		if v == target {
			return []PathStep{}, true
		}
	case float64:
		if strconv.FormatFloat(v, 'f', -1, 64) == target {
			return []PathStep{}, true
		}
	case bool:
		if strconv.FormatBool(v) == target {
			return []PathStep{}, true
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if path, ok := findJSONPath(v[k], target); ok {
				return append([]PathStep{{Key: k}}, path...), true
			}
		}
	case []interface{}:
		for i, item := range v {
			if path, ok := findJSONPath(item, target); ok {
				return append([]PathStep{{Index: i, IsIndex: true}}, path...), true
			}
		}
	}
	return nil, false
}

// namer hands out deterministic identifiers. Each part value maps to
// one identifier for the whole plan, so a producer's result field and
// every consumer parameter for the same part agree.
type namer struct {
	parts     map[string]string
	functions map[string]bool
	idents    map[string]bool
}

func newNamer() *namer {
	return &namer{
		parts:     make(map[string]string),
		functions: make(map[string]bool),
		idents:    make(map[string]bool),
	}
}

func (n *namer) part(value string) string {
	if name, ok := n.parts[value]; ok {
		return name
	}
	name := uniqueName(sanitizeIdentifier(value), n.idents)
	n.parts[value] = name
	return name
}

func (n *namer) function(rawURL string) string {
	return uniqueName(functionSlug(rawURL), n.functions)
}

// topLevel reserves an identifier in the same namespace as function
// names, so result variables never shadow a function.
func (n *namer) topLevel(base string) string {
	return uniqueName(base, n.functions)
}

// functionSlug camel-cases the URL path segments.
func functionSlug(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	words := splitWords(path)
	if len(words) == 0 {
		return "request"
	}
	var b strings.Builder
	for i, word := range words {
		if i == 0 {
			b.WriteString(strings.ToLower(word))
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(strings.ToLower(word[1:]))
	}
	slug := b.String()
	if slug[0] >= '0' && slug[0] <= '9' {
		slug = "fn" + slug
	}
	return slug
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

// sanitizeIdentifier maps an arbitrary string onto an identifier:
// non-word runes collapse to single underscores, a leading digit gets
// a prefix, and long values are truncated.
func sanitizeIdentifier(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
		if ok {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return "value"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "v_" + out
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

func uniqueName(base string, taken map[string]bool) string {
	name := base
	for i := 2; taken[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	taken[name] = true
	return name
}
