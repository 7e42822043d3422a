package observability

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrSessionID      = "session.id"
	AttrSessionState   = "session.state"
	AttrSessionEvent   = "session.event"
	AttrLLMProvider    = "llm.provider"
	AttrLLMModel       = "llm.model"
	AttrLLMFunction    = "llm.function"
	AttrErrorType      = "error.type"
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatus     = "http.status_code"

	SpanLLMRequest   = "harvest.llm_request"
	SpanSessionEvent = "harvest.session_event"
	SpanHarParse     = "harvest.har_parse"
	SpanCodeGen      = "harvest.generate_code"
	SpanHTTPRequest  = "harvest.http_request"

	DefaultServiceName  = "harvest"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
	DefaultSamplingRate = 1.0
)
