package observability

const (
	AttrTaskID       = "task.id"
	AttrSessionID    = "session.id"
	AttrThreadID     = "thread.id"
	AttrDomain       = "domain.name"
	AttrNodeName     = "workflow.node"
	AttrToolName     = "tool.name"
	AttrSubAgentType = "subagent.type"
	AttrLLMModel     = "llm.model"
	AttrEndpoint     = "llm.endpoint"
	AttrErrorType    = "error.type"
	AttrEventID      = "event.id"

	SpanWorkflowIteration = "workflow.iteration"
	SpanLLMGenerate       = "llm.generate"
	SpanToolCall          = "tool.call"
	SpanSubAgentRun       = "subagent.run"
	SpanCheckpointWrite   = "checkpoint.write"

	DefaultServiceName  = "agentic-orchestrator"
	DefaultSamplingRate = 1.0
	DefaultMetricsPath  = "/metrics"
	DefaultOTLPEndpoint = "localhost:4317" // collector's OTLP/gRPC port
)
