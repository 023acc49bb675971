package functioncontract

import "strings"

// ReasoningType enumerates the provider-specific shapes a model's
// chain-of-thought can take.
type ReasoningType string

// Recognized reasoning types.
const (
	ReasoningNone      ReasoningType = "none"
	ReasoningAnthropic ReasoningType = "anthropic"
	ReasoningDeepSeek  ReasoningType = "deepseek"
	ReasoningOpenAI    ReasoningType = "openai"
	ReasoningCustom    ReasoningType = "custom"
)

// FunctionCalling describes a model's tool-calling support.
type FunctionCalling struct {
	Supported     bool
	Parallel      bool // can the model request multiple tool calls in one turn
	ToolChoice    bool // can the caller force/forbid a specific tool
	NestedParams  bool // schema may nest object/array parameters
}

// ResponseFormat describes a model's structured-output support.
type ResponseFormat struct {
	JSONMode   bool
	JSONSchema bool
}

// ModelCapabilities is the declarative capability profile of one model.
// hasCapability is evaluated against the named boolean fields below.
type ModelCapabilities struct {
	MaxContextTokens int
	MaxOutputTokens  int
	Multimodal       bool
	FunctionCalling  FunctionCalling
	ResponseFormat   ResponseFormat
	Reasoning        ReasoningType
	Streaming        bool
	Preview          bool
	Deprecated       bool
}

// HasCapability accepts a comma-separated list of capability names and
// evaluates conjunctively: it reports true only if every named capability
// holds. Recognized names: "multimodal", "function_calling",
// "parallel_function_calling", "tool_choice", "nested_params", "json_mode",
// "json_schema", "streaming".
func (c ModelCapabilities) HasCapability(names string) bool {
	for _, raw := range strings.Split(names, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if !c.hasOne(name) {
			return false
		}
	}
	return true
}

func (c ModelCapabilities) hasOne(name string) bool {
	switch name {
	case "multimodal":
		return c.Multimodal
	case "function_calling":
		return c.FunctionCalling.Supported
	case "parallel_function_calling":
		return c.FunctionCalling.Supported && c.FunctionCalling.Parallel
	case "tool_choice":
		return c.FunctionCalling.Supported && c.FunctionCalling.ToolChoice
	case "nested_params":
		return c.FunctionCalling.Supported && c.FunctionCalling.NestedParams
	case "json_mode":
		return c.ResponseFormat.JSONMode
	case "json_schema":
		return c.ResponseFormat.JSONSchema
	case "streaming":
		return c.Streaming
	default:
		return false
	}
}
