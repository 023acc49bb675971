package functioncontract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func weatherContract() *FunctionContract {
	return &FunctionContract{
		Name:        "get_weather",
		Description: "Look up current weather for a city",
		Parameters: []Parameter{
			{Name: "city", Type: "string", Required: true},
			{Name: "units", Type: "string", Required: false, Default: "fahrenheit"},
		},
	}
}

func TestSchemaEmitsRequiredAndProperties(t *testing.T) {
	c := weatherContract()
	schema := c.Schema()
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "units")
	assert.Equal(t, []string{"city"}, schema["required"])
}

func TestValidateAcceptsConformingArgs(t *testing.T) {
	c := weatherContract()
	assert.NoError(t, c.Validate(`{"city":"SF"}`))
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	c := weatherContract()
	assert.Error(t, c.Validate(`{}`))
}

func TestValidateCachesCompiledSchema(t *testing.T) {
	c := weatherContract()
	assert.NoError(t, c.Validate(`{"city":"SF"}`))
	// second call must reuse the cached schema/compErr via sync.Once.
	assert.NoError(t, c.Validate(`{"city":"NYC","units":"celsius"}`))
}

func TestHasCapabilityConjunctive(t *testing.T) {
	caps := ModelCapabilities{
		FunctionCalling: FunctionCalling{Supported: true, Parallel: true},
		ResponseFormat:  ResponseFormat{JSONMode: true},
		Streaming:       true,
	}
	assert.True(t, caps.HasCapability("function_calling,streaming"))
	assert.True(t, caps.HasCapability("parallel_function_calling"))
	assert.False(t, caps.HasCapability("function_calling,json_schema"))
	assert.False(t, caps.HasCapability("tool_choice"))
}
