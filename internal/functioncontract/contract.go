// Package functioncontract declares the shape of a locally- or
// provider-dispatched tool (FunctionContract) and the provider capability
// profile (ModelCapabilities) the pipeline and loop consult when deciding
// what a given model call may use.
package functioncontract

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Parameter describes one named argument of a FunctionContract.
type Parameter struct {
	Name        string
	Type        string // JSON Schema type: "string", "number", "integer", "boolean", "object", "array"
	Description string
	Required    bool
	Default     any
	Items       *Parameter // element schema, when Type == "array"
}

// FunctionContract captures the declarative shape of one tool: its name,
// description, ordered parameters, and optional return-type documentation.
// It compiles and caches its own emitted JSON Schema so every dispatch can
// validate arguments against it without recompiling.
type FunctionContract struct {
	Name              string
	Description       string
	Parameters        []Parameter
	ReturnType        string
	ReturnDescription string

	once     sync.Once
	schema   *jsonschema.Schema
	compErr  error
}

// Schema emits the JSON Schema object describing Parameters, suitable for
// wire transmission to a provider as the tool's input schema.
func (c *FunctionContract) Schema() map[string]any {
	properties := make(map[string]any, len(c.Parameters))
	var required []string
	for _, p := range c.Parameters {
		properties[p.Name] = parameterSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func parameterSchema(p Parameter) map[string]any {
	s := map[string]any{"type": p.Type}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if p.Default != nil {
		s["default"] = p.Default
	}
	if p.Type == "array" && p.Items != nil {
		s["items"] = parameterSchema(*p.Items)
	}
	return s
}

// Validate compiles this contract's emitted schema on first use (caching the
// result) and checks argsJSON against it. A compile failure, a decode
// failure or a schema mismatch is returned wrapped with the contract name;
// callers wrap it as errs.ValidationError.
func (c *FunctionContract) Validate(argsJSON string) error {
	c.once.Do(c.compile)
	if c.compErr != nil {
		return fmt.Errorf("compile schema for %s: %w", c.Name, c.compErr)
	}
	var doc any
	if argsJSON == "" {
		argsJSON = "{}"
	}
	if err := json.Unmarshal([]byte(argsJSON), &doc); err != nil {
		return fmt.Errorf("decode arguments for %s: %w", c.Name, err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return fmt.Errorf("validate arguments for %s: %w", c.Name, err)
	}
	return nil
}

func (c *FunctionContract) compile() {
	raw, err := json.Marshal(c.Schema())
	if err != nil {
		c.compErr = err
		return
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.compErr = err
		return
	}
	const resource = "contract.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resource, doc); err != nil {
		c.compErr = err
		return
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		c.compErr = err
		return
	}
	c.schema = schema
}
