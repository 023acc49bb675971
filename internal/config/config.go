// Package config loads optional file-based overrides for the runtime's
// Options structs. Constructors remain dependency-injected; a config file is
// a thin YAML layer on top for deployments that want model routing, filter
// rules, or buffer sizes outside the binary.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentcore/core/internal/functioncontract"
	"github.com/agentcore/core/internal/pubsub"
	"github.com/agentcore/core/internal/toolregistry"
)

// Config is the decoded shape of a runtime config file.
type Config struct {
	Thread    Thread              `yaml:"thread"`
	Publisher PublisherConfig     `yaml:"publisher"`
	Provider  Provider            `yaml:"provider"`
	Filter    FilterConfig        `yaml:"filter"`
	Store     StoreConfig         `yaml:"store"`
	Models    map[string]ModelCap `yaml:"models"`
}

// Thread holds per-thread loop defaults.
type Thread struct {
	SystemPrompt    string `yaml:"systemPrompt"`
	MaxTurnsPerRun  int    `yaml:"maxTurnsPerRun"`
	InputBufferSize int    `yaml:"inputBufferSize"`
	BlockWhenFull   bool   `yaml:"blockWhenFull"`
}

// PublisherConfig holds Event Publisher defaults.
type PublisherConfig struct {
	BufferSize int    `yaml:"bufferSize"`
	Policy     string `yaml:"policy"` // "block" (default) or "drop"
}

// Provider selects the model adapter and its throttling.
type Provider struct {
	Name              string  `yaml:"name"` // "anthropic" or "openai"
	Model             string  `yaml:"model"`
	MaxOutputTokens   int     `yaml:"maxOutputTokens"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// FilterConfig mirrors toolregistry.Filter field for field.
type FilterConfig struct {
	DisabledProviders []string            `yaml:"disabledProviders"`
	ProviderBlock     map[string][]string `yaml:"providerBlock"`
	ProviderAllow     map[string][]string `yaml:"providerAllow"`
	GlobalBlock       []string            `yaml:"globalBlock"`
	GlobalAllow       []string            `yaml:"globalAllow"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	Backend      string `yaml:"backend"` // "sqlite" (default) or "mongo"
	Path         string `yaml:"path"`    // sqlite file path
	URI          string `yaml:"uri"`     // mongo connection string
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

// ModelCap is the YAML shape of one model's capability profile.
type ModelCap struct {
	MaxContextTokens int    `yaml:"maxContextTokens"`
	MaxOutputTokens  int    `yaml:"maxOutputTokens"`
	Multimodal       bool   `yaml:"multimodal"`
	FunctionCalling  bool   `yaml:"functionCalling"`
	ParallelCalls    bool   `yaml:"parallelCalls"`
	ToolChoice       bool   `yaml:"toolChoice"`
	NestedParams     bool   `yaml:"nestedParams"`
	JSONMode         bool   `yaml:"jsonMode"`
	JSONSchema       bool   `yaml:"jsonSchema"`
	Reasoning        string `yaml:"reasoning"`
	Streaming        bool   `yaml:"streaming"`
	Preview          bool   `yaml:"preview"`
	Deprecated       bool   `yaml:"deprecated"`
}

// Load reads and decodes path. A missing file is an error; callers that
// treat the file as optional should check os.IsNotExist on the unwrapped
// cause.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes raw YAML into a Config, rejecting unknown keys so typos
// surface at startup rather than as silently-ignored settings.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Publisher.Policy {
	case "", "block", "drop":
	default:
		return fmt.Errorf("config: unknown publisher policy %q", c.Publisher.Policy)
	}
	switch c.Store.Backend {
	case "", "sqlite", "mongo":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.Provider.Name {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider.Name)
	}
	return nil
}

// PublisherOptions converts the decoded publisher section into
// pubsub.Options.
func (c Config) PublisherOptions() pubsub.Options {
	opts := pubsub.Options{BufferSize: c.Publisher.BufferSize}
	if c.Publisher.Policy == "drop" {
		opts.Policy = pubsub.PolicyDrop
	}
	return opts
}

// ToolFilter converts the decoded filter section into a
// toolregistry.Filter.
func (c Config) ToolFilter() toolregistry.Filter {
	return toolregistry.Filter{
		DisabledProviders: c.Filter.DisabledProviders,
		ProviderBlock:     c.Filter.ProviderBlock,
		ProviderAllow:     c.Filter.ProviderAllow,
		GlobalBlock:       c.Filter.GlobalBlock,
		GlobalAllow:       c.Filter.GlobalAllow,
	}
}

// Capabilities converts the decoded model table into
// functioncontract.ModelCapabilities profiles keyed by model name.
func (c Config) Capabilities() map[string]functioncontract.ModelCapabilities {
	out := make(map[string]functioncontract.ModelCapabilities, len(c.Models))
	for name, m := range c.Models {
		reasoning := functioncontract.ReasoningType(m.Reasoning)
		if m.Reasoning == "" {
			reasoning = functioncontract.ReasoningNone
		}
		out[name] = functioncontract.ModelCapabilities{
			MaxContextTokens: m.MaxContextTokens,
			MaxOutputTokens:  m.MaxOutputTokens,
			Multimodal:       m.Multimodal,
			FunctionCalling: functioncontract.FunctionCalling{
				Supported:    m.FunctionCalling,
				Parallel:     m.ParallelCalls,
				ToolChoice:   m.ToolChoice,
				NestedParams: m.NestedParams,
			},
			ResponseFormat: functioncontract.ResponseFormat{
				JSONMode:   m.JSONMode,
				JSONSchema: m.JSONSchema,
			},
			Reasoning:  reasoning,
			Streaming:  m.Streaming,
			Preview:    m.Preview,
			Deprecated: m.Deprecated,
		}
	}
	return out
}
