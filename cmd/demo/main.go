// Command demo wires the Agent Loop, middleware pipeline, event publisher,
// tool registry, sqlite persistence, and the Anthropic provider adapter into
// a single runnable thread: submit one user turn, persist every published
// message, exit on RunCompleted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentcore/core/internal/agentloop"
	"github.com/agentcore/core/internal/config"
	"github.com/agentcore/core/internal/functioncontract"
	"github.com/agentcore/core/internal/message"
	"github.com/agentcore/core/internal/persistence/sqlite"
	"github.com/agentcore/core/internal/pipeline"
	"github.com/agentcore/core/internal/provider"
	anthropicprovider "github.com/agentcore/core/internal/provider/anthropic"
	"github.com/agentcore/core/internal/pubsub"
	"github.com/agentcore/core/internal/telemetry"
	"github.com/agentcore/core/internal/toolregistry"
)

const (
	threadID  = "demo-thread"
	sessionID = "demo-session"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file overriding runtime defaults")
	flag.Parse()

	ctx := context.Background()

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = "demo.db"
	}
	store, err := sqlite.Open(sqlite.Options{Path: dbPath, MaxOpenConns: cfg.Store.MaxOpenConns})
	if err != nil {
		log.Fatalf("open persistence: %v", err)
	}
	defer store.Close()
	if _, err := store.CreateSession(ctx, sessionID, "", time.Now()); err != nil {
		log.Fatalf("create session: %v", err)
	}

	pub := pubsub.New(cfg.PublisherOptions())
	pipe := pipeline.New(pub)

	registry := toolregistry.New()
	weather := &functioncontract.FunctionContract{
		Name:        "get_weather",
		Description: "Look up current weather for a city",
		Parameters: []functioncontract.Parameter{
			{Name: "city", Type: "string", Required: true},
		},
	}
	registry.Register(weather, func(ctx context.Context, argsJSON string) (string, error) {
		return `{"forecast":"sunny","tempF":72}`, nil
	})
	executor := toolregistry.NewExecutor(registry, pub, 0)
	filter := cfg.ToolFilter() // zero value: every registered function is allowed

	systemPrompt := cfg.Thread.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "You are a helpful assistant."
	}

	limiter := pipeline.NewRateLimit(cfg.Provider.RequestsPerSecond, cfg.Provider.Burst)
	loop := agentloop.New(agentloop.Config{
		ThreadID:             threadID,
		SystemPrompt:         systemPrompt,
		MaxTurnsPerRun:       cfg.Thread.MaxTurnsPerRun,
		InputBufferSize:      cfg.Thread.InputBufferSize,
		SubmitBlocksWhenFull: cfg.Thread.BlockWhenFull,
		Call:                 anthropicCaller(limiter),
		Pipeline:             pipe,
		Publisher:            pub,
		Registry:             registry,
		Executor:             executor,
		Filter:               filter,
		ProviderName:         "anthropic",
		Functions:            []*functioncontract.FunctionContract{weather},
		Telemetry:            telemetry.Set{Logger: telemetry.NewClueLogger()},
	})

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go loop.Start(loopCtx)

	// The Agent Loop publishes under its ThreadID, so subscribe on threadID
	// rather than the persistence session id.
	sub, unsubscribe := pub.Subscribe(threadID)
	defer unsubscribe()
	go func() {
		for m := range sub {
			if err := store.AppendMessage(ctx, sessionID, m, time.Now()); err != nil {
				log.Printf("persist message: %v", err)
			}
			if _, done := m.(message.RunCompleted); done {
				fmt.Println("run complete")
				cancel()
				return
			}
		}
	}()

	if _, err := loop.Submit(agentloop.UserInput{
		Messages: []message.Message{message.TextMessage{Role: message.RoleUser, Text: "What's the weather in Boston?"}},
	}); err != nil {
		log.Fatalf("submit: %v", err)
	}

	<-loopCtx.Done()
}

// anthropicCaller builds an agentloop.ModelCaller backed by the Anthropic
// Messages streaming API, flattening joined history into a user/assistant
// transcript of sdk.MessageParam values.
func anthropicCaller(limiter *pipeline.RateLimit) agentloop.ModelCaller {
	client := sdk.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")))
	return func(ctx context.Context, pctx provider.Context, history []message.Message) (provider.Streamer, error) {
		var stream provider.Streamer
		call := limiter.Wrap(func(ctx context.Context) error {
			msgs, system := encodeHistory(history)
			params := sdk.MessageNewParams{
				Model:     sdk.ModelClaudeSonnet4_5_20250929,
				MaxTokens: 1024,
				Messages:  msgs,
			}
			if len(system) > 0 {
				params.System = system
			}
			stream = anthropicprovider.New(ctx, pctx, client.Messages.NewStreaming(ctx, params))
			return nil
		})
		if err := call(ctx); err != nil {
			return nil, err
		}
		return stream, nil
	}
}

func encodeHistory(history []message.Message) ([]sdk.MessageParam, []sdk.TextBlockParam) {
	var out []sdk.MessageParam
	var system []sdk.TextBlockParam
	for _, m := range history {
		tm, ok := m.(message.TextMessage)
		if !ok {
			continue
		}
		switch tm.Role {
		case message.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: tm.Text})
		case message.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(tm.Text)))
		case message.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(tm.Text)))
		}
	}
	return out, system
}
