// Command demo wires the runtime end to end against a tiny one-agent
// workflow, grounded on the teacher's cmd/demo/main.go wiring style
// (construct stores, construct providers, register agents, run).
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/flowcore-dev/flowcore/config"
	"github.com/flowcore-dev/flowcore/driver"
	"github.com/flowcore-dev/flowcore/eventlog/sqlite"
	"github.com/flowcore-dev/flowcore/flow"
	"github.com/flowcore-dev/flowcore/hub"
	"github.com/flowcore-dev/flowcore/provider"
	"github.com/flowcore-dev/flowcore/provider/anthropic"
	recsqlite "github.com/flowcore-dev/flowcore/recording/sqlite"
	"github.com/flowcore-dev/flowcore/scheduler"
)

// demoState is the typed state for the demo workflow: a running transcript
// plus a completion flag the "summary:produced" handler flips once the
// "summarizer" agent has answered.
type demoState struct {
	Messages   []string
	Summarized bool
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("demo: failed to load config: %v", err)
	}

	logStore, err := sqlite.Open(ctx, cfg.EventLogDSN)
	if err != nil {
		log.Fatalf("demo: failed to open event log: %v", err)
	}
	defer logStore.Close()

	recStore, err := recsqlite.Open(ctx, cfg.RecordingDSN)
	if err != nil {
		log.Fatalf("demo: failed to open recording store: %v", err)
	}
	defer recStore.Close()

	h := hub.New(logStore)

	mode := provider.ModeLive
	if cfg.ProviderMode == config.ModePlayback {
		mode = provider.ModePlayback
	}

	var live provider.Provider
	if cfg.AnthropicAPIKey != "" {
		live = anthropic.New(cfg.AnthropicAPIKey)
	}
	if live == nil && mode == provider.ModeLive {
		log.Fatal("demo: live provider mode needs an Anthropic API key")
	}
	summarizer := provider.Wrap(live, recStore, mode)

	def := flow.WorkflowDef[demoState]{
		Name:         "demo-conversation",
		InitialState: demoState{},
		Handlers: map[string]flow.Handler[demoState]{
			"user:input": func(event flow.Event, state demoState) (demoState, []flow.Event) {
				text, _ := event.Payload["text"].(string)
				state.Messages = append(state.Messages, "user: "+text)
				return state, nil
			},
			"summary:produced": func(event flow.Event, state demoState) (demoState, []flow.Event) {
				text, _ := event.Payload["summary"].(string)
				state.Messages = append(state.Messages, "assistant: "+text)
				state.Summarized = true
				return state, nil
			},
		},
		Agents: []flow.Agent[demoState]{
			{
				Name:        "summarizer",
				ActivatesOn: map[string]bool{"user:input": true},
				Emits:       map[string]bool{"summary:produced": true},
				OutputSchema: map[string]any{
					"type":       "object",
					"properties": map[string]any{"summary": map[string]any{"type": "string"}},
					"required":   []any{"summary"},
				},
				Prompt: func(state demoState, trigger flow.Event) flow.Prompt {
					text, _ := trigger.Payload["text"].(string)
					return flow.Prompt{
						System:   "Summarize the user's message in one sentence as JSON: {\"summary\": string}.",
						Messages: []flow.Message{flow.Text(flow.RoleUser, text)},
					}
				},
				OnOutput: func(structuredOutput any, trigger flow.Event) []flow.Event {
					summary := ""
					if m, ok := structuredOutput.(map[string]any); ok {
						summary, _ = m["summary"].(string)
					}
					return []flow.Event{flow.NewEvent("summary:produced", map[string]any{"summary": summary}).WithCause(trigger)}
				},
			},
		},
		Until: func(state demoState) bool { return state.Summarized },
	}

	sched := scheduler.New[demoState](map[string]provider.Provider{"default": summarizer})
	drv := driver.New[demoState](h, sched)

	sessionID := flow.NewSessionId()
	if err := drv.Run(ctx, sessionID, def); err != nil {
		log.Fatalf("demo: failed to start run: %v", err)
	}

	if _, err := h.Emit(ctx, sessionID, flow.NewEvent("user:input", map[string]any{
		"text": "The quarterly numbers came in ahead of plan across every region.",
	})); err != nil {
		log.Fatalf("demo: failed to emit input: %v", err)
	}

	deadline := time.After(30 * time.Second)
	done := make(chan error, 1)
	go func() { done <- drv.Wait(sessionID) }()

	select {
	case err := <-done:
		if err != nil {
			log.Fatalf("demo: run failed: %v", err)
		}
		fmt.Println("session", sessionID, "completed")
	case <-deadline:
		log.Fatal("demo: timed out waiting for run")
	}
}
