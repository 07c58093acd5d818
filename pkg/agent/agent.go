// Package agent provides the shared actor shell and the specialized
// sub-agents of the testbench generation system. Each agent owns a name,
// subscribes to its own channel on the router, and dispatches inbound
// messages by kind.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/boristopalov/verigen/pkg/memory"
	"github.com/boristopalov/verigen/pkg/messaging"
	"github.com/boristopalov/verigen/pkg/providers"
)

// Client is the generation service every agent calls out to.
type Client interface {
	Complete(ctx context.Context, model string, system string, turns []memory.Turn) (string, error)
}

type ModelInfo struct {
	Id     string         // e.g. "gpt-4o-mini"
	Config map[string]any // model-specific configuration
}

type Params struct {
	Model        ModelInfo
	Client       Client
	SystemPrompt string
}

type Option func(*Params)

func WithModel(model ModelInfo) Option {
	return func(p *Params) {
		p.Model = model
	}
}

func WithClient(c Client) Option {
	return func(p *Params) {
		p.Client = c
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(p *Params) {
		p.SystemPrompt = prompt
	}
}

func defaultParams() *Params {
	return &Params{
		Model: ModelInfo{
			Id:     "gpt-4o-mini",
			Config: make(map[string]any),
		},
	}
}

// Base is the reusable per-agent envelope: name, bus subscription, generation
// client, and accumulating conversation.
type Base struct {
	name   string
	model  ModelInfo
	client Client
	bus    *messaging.Router
	conv   *memory.Conversation
	system string
	sub    messaging.Subscription
}

// NewBase creates an agent shell and subscribes onMessage to the agent's own
// channel.
func NewBase(name string, bus *messaging.Router, onMessage messaging.Handler, opts ...Option) *Base {
	params := defaultParams()
	for _, opt := range opts {
		opt(params)
	}
	if params.Client == nil {
		params.Client = providers.OpenAi()
	}

	b := &Base{
		name:   name,
		model:  params.Model,
		client: params.Client,
		bus:    bus,
		conv:   memory.NewConversation(100), // start with capacity of 100 turns
		system: params.SystemPrompt,
	}
	b.sub = bus.Subscribe(name, func(ctx context.Context, msg messaging.Message) error {
		log.Printf("[%s] received %s from %s", name, msg.Kind(), msg.Head().Sender)
		return onMessage(ctx, msg)
	})
	return b
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) Model() ModelInfo {
	return b.model
}

// CallLLM appends the prompt to the conversation, asks the generation service
// for a completion, and records the reply.
func (b *Base) CallLLM(ctx context.Context, prompt string) (string, error) {
	b.conv.Append(memory.RoleUser, prompt)
	reply, err := b.client.Complete(ctx, b.model.Id, b.system, b.conv.Turns())
	if err != nil {
		return "", fmt.Errorf("[%s] generation failed: %w", b.name, err)
	}
	b.conv.Append(memory.RoleAssistant, reply)
	return reply, nil
}

// Send routes a message to its recipient's channel.
func (b *Base) Send(ctx context.Context, msg messaging.Message) {
	b.bus.Send(ctx, msg)
}

// Detach removes the agent's channel subscription.
func (b *Base) Detach() {
	b.bus.Unsubscribe(b.sub)
}

// ResetConversation clears the accumulated generation context.
func (b *Base) ResetConversation() {
	b.conv.Clear()
}

// formatSpec renders an opaque spec payload for inclusion in a prompt.
func formatSpec(spec map[string]any) string {
	out, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", spec)
	}
	return string(out)
}

func formatList(items []string) string {
	out, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", items)
	}
	return string(out)
}
