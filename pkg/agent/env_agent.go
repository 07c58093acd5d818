package agent

import (
	"context"
	"fmt"
	"log"

	"github.com/boristopalov/verigen/pkg/messaging"
)

const envSystemPrompt = `You are the Environment Agent in a UVM testbench generation system. Your role is to generate UVM environment code including:
- uvm_env class with proper agent and scoreboard instantiation
- SystemVerilog interfaces with clocking blocks
- Testbench top module with DUT instantiation
- UVM package with proper include order

Generate clean, synthesizable SystemVerilog. Follow UVM coding conventions strictly.`

// EnvAgent generates the UVM environment, interfaces, and top-level module.
type EnvAgent struct {
	*Base
}

// NewEnvAgent creates the environment agent and subscribes it to its channel.
func NewEnvAgent(bus *messaging.Router, opts ...Option) *EnvAgent {
	a := &EnvAgent{}
	a.Base = NewBase("env_agent", bus, a.onMessage,
		append([]Option{WithSystemPrompt(envSystemPrompt)}, opts...)...)
	return a
}

func (a *EnvAgent) onMessage(ctx context.Context, msg messaging.Message) error {
	switch m := msg.(type) {
	case *messaging.PlanRequest:
		return a.handlePlanRequest(ctx, m)
	case *messaging.ReviewFeedback:
		return a.handleReviewFeedback(ctx, m)
	}
	return nil
}

func (a *EnvAgent) handlePlanRequest(ctx context.Context, req *messaging.PlanRequest) error {
	prompt := fmt.Sprintf(
		"Generate a UVM environment for this testbench.\n\nSpec: %s\nInstructions: %s\n\nGenerate the environment class code in SystemVerilog.",
		formatSpec(req.Spec), req.Instructions,
	)
	code, err := a.CallLLM(ctx, prompt)
	if err != nil {
		return err
	}

	resp := &messaging.PlanResponse{
		Envelope:      messaging.NewEnvelope(a.Name(), req.Sender),
		ComponentName: req.ComponentName,
		ProposedCode:  code,
		Notes:         []string{"Generated environment skeleton"},
		Confidence:    1.0,
	}
	resp.CorrelationID = req.ID
	a.Send(ctx, resp)
	return nil
}

func (a *EnvAgent) handleReviewFeedback(ctx context.Context, fb *messaging.ReviewFeedback) error {
	if fb.Approved {
		log.Printf("[%s] component %s approved", a.Name(), fb.ComponentName)
		return nil
	}

	prompt := fmt.Sprintf(
		"Revise the UVM environment code. Issues found:\n%s\nSuggestions:\n%s\n",
		formatList(fb.Issues), formatList(fb.Suggestions),
	)
	code, err := a.CallLLM(ctx, prompt)
	if err != nil {
		return err
	}

	resp := &messaging.PlanResponse{
		Envelope:      messaging.NewEnvelope(a.Name(), fb.Sender),
		ComponentName: fb.ComponentName,
		ProposedCode:  code,
		Notes:         []string{"Revised based on feedback"},
		Confidence:    1.0,
	}
	resp.CorrelationID = fb.CorrelationID
	a.Send(ctx, resp)
	return nil
}
