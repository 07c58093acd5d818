package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/boristopalov/verigen/pkg/messaging"
)

const sequenceSystemPrompt = `You are the Sequence Agent in a UVM testbench generation system. Your role is to create UVM sequences that:
- Exercise all DUT functionality through constrained-random stimulus
- Target specific coverage goals when directed
- Follow UVM sequence/sequence_item patterns properly
- Use appropriate randomization constraints

When given coverage directives, create focused sequences that target the specific uncovered scenarios. Generate clean SystemVerilog.`

// SequenceAgent generates UVM sequences and responds to coverage directives
// with targeted sequence proposals.
type SequenceAgent struct {
	*Base

	mu        sync.Mutex
	contracts map[string]*messaging.InterfaceContract
}

// NewSequenceAgent creates the sequence agent and subscribes it to its channel.
func NewSequenceAgent(bus *messaging.Router, opts ...Option) *SequenceAgent {
	a := &SequenceAgent{
		contracts: make(map[string]*messaging.InterfaceContract),
	}
	a.Base = NewBase("sequence_agent", bus, a.onMessage,
		append([]Option{WithSystemPrompt(sequenceSystemPrompt)}, opts...)...)
	return a
}

func (a *SequenceAgent) onMessage(ctx context.Context, msg messaging.Message) error {
	switch m := msg.(type) {
	case *messaging.PlanRequest:
		return a.handlePlanRequest(ctx, m)
	case *messaging.InterfaceContract:
		a.handleInterfaceContract(m)
		return nil
	case *messaging.CoverageDirective:
		return a.handleCoverageDirective(ctx, m)
	case *messaging.ReviewFeedback:
		return a.handleReviewFeedback(ctx, m)
	}
	return nil
}

func (a *SequenceAgent) handlePlanRequest(ctx context.Context, req *messaging.PlanRequest) error {
	prompt := fmt.Sprintf(
		"Generate UVM sequences for this component.\n\nSpec: %s\nInstructions: %s\n\nCreate base sequences with proper randomization.",
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
		Notes:         []string{"Generated base sequences"},
		Confidence:    1.0,
	}
	resp.CorrelationID = req.ID
	a.Send(ctx, resp)
	return nil
}

// handleInterfaceContract stores the contract for later sequence generation.
func (a *SequenceAgent) handleInterfaceContract(c *messaging.InterfaceContract) {
	a.mu.Lock()
	a.contracts[c.InterfaceName] = c
	a.mu.Unlock()
	log.Printf("[%s] received interface contract for %s (%d fields)",
		a.Name(), c.InterfaceName, len(c.Fields))
}

// handleCoverageDirective generates targeted sequences for uncovered bins and
// proposes them to the orchestrator.
func (a *SequenceAgent) handleCoverageDirective(ctx context.Context, d *messaging.CoverageDirective) error {
	a.mu.Lock()
	known := make([]string, 0, len(a.contracts))
	for name := range a.contracts {
		known = append(known, name)
	}
	a.mu.Unlock()

	prompt := fmt.Sprintf(
		"Create targeted UVM sequences to cover these scenarios:\nTarget scenarios: %s\nTarget bins: %s\nConstraints: %s\n\nKnown interfaces: %s\nGenerate focused sequences with tight constraints to hit these targets.",
		formatList(d.TargetScenarios), formatList(d.TargetBins),
		formatList(d.Constraints), formatList(known),
	)
	code, err := a.CallLLM(ctx, prompt)
	if err != nil {
		return err
	}

	scenario := d.TargetScenarios
	if len(scenario) > 3 {
		scenario = scenario[:3]
	}
	proposal := &messaging.SequenceProposal{
		Envelope:               messaging.NewEnvelope(a.Name(), "orchestrator"),
		SequenceName:           "targeted_coverage_seq",
		TargetScenario:         strings.Join(scenario, ", "),
		SequenceCode:           code,
		ExpectedCoverageImpact: d.TargetBins,
	}
	a.Send(ctx, proposal)
	return nil
}

func (a *SequenceAgent) handleReviewFeedback(ctx context.Context, fb *messaging.ReviewFeedback) error {
	if fb.Approved {
		return nil
	}

	prompt := fmt.Sprintf("Revise sequence code. Issues:\n%s\n", formatList(fb.Issues))
	code, err := a.CallLLM(ctx, prompt)
	if err != nil {
		return err
	}

	resp := &messaging.PlanResponse{
		Envelope:      messaging.NewEnvelope(a.Name(), fb.Sender),
		ComponentName: fb.ComponentName,
		ProposedCode:  code,
		Confidence:    1.0,
	}
	resp.CorrelationID = fb.CorrelationID
	a.Send(ctx, resp)
	return nil
}
