package agent

import (
	"context"
	"fmt"
	"log"

	"github.com/boristopalov/verigen/pkg/messaging"
)

const uvmAgentSystemPrompt = `You are the UVM Agent Agent in a testbench generation system. For each DUT interface/protocol, you generate:
- uvm_sequence_item with proper fields, constraints, and UVM macros
- uvm_driver with drive logic
- uvm_monitor with sampling logic
- uvm_sequencer parameterized with the sequence item
- uvm_agent wrapper connecting all components

Use proper UVM factory registration, config_db access for virtual interfaces, and analysis ports. Generate clean SystemVerilog.`

// UVMAgent generates per-interface UVM agents: driver, monitor, sequencer,
// and sequence item. When the delegated spec carries transaction fields it
// also publishes an interface contract for the sequence agent.
type UVMAgent struct {
	*Base
}

// NewUVMAgent creates the UVM agent builder and subscribes it to its channel.
func NewUVMAgent(bus *messaging.Router, opts ...Option) *UVMAgent {
	a := &UVMAgent{}
	a.Base = NewBase("uvm_agent", bus, a.onMessage,
		append([]Option{WithSystemPrompt(uvmAgentSystemPrompt)}, opts...)...)
	return a
}

func (a *UVMAgent) onMessage(ctx context.Context, msg messaging.Message) error {
	switch m := msg.(type) {
	case *messaging.PlanRequest:
		return a.handlePlanRequest(ctx, m)
	case *messaging.ReviewFeedback:
		return a.handleReviewFeedback(ctx, m)
	}
	return nil
}

func (a *UVMAgent) handlePlanRequest(ctx context.Context, req *messaging.PlanRequest) error {
	prompt := fmt.Sprintf(
		"Generate a complete UVM agent for this interface.\n\nSpec: %s\nInstructions: %s\n\nGenerate all components: sequence_item, driver, monitor, sequencer, and agent wrapper.",
		formatSpec(req.Spec), req.Instructions,
	)
	code, err := a.CallLLM(ctx, prompt)
	if err != nil {
		return err
	}

	// Let the sequence agent know what the transaction looks like
	if fields, ok := req.Spec["transaction_fields"].([]map[string]any); ok {
		contract := &messaging.InterfaceContract{
			Envelope:        messaging.NewEnvelope(a.Name(), "sequence_agent"),
			InterfaceName:   stringField(req.Spec, "interface_name", req.ComponentName),
			TransactionType: stringField(req.Spec, "transaction_type", req.ComponentName+"_item"),
			Fields:          fields,
			Constraints:     stringSlice(req.Spec["constraints"]),
		}
		a.Send(ctx, contract)
	}

	resp := &messaging.PlanResponse{
		Envelope:      messaging.NewEnvelope(a.Name(), req.Sender),
		ComponentName: req.ComponentName,
		ProposedCode:  code,
		Notes:         []string{"Generated full agent hierarchy"},
		Confidence:    1.0,
	}
	resp.CorrelationID = req.ID
	a.Send(ctx, resp)
	return nil
}

func (a *UVMAgent) handleReviewFeedback(ctx context.Context, fb *messaging.ReviewFeedback) error {
	if fb.Approved {
		log.Printf("[%s] component %s approved", a.Name(), fb.ComponentName)
		return nil
	}

	prompt := fmt.Sprintf(
		"Revise the UVM agent code. Issues:\n%s\nSuggestions:\n%s\n",
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

func stringField(spec map[string]any, key, fallback string) string {
	if v, ok := spec[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
