// Package orchestrator implements the top-level coordination workflow: plan
// the testbench, delegate components to sub-agents, review their responses,
// and drive coverage closure.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/boristopalov/verigen/pkg/agent"
	"github.com/boristopalov/verigen/pkg/codegen"
	"github.com/boristopalov/verigen/pkg/core"
	"github.com/boristopalov/verigen/pkg/dialogue"
	"github.com/boristopalov/verigen/pkg/messaging"
)

const orchestratorSystemPrompt = `You are the Orchestrator Agent in a UVM testbench generation system. Your role is to:
1. Analyze DUT specifications and create comprehensive testbench plans.
2. Delegate work to specialized sub-agents (environment, UVM agent, sequence, scoreboard).
3. Review generated artifacts for correctness and consistency.
4. Drive coverage closure by analyzing gaps and directing new stimulus.

Always respond with valid JSON when asked for structured data. Be precise about UVM component naming, port connections, and SystemVerilog types.`

// Status captures whether a generation run is in flight.
type Status struct {
	Running   bool
	StartTime time.Time
	EndTime   time.Time
}

// Orchestrator owns the testbench plan and the accumulated artifacts, and
// reacts to sub-agent messages on its own channel.
type Orchestrator struct {
	*agent.Base

	tracker *dialogue.Tracker
	sink    codegen.Sink

	mu        sync.Mutex
	plan      *core.TestbenchPlan
	artifacts []*messaging.CodeArtifact
	status    Status
}

// New creates the orchestrator and subscribes it to its channel.
func New(bus *messaging.Router, tracker *dialogue.Tracker, sink codegen.Sink, opts ...agent.Option) *Orchestrator {
	o := &Orchestrator{
		tracker: tracker,
		sink:    sink,
	}
	o.Base = agent.NewBase("orchestrator", bus, o.onMessage,
		append([]agent.Option{agent.WithSystemPrompt(orchestratorSystemPrompt)}, opts...)...)
	return o
}

// AnalyzeDUT asks the generation service for a testbench plan. Planning
// never hard-fails: unusable output degrades to a deterministic default plan
// derived from the DUT spec.
func (o *Orchestrator) AnalyzeDUT(ctx context.Context, dut core.DUTSpec) *core.TestbenchPlan {
	specJSON, _ := json.MarshalIndent(dut, "", "  ")
	prompt := fmt.Sprintf(
		"Analyze this DUT and create a UVM testbench plan.\n\nDUT: %s\n\nRespond with a JSON object containing:\n- name: testbench name\n- dut_name: the DUT module name\n- agents: list of agent plans (name, interface_name, protocol_type, is_active, has_scoreboard, sequences list)\n- clock_period_ns, reset_duration_ns, simulation_timeout_ns\n- coverage_target: target coverage percentage\n- description: brief description\n",
		specJSON,
	)

	var plan *core.TestbenchPlan
	response, err := o.CallLLM(ctx, prompt)
	if err != nil {
		log.Printf("plan generation failed, using defaults: %v", err)
	} else if plan = parsePlan(response); plan == nil {
		log.Printf("plan response was not valid JSON, using defaults")
	}
	if plan == nil {
		plan = core.DefaultPlan(dut)
	}
	if plan.DUTName == "" {
		plan.DUTName = dut.ModuleName
	}

	o.mu.Lock()
	o.plan = plan
	o.mu.Unlock()
	return plan
}

// Delegate sends a PlanRequest to a sub-agent and registers the dialogue.
func (o *Orchestrator) Delegate(ctx context.Context, agentName, componentName string, spec map[string]any, instructions string) *messaging.PlanRequest {
	req := &messaging.PlanRequest{
		Envelope:      messaging.NewEnvelope(o.Name(), agentName),
		ComponentName: componentName,
		Spec:          spec,
		Instructions:  instructions,
	}
	o.tracker.StartDialogue(req)
	o.Send(ctx, req)
	return req
}

func (o *Orchestrator) onMessage(ctx context.Context, msg messaging.Message) error {
	switch m := msg.(type) {
	case *messaging.PlanResponse:
		return o.handlePlanResponse(ctx, m)
	case *messaging.CoverageReport:
		o.handleCoverageReport(ctx, m)
	case *messaging.SequenceProposal:
		o.handleSequenceProposal(ctx, m)
	case *messaging.CodeArtifact:
		o.acceptArtifact(m)
	}
	return nil
}

// handlePlanResponse reviews a sub-agent's proposal and approves it or
// requests a revision. Responses to unknown or settled dialogues are dropped.
func (o *Orchestrator) handlePlanResponse(ctx context.Context, resp *messaging.PlanResponse) error {
	entry := o.tracker.RecordResponse(resp)
	if entry == nil {
		return nil
	}

	reviewPrompt := fmt.Sprintf(
		"Review this generated UVM component for correctness.\n\nComponent: %s\nCode:\n```systemverilog\n%s\n```\n\nRespond with JSON: {\"approved\": true/false, \"issues\": [...], \"suggestions\": [...]}",
		resp.ComponentName, resp.ProposedCode,
	)
	reviewText, err := o.CallLLM(ctx, reviewPrompt)
	if err != nil {
		// the dialogue stays in awaiting_review; a later response retries it
		return err
	}
	approved, issues, suggestions := parseReview(reviewText)

	feedback := &messaging.ReviewFeedback{
		Envelope:      messaging.NewEnvelope(o.Name(), resp.Sender),
		ComponentName: resp.ComponentName,
		Approved:      approved,
		Issues:        issues,
		Suggestions:   suggestions,
	}
	feedback.CorrelationID = resp.CorrelationID
	o.tracker.RecordFeedback(feedback)
	o.Send(ctx, feedback)
	return nil
}

// handleCoverageReport ends the closure loop once the target is met,
// otherwise directs the sequence agent toward the bins not yet at full
// coverage.
func (o *Orchestrator) handleCoverageReport(ctx context.Context, report *messaging.CoverageReport) {
	target := o.CoverageTarget()
	if report.OverallCoverage >= target {
		log.Printf("coverage target met: %.1f%% >= %.1f%%", report.OverallCoverage, target)
		return
	}

	var bins []string
	for bin, v := range report.CoverageBins {
		if v < 100.0 {
			bins = append(bins, bin)
		}
	}
	sort.Strings(bins)

	directive := &messaging.CoverageDirective{
		Envelope:        messaging.NewEnvelope(o.Name(), "sequence_agent"),
		TargetBins:      bins,
		TargetScenarios: report.UncoveredScenarios,
	}
	o.Send(ctx, directive)
}

// handleSequenceProposal accepts a proposed sequence directly as an artifact;
// proposals from the stimulus loop do not go through the review cycle.
func (o *Orchestrator) handleSequenceProposal(ctx context.Context, proposal *messaging.SequenceProposal) {
	artifact := &messaging.CodeArtifact{
		Envelope:      messaging.NewEnvelope(o.Name(), "codegen"),
		Filename:      fmt.Sprintf("sequences/%s.sv", proposal.SequenceName),
		Content:       proposal.SequenceCode,
		Language:      "systemverilog",
		ComponentType: "sequence",
	}
	o.acceptArtifact(artifact)
}

func (o *Orchestrator) acceptArtifact(artifact *messaging.CodeArtifact) {
	o.mu.Lock()
	o.artifacts = append(o.artifacts, artifact)
	o.mu.Unlock()
	o.sink.RegisterFile(artifact.Filename, artifact.Content)
}

// GenerateTestbench runs the full pipeline: analyze the DUT, delegate one
// work item per planned component, and register every approved result with
// the artifact sink before returning.
func (o *Orchestrator) GenerateTestbench(ctx context.Context, dut core.DUTSpec) (*core.TestbenchPlan, error) {
	o.mu.Lock()
	o.status = Status{Running: true, StartTime: time.Now()}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.status.Running = false
		o.status.EndTime = time.Now()
		o.mu.Unlock()
	}()

	plan := o.AnalyzeDUT(ctx, dut)

	agents := plan.Agents
	if len(agents) == 0 {
		log.Printf("plan has no agents, synthesising default agent from DUT spec")
		ap := core.AgentPlan{
			Name:          plan.DUTName,
			InterfaceName: plan.DUTName + "_if",
			ProtocolType:  "custom",
			IsActive:      true,
			HasScoreboard: true,
		}
		if len(dut.Protocols) > 0 {
			ap.InterfaceName = dut.Protocols[0].Name
			ap.ProtocolType = dut.Protocols[0].ProtocolType
		}
		agents = []core.AgentPlan{ap}
	}

	fields := make([]map[string]any, 0, len(dut.SignalPorts()))
	for _, p := range dut.SignalPorts() {
		fields = append(fields, map[string]any{
			"name":    p.Name,
			"sv_type": p.SVType(),
			"is_rand": p.Direction == core.DirInput,
		})
	}

	for _, ap := range agents {
		o.Delegate(ctx, "uvm_agent", ap.Name+"_agent", map[string]any{
			"interface_name":     ap.InterfaceName,
			"protocol_type":      ap.ProtocolType,
			"transaction_type":   ap.Name + "_seq_item",
			"transaction_fields": fields,
		}, "Generate the full agent hierarchy for "+ap.InterfaceName)

		o.Delegate(ctx, "sequence_agent", ap.Name+"_sequences", map[string]any{
			"agent_name":       ap.Name,
			"transaction_type": ap.Name + "_seq_item",
			"sequences":        sequenceNames(ap),
		}, "Generate base stimulus sequences for "+ap.Name)

		if ap.HasScoreboard {
			o.Delegate(ctx, "scoreboard_agent", ap.Name+"_scoreboard", map[string]any{
				"agent_name":       ap.Name,
				"transaction_type": ap.Name + "_seq_item",
			}, "Generate the scoreboard and coverage model for "+ap.Name)
		}
	}

	o.Delegate(ctx, "env_agent", plan.DUTName+"_env", map[string]any{
		"testbench_name": plan.Name,
		"dut_name":       plan.DUTName,
		"top_module":     plan.TopModuleName,
		"agents":         agentNames(agents),
	}, "Assemble the environment, interfaces, and testbench top")

	// Delivery is synchronous: by now every dialogue has settled. Approved
	// proposals become artifacts.
	for _, entry := range o.tracker.DialoguesForAgent(o.Name()) {
		if entry.State == dialogue.StateApproved && entry.Response != nil {
			o.sink.RegisterFile(entry.Response.ComponentName+".sv", entry.Response.ProposedCode)
		}
	}

	if active := o.tracker.ActiveDialogues(); len(active) > 0 {
		return plan, fmt.Errorf("%d dialogues did not reach a terminal state", len(active))
	}
	return plan, nil
}

// CoverageFunc supplies per-bin coverage data for one closure round. It
// stands in for the simulation collaborator, which is outside this core.
type CoverageFunc func(round int) map[string]float64

// RunCoverageClosure repeatedly measures coverage through the scoreboard
// agent and publishes the resulting reports until the plan's target is met
// or maxRounds is exhausted. Returns the last overall coverage and whether
// the target was reached.
func (o *Orchestrator) RunCoverageClosure(ctx context.Context, sb *agent.ScoreboardAgent, coverage CoverageFunc, maxRounds int) (float64, bool) {
	target := o.CoverageTarget()
	last := 0.0
	for round := 0; round < maxRounds; round++ {
		report, err := sb.AnalyzeCoverage(ctx, coverage(round), target)
		if err != nil {
			log.Printf("coverage analysis failed on round %d: %v", round, err)
			return last, false
		}
		last = report.OverallCoverage
		o.Send(ctx, report)
		if report.OverallCoverage >= target {
			return last, true
		}
	}
	log.Printf("coverage closure stopped after %d rounds at %.1f%%", maxRounds, last)
	return last, false
}

// Plan returns the current testbench plan, if one has been built.
func (o *Orchestrator) Plan() *core.TestbenchPlan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plan
}

// CoverageTarget returns the plan's quality target, defaulting to 95%.
func (o *Orchestrator) CoverageTarget() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.plan != nil && o.plan.CoverageTarget > 0 {
		return o.plan.CoverageTarget
	}
	return 95.0
}

// Artifacts returns a copy of the accumulated artifacts in arrival order.
func (o *Orchestrator) Artifacts() []*messaging.CodeArtifact {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*messaging.CodeArtifact, len(o.artifacts))
	copy(out, o.artifacts)
	return out
}

// GetStatus returns the current run status.
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func sequenceNames(ap core.AgentPlan) []string {
	if len(ap.Sequences) == 0 {
		return []string{ap.Name + "_basic_seq"}
	}
	names := make([]string, 0, len(ap.Sequences))
	for _, s := range ap.Sequences {
		names = append(names, s.Name)
	}
	return names
}

func agentNames(agents []core.AgentPlan) []string {
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name)
	}
	return names
}
