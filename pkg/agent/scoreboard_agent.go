package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/boristopalov/verigen/pkg/messaging"
)

const scoreboardSystemPrompt = `You are the Scoreboard/Coverage Agent in a UVM testbench generation system. Your role is to:
- Generate UVM scoreboard classes with proper checking logic
- Create functional coverage models (covergroups, coverpoints, crosses)
- Analyze simulation coverage reports and identify gaps
- Suggest sequences/scenarios to improve coverage

Use uvm_analysis_imp for receiving transactions. Create thorough coverage models. Generate clean SystemVerilog.`

// ScoreboardAgent generates scoreboards and coverage models and analyzes
// coverage data into reports for the orchestrator.
type ScoreboardAgent struct {
	*Base
}

// NewScoreboardAgent creates the scoreboard agent and subscribes it to its
// channel.
func NewScoreboardAgent(bus *messaging.Router, opts ...Option) *ScoreboardAgent {
	a := &ScoreboardAgent{}
	a.Base = NewBase("scoreboard_agent", bus, a.onMessage,
		append([]Option{WithSystemPrompt(scoreboardSystemPrompt)}, opts...)...)
	return a
}

func (a *ScoreboardAgent) onMessage(ctx context.Context, msg messaging.Message) error {
	switch m := msg.(type) {
	case *messaging.PlanRequest:
		return a.handlePlanRequest(ctx, m)
	case *messaging.ReviewFeedback:
		return a.handleReviewFeedback(ctx, m)
	}
	return nil
}

func (a *ScoreboardAgent) handlePlanRequest(ctx context.Context, req *messaging.PlanRequest) error {
	prompt := fmt.Sprintf(
		"Generate a UVM scoreboard and coverage model.\n\nSpec: %s\nInstructions: %s\n\nInclude:\n1. Scoreboard with comparison logic\n2. Functional covergroup with relevant coverpoints\n",
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
		Notes:         []string{"Generated scoreboard and coverage model"},
		Confidence:    1.0,
	}
	resp.CorrelationID = req.ID
	a.Send(ctx, resp)
	return nil
}

func (a *ScoreboardAgent) handleReviewFeedback(ctx context.Context, fb *messaging.ReviewFeedback) error {
	if fb.Approved {
		return nil
	}

	prompt := fmt.Sprintf("Revise the scoreboard/coverage code. Issues:\n%s\n", formatList(fb.Issues))
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

// AnalyzeCoverage turns raw per-bin coverage data into a report addressed to
// the orchestrator, with improvement suggestions from the generation service.
// The caller decides whether to send it.
func (a *ScoreboardAgent) AnalyzeCoverage(ctx context.Context, coverageData map[string]float64, target float64) (*messaging.CoverageReport, error) {
	var total float64
	uncovered := make([]string, 0)
	for bin, v := range coverageData {
		total += v
		if v < 100.0 {
			uncovered = append(uncovered, bin)
		}
	}
	if len(coverageData) > 0 {
		total /= float64(len(coverageData))
	}

	prompt := fmt.Sprintf(
		"Analyze this coverage report and suggest improvements.\n\nOverall: %.1f%%\nTarget: %.1f%%\nUncovered: %s\n\nSuggest specific scenarios to improve coverage.",
		total, target, formatList(uncovered),
	)
	analysis, err := a.CallLLM(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var suggestions []string
	for _, line := range strings.Split(analysis, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-") {
			suggestions = append(suggestions, strings.TrimSpace(strings.TrimPrefix(line, "-")))
		}
	}
	if len(suggestions) > 10 {
		suggestions = suggestions[:10]
	}

	report := &messaging.CoverageReport{
		Envelope:           messaging.NewEnvelope(a.Name(), "orchestrator"),
		OverallCoverage:    total,
		CoverageBins:       coverageData,
		UncoveredScenarios: uncovered,
		Suggestions:        suggestions,
	}
	return report, nil
}
