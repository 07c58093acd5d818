package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/boristopalov/verigen/pkg/agent"
	"github.com/boristopalov/verigen/pkg/core"
	"github.com/boristopalov/verigen/pkg/dialogue"
	"github.com/boristopalov/verigen/pkg/memory"
	"github.com/boristopalov/verigen/pkg/messaging"
)

// scriptedClient answers planning and review prompts with canned output and
// everything else with a stub completion.
type scriptedClient struct {
	mu         sync.Mutex
	planText   string
	reviewText string
	calls      int
}

func (c *scriptedClient) Complete(ctx context.Context, model string, system string, turns []memory.Turn) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	last := turns[len(turns)-1].Content
	switch {
	case strings.HasPrefix(last, "Analyze this DUT"):
		return c.planText, nil
	case strings.HasPrefix(last, "Review this"):
		return c.reviewText, nil
	}
	return "ack", nil
}

// codeClient always returns the same generated code.
type codeClient struct {
	text string
}

func (c *codeClient) Complete(ctx context.Context, model string, system string, turns []memory.Turn) (string, error) {
	return c.text, nil
}

// failingClient errors on every completion.
type failingClient struct{}

func (failingClient) Complete(ctx context.Context, model string, system string, turns []memory.Turn) (string, error) {
	return "", errors.New("service unavailable")
}

type fakeSink struct {
	mu    sync.Mutex
	files map[string]string
}

func newFakeSink() *fakeSink {
	return &fakeSink{files: make(map[string]string)}
}

func (s *fakeSink) RegisterFile(path, content string) {
	s.mu.Lock()
	s.files[path] = content
	s.mu.Unlock()
}

func (s *fakeSink) FlushAll() ([]string, error) {
	return nil, nil
}

func (s *fakeSink) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok
}

type collector struct {
	mu   sync.Mutex
	msgs []messaging.Message
}

func (c *collector) handle(ctx context.Context, msg messaging.Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return nil
}

func (c *collector) all() []messaging.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]messaging.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func aluSpec() core.DUTSpec {
	return core.DUTSpec{
		Name:       "alu",
		ModuleName: "alu",
		Ports: []core.PortSpec{
			{Name: "clk", Direction: core.DirInput, Width: 1, IsClock: true},
			{Name: "rst_n", Direction: core.DirInput, Width: 1, IsReset: true},
			{Name: "a", Direction: core.DirInput, Width: 8},
			{Name: "b", Direction: core.DirInput, Width: 8},
			{Name: "op", Direction: core.DirInput, Width: 2},
			{Name: "result", Direction: core.DirOutput, Width: 9},
		},
		Protocols: []core.ProtocolSpec{
			{Name: "alu_if", ProtocolType: "custom", PortNames: []string{"a", "b", "op", "result"}},
		},
	}
}

const aluPlanJSON = `{
  "name": "alu_tb",
  "dut_name": "alu",
  "coverage_target": 90,
  "agents": [
    {
      "name": "alu",
      "interface_name": "alu_if",
      "protocol_type": "custom",
      "sequences": ["alu_smoke_seq", {"name": "alu_corner_seq", "scenario": "overflow"}]
    }
  ]
}`

func TestAnalyzeDUT(t *testing.T) {
	ctx := context.Background()

	t.Run("fenced JSON response becomes the plan", func(t *testing.T) {
		bus := messaging.NewRouter()
		t.Cleanup(func() {
			bus.Reset()
		})

		client := &scriptedClient{planText: "```json\n" + aluPlanJSON + "\n```"}
		o := New(bus, dialogue.NewTracker(3), newFakeSink(), agent.WithClient(client))

		plan := o.AnalyzeDUT(ctx, aluSpec())
		if plan.Name != "alu_tb" {
			t.Errorf("plan name = %s, want alu_tb", plan.Name)
		}
		if plan.CoverageTarget != 90.0 {
			t.Errorf("coverage target = %.1f, want 90.0", plan.CoverageTarget)
		}
		if len(plan.Agents) != 1 {
			t.Fatalf("plan has %d agents, want 1", len(plan.Agents))
		}
		ap := plan.Agents[0]
		if !ap.IsActive || !ap.HasScoreboard {
			t.Errorf("agent defaults not applied: active=%v scoreboard=%v", ap.IsActive, ap.HasScoreboard)
		}
		if len(ap.Sequences) != 2 || ap.Sequences[0].Name != "alu_smoke_seq" || ap.Sequences[1].Scenario != "overflow" {
			t.Errorf("sequences parsed incorrectly: %+v", ap.Sequences)
		}
		if plan.TopModuleName != "tb_alu_top" {
			t.Errorf("top module name = %s, want tb_alu_top", plan.TopModuleName)
		}
	})

	t.Run("unusable response degrades to the default plan", func(t *testing.T) {
		bus := messaging.NewRouter()
		t.Cleanup(func() {
			bus.Reset()
		})

		client := &scriptedClient{planText: "I cannot produce JSON right now, sorry."}
		o := New(bus, dialogue.NewTracker(3), newFakeSink(), agent.WithClient(client))

		plan := o.AnalyzeDUT(ctx, aluSpec())
		if plan.Name != "alu_tb" {
			t.Errorf("default plan name = %s, want alu_tb", plan.Name)
		}
		if plan.CoverageTarget != 95.0 {
			t.Errorf("default coverage target = %.1f, want 95.0", plan.CoverageTarget)
		}
		if plan.DUTName != "alu" {
			t.Errorf("default plan dut name = %s, want alu", plan.DUTName)
		}
	})

	t.Run("generation failure degrades to the default plan", func(t *testing.T) {
		bus := messaging.NewRouter()
		t.Cleanup(func() {
			bus.Reset()
		})

		o := New(bus, dialogue.NewTracker(3), newFakeSink(), agent.WithClient(failingClient{}))

		plan := o.AnalyzeDUT(ctx, aluSpec())
		if plan == nil {
			t.Fatal("AnalyzeDUT returned nil plan")
		}
		if plan.Name != "alu_tb" {
			t.Errorf("fallback plan name = %s, want alu_tb", plan.Name)
		}
		if o.Plan() != plan {
			t.Error("fallback plan not stored")
		}
	})
}

func TestGenerateTestbench(t *testing.T) {
	ctx := context.Background()

	t.Run("full pipeline with approving reviews", func(t *testing.T) {
		bus := messaging.NewRouter()
		t.Cleanup(func() {
			bus.Reset()
		})

		sink := newFakeSink()
		tracker := dialogue.NewTracker(3)
		client := &scriptedClient{
			planText:   aluPlanJSON,
			reviewText: `{"approved": true, "issues": [], "suggestions": []}`,
		}

		agent.NewEnvAgent(bus, agent.WithClient(&codeClient{text: "// env"}))
		agent.NewUVMAgent(bus, agent.WithClient(&codeClient{text: "// agent"}))
		agent.NewSequenceAgent(bus, agent.WithClient(&codeClient{text: "// seq"}))
		agent.NewScoreboardAgent(bus, agent.WithClient(&codeClient{text: "// sb"}))
		o := New(bus, tracker, sink, agent.WithClient(client))

		plan, err := o.GenerateTestbench(ctx, aluSpec())
		if err != nil {
			t.Fatalf("GenerateTestbench failed: %v", err)
		}
		if plan.Name != "alu_tb" {
			t.Errorf("plan name = %s, want alu_tb", plan.Name)
		}

		if active := tracker.ActiveDialogues(); len(active) != 0 {
			t.Errorf("%d dialogues still active after run", len(active))
		}
		for _, entry := range tracker.AllDialogues() {
			if entry.State != dialogue.StateApproved {
				t.Errorf("dialogue %s -> %s ended in %s, want approved",
					entry.Requester, entry.Responder, entry.State)
			}
		}

		for _, file := range []string{"alu_agent.sv", "alu_sequences.sv", "alu_scoreboard.sv", "alu_env.sv"} {
			if !sink.has(file) {
				t.Errorf("sink missing %s", file)
			}
		}

		status := o.GetStatus()
		if status.Running {
			t.Error("status still running after return")
		}
		if status.EndTime.Before(status.StartTime) {
			t.Error("end time precedes start time")
		}
	})

	t.Run("persistent rejection fails the dialogue and terminates", func(t *testing.T) {
		bus := messaging.NewRouter()
		t.Cleanup(func() {
			bus.Reset()
		})

		sink := newFakeSink()
		tracker := dialogue.NewTracker(2)
		client := &scriptedClient{
			planText:   aluPlanJSON,
			reviewText: `{"approved": false, "issues": ["does not compile"], "suggestions": []}`,
		}

		agent.NewEnvAgent(bus, agent.WithClient(&codeClient{text: "// env"}))
		o := New(bus, tracker, sink, agent.WithClient(client))
		o.AnalyzeDUT(ctx, aluSpec())

		req := o.Delegate(ctx, "env_agent", "alu_env", map[string]any{"dut_name": "alu"}, "build the env")

		entry := tracker.GetDialogue(req.ID)
		if entry == nil {
			t.Fatal("dialogue not tracked")
		}
		if entry.State != dialogue.StateFailed {
			t.Errorf("dialogue state = %s, want failed", entry.State)
		}
		if entry.RevisionCount != 2 {
			t.Errorf("revision count = %d, want 2", entry.RevisionCount)
		}
		if sink.has("alu_env.sv") {
			t.Error("failed component must not be registered with the sink")
		}
	})
}

func TestCoverageFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("report below target emits one directive with uncovered bins", func(t *testing.T) {
		bus := messaging.NewRouter()
		t.Cleanup(func() {
			bus.Reset()
		})

		client := &scriptedClient{planText: aluPlanJSON}
		o := New(bus, dialogue.NewTracker(3), newFakeSink(), agent.WithClient(client))
		o.AnalyzeDUT(ctx, aluSpec()) // coverage target 90

		seq := &collector{}
		bus.Subscribe("sequence_agent", seq.handle)

		report := &messaging.CoverageReport{
			Envelope:        messaging.NewEnvelope("scoreboard_agent", "orchestrator"),
			OverallCoverage: 73.5,
			CoverageBins: map[string]float64{
				"op_add":   100.0,
				"op_sub":   60.2,
				"overflow": 0.0,
			},
			UncoveredScenarios: []string{"sub_underflow"},
		}
		bus.Send(ctx, report)

		msgs := seq.all()
		if len(msgs) != 1 {
			t.Fatalf("sequence agent received %d messages, want 1", len(msgs))
		}
		directive, ok := msgs[0].(*messaging.CoverageDirective)
		if !ok {
			t.Fatalf("got %T, want *messaging.CoverageDirective", msgs[0])
		}
		want := []string{"op_sub", "overflow"}
		if len(directive.TargetBins) != len(want) {
			t.Fatalf("target bins = %v, want %v", directive.TargetBins, want)
		}
		for i := range want {
			if directive.TargetBins[i] != want[i] {
				t.Errorf("target bins = %v, want %v", directive.TargetBins, want)
				break
			}
		}
	})

	t.Run("report at target emits nothing", func(t *testing.T) {
		bus := messaging.NewRouter()
		t.Cleanup(func() {
			bus.Reset()
		})

		client := &scriptedClient{planText: aluPlanJSON}
		o := New(bus, dialogue.NewTracker(3), newFakeSink(), agent.WithClient(client))
		o.AnalyzeDUT(ctx, aluSpec())

		seq := &collector{}
		bus.Subscribe("sequence_agent", seq.handle)

		bus.Send(ctx, &messaging.CoverageReport{
			Envelope:        messaging.NewEnvelope("scoreboard_agent", "orchestrator"),
			OverallCoverage: 92.0,
			CoverageBins:    map[string]float64{"op_add": 100.0, "op_sub": 84.0},
		})

		if got := len(seq.all()); got != 0 {
			t.Errorf("sequence agent received %d messages, want 0", got)
		}
	})

	t.Run("sequence proposal becomes an artifact", func(t *testing.T) {
		bus := messaging.NewRouter()
		t.Cleanup(func() {
			bus.Reset()
		})

		sink := newFakeSink()
		o := New(bus, dialogue.NewTracker(3), sink, agent.WithClient(&scriptedClient{}))

		bus.Send(ctx, &messaging.SequenceProposal{
			Envelope:       messaging.NewEnvelope("sequence_agent", "orchestrator"),
			SequenceName:   "targeted_coverage_seq",
			TargetScenario: "overflow",
			SequenceCode:   "class targeted_coverage_seq;",
		})

		if !sink.has("sequences/targeted_coverage_seq.sv") {
			t.Error("proposal not registered with the sink")
		}
		artifacts := o.Artifacts()
		if len(artifacts) != 1 {
			t.Fatalf("artifacts = %d, want 1", len(artifacts))
		}
		if artifacts[0].ComponentType != "sequence" {
			t.Errorf("artifact component type = %s, want sequence", artifacts[0].ComponentType)
		}
	})

	t.Run("closure loop stops when the target is reached", func(t *testing.T) {
		bus := messaging.NewRouter()
		t.Cleanup(func() {
			bus.Reset()
		})

		client := &scriptedClient{planText: aluPlanJSON}
		o := New(bus, dialogue.NewTracker(3), newFakeSink(), agent.WithClient(client))
		o.AnalyzeDUT(ctx, aluSpec()) // coverage target 90

		sb := agent.NewScoreboardAgent(bus, agent.WithClient(&codeClient{text: "- add overflow sequence"}))
		seq := &collector{}
		bus.Subscribe("sequence_agent", seq.handle)

		rounds := []map[string]float64{
			{"op_add": 100.0, "overflow": 20.0}, // mean 60
			{"op_add": 100.0, "overflow": 100.0},
		}
		last, met := o.RunCoverageClosure(ctx, sb, func(round int) map[string]float64 {
			return rounds[round]
		}, 5)

		if !met {
			t.Error("target not reported as met")
		}
		if last != 100.0 {
			t.Errorf("final coverage = %.1f, want 100.0", last)
		}
		if got := len(seq.all()); got != 1 {
			t.Errorf("sequence agent received %d directives, want 1", got)
		}
	})

	t.Run("closure loop gives up after max rounds", func(t *testing.T) {
		bus := messaging.NewRouter()
		t.Cleanup(func() {
			bus.Reset()
		})

		o := New(bus, dialogue.NewTracker(3), newFakeSink(), agent.WithClient(&scriptedClient{}))
		sb := agent.NewScoreboardAgent(bus, agent.WithClient(&codeClient{text: "- more stimulus"}))

		last, met := o.RunCoverageClosure(ctx, sb, func(round int) map[string]float64 {
			return map[string]float64{"overflow": 10.0}
		}, 3)

		if met {
			t.Error("target reported as met with flat coverage")
		}
		if last != 10.0 {
			t.Errorf("final coverage = %.1f, want 10.0", last)
		}
	})
}

func TestParseReview(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		approved bool
		issues   int
	}{
		{"explicit rejection", `{"approved": false, "issues": ["a", "b"], "suggestions": ["c"]}`, false, 2},
		{"explicit approval", `{"approved": true}`, true, 0},
		{"fenced approval", "```json\n{\"approved\": true, \"issues\": []}\n```", true, 0},
		{"garbage degrades to approval", "looks good to me!", true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			approved, issues, _ := parseReview(tc.text)
			if approved != tc.approved {
				t.Errorf("approved = %v, want %v", approved, tc.approved)
			}
			if len(issues) != tc.issues {
				t.Errorf("issues = %v, want %d entries", issues, tc.issues)
			}
		})
	}
}
