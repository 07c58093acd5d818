package orchestrator

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/boristopalov/verigen/pkg/core"
)

// extractJSON strips markdown code fences the model sometimes wraps around
// JSON output.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "\n"); i != -1 {
			text = text[i+1:]
		} else {
			text = text[3:]
		}
		if j := strings.LastIndex(text, "```"); j != -1 {
			text = strings.TrimRight(text[:j], " \t\n")
		}
	}
	return text
}

// parsePlan interprets generation output as a testbench plan. Returns nil
// when the output is not usable; the caller substitutes the default plan.
func parsePlan(text string) *core.TestbenchPlan {
	raw := extractJSON(text)
	if !gjson.Valid(raw) {
		return nil
	}
	doc := gjson.Parse(raw)
	if !doc.Get("name").Exists() {
		return nil
	}

	plan := &core.TestbenchPlan{
		Name:            doc.Get("name").String(),
		DUTName:         doc.Get("dut_name").String(),
		TopModuleName:   doc.Get("top_module_name").String(),
		ClockPeriodNS:   doc.Get("clock_period_ns").Float(),
		ResetDurationNS: doc.Get("reset_duration_ns").Float(),
		TimeoutNS:       doc.Get("simulation_timeout_ns").Float(),
		CoverageTarget:  doc.Get("coverage_target").Float(),
		Description:     doc.Get("description").String(),
	}

	doc.Get("agents").ForEach(func(_, a gjson.Result) bool {
		ap := core.AgentPlan{
			Name:          a.Get("name").String(),
			InterfaceName: a.Get("interface_name").String(),
			ProtocolType:  a.Get("protocol_type").String(),
			IsActive:      boolOr(a, "is_active", true),
			HasScoreboard: boolOr(a, "has_scoreboard", true),
			Description:   a.Get("description").String(),
		}
		a.Get("sequences").ForEach(func(_, s gjson.Result) bool {
			// models frequently emit bare sequence names instead of objects
			if s.Type == gjson.String {
				ap.Sequences = append(ap.Sequences, core.SequencePlan{Name: s.String()})
				return true
			}
			ap.Sequences = append(ap.Sequences, core.SequencePlan{
				Name:        s.Get("name").String(),
				Description: s.Get("description").String(),
				TargetAgent: s.Get("target_agent").String(),
				Scenario:    s.Get("scenario").String(),
			})
			return true
		})
		plan.Agents = append(plan.Agents, ap)
		return true
	})

	plan.Normalize()
	return plan
}

// parseReview interprets generation output as a review triple. Any parse
// failure degrades to an optimistic approval so a malformed review never
// stalls a dialogue.
func parseReview(text string) (approved bool, issues, suggestions []string) {
	raw := extractJSON(text)
	if !gjson.Valid(raw) {
		return true, nil, nil
	}
	doc := gjson.Parse(raw)
	approved = true
	if v := doc.Get("approved"); v.Exists() {
		approved = v.Bool()
	}
	return approved, stringsOf(doc.Get("issues")), stringsOf(doc.Get("suggestions"))
}

func boolOr(r gjson.Result, path string, def bool) bool {
	v := r.Get(path)
	if !v.Exists() {
		return def
	}
	return v.Bool()
}

func stringsOf(r gjson.Result) []string {
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out
}
