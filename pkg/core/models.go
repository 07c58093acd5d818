// Package core holds the domain models shared across the generation
// pipeline: the DUT specification read from the user and the testbench plan
// produced by the orchestrator.
package core

import "fmt"

type PortDirection string

const (
	DirInput  PortDirection = "input"
	DirOutput PortDirection = "output"
	DirInout  PortDirection = "inout"
)

// PortSpec describes a single DUT port.
type PortSpec struct {
	Name        string        `json:"name"`
	Direction   PortDirection `json:"direction"`
	Width       int           `json:"width"`
	Description string        `json:"description"`
	IsClock     bool          `json:"is_clock"`
	IsReset     bool          `json:"is_reset"`
}

// SVType returns the SystemVerilog type for the port.
func (p PortSpec) SVType() string {
	if p.Width <= 1 {
		return "logic"
	}
	return fmt.Sprintf("logic [%d:0]", p.Width-1)
}

// ParameterSpec describes a DUT parameter.
type ParameterSpec struct {
	Name         string `json:"name"`
	Datatype     string `json:"datatype"`
	DefaultValue string `json:"default_value"`
	Description  string `json:"description"`
}

// ProtocolSpec groups ports into a named interface protocol.
type ProtocolSpec struct {
	Name         string   `json:"name"`
	ProtocolType string   `json:"protocol_type"`
	PortNames    []string `json:"port_names"`
	Description  string   `json:"description"`
}

// DUTSpec is the design-under-test specification driving a generation run.
type DUTSpec struct {
	Name           string          `json:"name"`
	ModuleName     string          `json:"module_name"`
	Ports          []PortSpec      `json:"ports"`
	Parameters     []ParameterSpec `json:"parameters"`
	Protocols      []ProtocolSpec  `json:"protocols"`
	ResetName      string          `json:"reset_name"`
	ResetActiveLow bool            `json:"reset_active_low"`
	Description    string          `json:"description"`
}

// SignalPorts returns the ports that are neither clock nor reset.
func (d DUTSpec) SignalPorts() []PortSpec {
	var out []PortSpec
	for _, p := range d.Ports {
		if !p.IsClock && !p.IsReset {
			out = append(out, p)
		}
	}
	return out
}

// SequencePlan plans one stimulus sequence.
type SequencePlan struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	TargetAgent     string   `json:"target_agent"`
	Scenario        string   `json:"scenario"`
	Constraints     []string `json:"constraints"`
	CoverageTargets []string `json:"coverage_targets"`
}

// AgentPlan plans one UVM agent.
type AgentPlan struct {
	Name          string         `json:"name"`
	InterfaceName string         `json:"interface_name"`
	ProtocolType  string         `json:"protocol_type"`
	IsActive      bool           `json:"is_active"`
	HasScoreboard bool           `json:"has_scoreboard"`
	Sequences     []SequencePlan `json:"sequences"`
	Description   string         `json:"description"`
}

// TestbenchPlan is the complete plan the orchestrator works from.
type TestbenchPlan struct {
	Name            string      `json:"name"`
	DUTName         string      `json:"dut_name"`
	Agents          []AgentPlan `json:"agents"`
	TopModuleName   string      `json:"top_module_name"`
	ClockPeriodNS   float64     `json:"clock_period_ns"`
	ResetDurationNS float64     `json:"reset_duration_ns"`
	TimeoutNS       float64     `json:"simulation_timeout_ns"`
	CoverageTarget  float64     `json:"coverage_target"`
	Description     string      `json:"description"`
}

// DefaultPlan builds the deterministic fallback plan used when the
// generation service returns an unparseable plan.
func DefaultPlan(dut DUTSpec) *TestbenchPlan {
	return &TestbenchPlan{
		Name:            dut.Name + "_tb",
		DUTName:         dut.ModuleName,
		TopModuleName:   "tb_" + dut.ModuleName + "_top",
		ClockPeriodNS:   10.0,
		ResetDurationNS: 100.0,
		TimeoutNS:       100000.0,
		CoverageTarget:  95.0,
		Description:     "Auto-generated testbench for " + dut.Name,
	}
}

// Normalize fills derived defaults on a plan parsed from generation output.
func (p *TestbenchPlan) Normalize() {
	if p.TopModuleName == "" {
		p.TopModuleName = "tb_" + p.DUTName + "_top"
	}
	if p.CoverageTarget == 0 {
		p.CoverageTarget = 95.0
	}
	if p.ClockPeriodNS == 0 {
		p.ClockPeriodNS = 10.0
	}
}

// ActiveAgents returns the agents planned as active.
func (p *TestbenchPlan) ActiveAgents() []AgentPlan {
	var out []AgentPlan
	for _, a := range p.Agents {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out
}

// AllSequences flattens the per-agent sequence plans.
func (p *TestbenchPlan) AllSequences() []SequencePlan {
	var out []SequencePlan
	for _, a := range p.Agents {
		out = append(out, a.Sequences...)
	}
	return out
}
