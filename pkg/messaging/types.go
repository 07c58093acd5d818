package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Priority indicates how urgently a message should be treated by its recipient.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Kind tags each message variant. The set is closed: the router and agents
// dispatch on it with type switches.
type Kind string

const (
	KindPlanRequest       Kind = "plan_request"
	KindPlanResponse      Kind = "plan_response"
	KindReviewFeedback    Kind = "review_feedback"
	KindInterfaceContract Kind = "interface_contract"
	KindSequenceProposal  Kind = "sequence_proposal"
	KindCoverageReport    Kind = "coverage_report"
	KindCoverageDirective Kind = "coverage_directive"
	KindCodeArtifact      Kind = "code_artifact"
)

// Envelope carries the fields common to every inter-agent message.
// CorrelationID, when set, is the ID of the originating request.
type Envelope struct {
	ID            string
	Sender        string
	Recipient     string
	Timestamp     time.Time
	Priority      Priority
	CorrelationID string
	Metadata      map[string]any
}

// NewEnvelope builds an envelope with a fresh unique ID and normal priority.
func NewEnvelope(sender, recipient string) Envelope {
	return Envelope{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Timestamp: time.Now().UTC(),
		Priority:  PriorityNormal,
		Metadata:  make(map[string]any),
	}
}

// Head returns the shared envelope of a message.
func (e *Envelope) Head() *Envelope { return e }

// Message is the closed family of inter-agent messages. Concrete variants
// embed Envelope and are immutable once published.
type Message interface {
	Kind() Kind
	Head() *Envelope
}

// PlanRequest asks a sub-agent to generate a component.
type PlanRequest struct {
	Envelope
	ComponentName string
	Spec          map[string]any
	Instructions  string
}

func (*PlanRequest) Kind() Kind { return KindPlanRequest }

// PlanResponse carries a sub-agent's proposed code back to the requester.
type PlanResponse struct {
	Envelope
	ComponentName string
	ProposedCode  string
	Notes         []string
	Confidence    float64 // 0.0 - 1.0
}

func (*PlanResponse) Kind() Kind { return KindPlanResponse }

// ReviewFeedback approves a response or requests a revision.
type ReviewFeedback struct {
	Envelope
	ComponentName string
	Approved      bool
	Issues        []string
	Suggestions   []string
}

func (*ReviewFeedback) Kind() Kind { return KindReviewFeedback }

// InterfaceContract describes transaction fields and constraints one agent
// publishes for another to consume. No reply is expected.
type InterfaceContract struct {
	Envelope
	InterfaceName   string
	TransactionType string
	Fields          []map[string]any
	Constraints     []string
	ProtocolNotes   string
}

func (*InterfaceContract) Kind() Kind { return KindInterfaceContract }

// SequenceProposal offers a new stimulus sequence to the orchestrator,
// outside the request/response correlation.
type SequenceProposal struct {
	Envelope
	SequenceName           string
	TargetScenario         string
	SequenceCode           string
	ExpectedCoverageImpact []string
}

func (*SequenceProposal) Kind() Kind { return KindSequenceProposal }

// CoverageReport summarizes functional coverage on a 0-100 scale.
type CoverageReport struct {
	Envelope
	OverallCoverage    float64
	CoverageBins       map[string]float64
	UncoveredScenarios []string
	Suggestions        []string
}

func (*CoverageReport) Kind() Kind { return KindCoverageReport }

// CoverageDirective steers future stimulus toward uncovered bins.
type CoverageDirective struct {
	Envelope
	TargetBins      []string
	TargetScenarios []string
	Constraints     []string
	PriorityOrder   []string
}

func (*CoverageDirective) Kind() Kind { return KindCoverageDirective }

// CodeArtifact is a finished output unit destined for the artifact sink.
type CodeArtifact struct {
	Envelope
	Filename      string
	Content       string
	Language      string
	ComponentType string
}

func (*CodeArtifact) Kind() Kind { return KindCodeArtifact }
