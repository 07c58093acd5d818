// Package dialogue tracks request/response/review cycles between agents,
// keyed by the correlation id of the originating request.
package dialogue

import (
	"log"
	"sync"

	"github.com/boristopalov/verigen/pkg/messaging"
)

// State is the lifecycle state of one dialogue.
type State string

const (
	StatePending           State = "pending" // reserved for pre-registration
	StateInProgress        State = "in_progress"
	StateAwaitingReview    State = "awaiting_review"
	StateRevisionRequested State = "revision_requested"
	StateApproved          State = "approved"
	StateFailed            State = "failed"
)

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateFailed
}

// Entry tracks a single request/response dialogue. Entries are never deleted;
// terminal entries stay queryable for audit.
type Entry struct {
	CorrelationID string
	Requester     string
	Responder     string
	State         State
	Request       *messaging.PlanRequest
	Response      *messaging.PlanResponse
	Feedback      *messaging.ReviewFeedback
	RevisionCount int
	MaxRevisions  int
}

// Tracker manages dialogues between agents. Each Record call is atomic with
// respect to the entry it touches; a single mutex over the map is sufficient
// at the expected load.
type Tracker struct {
	mu           sync.Mutex
	dialogues    map[string]*Entry
	maxRevisions int
}

// NewTracker creates a tracker. maxRevisions is copied into every entry it
// creates.
func NewTracker(maxRevisions int) *Tracker {
	return &Tracker{
		dialogues:    make(map[string]*Entry),
		maxRevisions: maxRevisions,
	}
}

// StartDialogue registers a new dialogue keyed by the request's id. If an
// entry already exists under that id (which unique ids should prevent), the
// existing entry is left untouched.
func (t *Tracker) StartDialogue(req *messaging.PlanRequest) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.dialogues[req.ID]; ok {
		log.Printf("dialogue %s already exists, ignoring duplicate start", req.ID)
		return existing
	}

	entry := &Entry{
		CorrelationID: req.ID,
		Requester:     req.Sender,
		Responder:     req.Recipient,
		State:         StateInProgress,
		Request:       req,
		MaxRevisions:  t.maxRevisions,
	}
	t.dialogues[req.ID] = entry
	log.Printf("dialogue started: %s -> %s (%s)", req.Sender, req.Recipient, req.ID)
	return entry
}

// RecordResponse stores a response and moves the dialogue to awaiting review.
// Returns nil when no dialogue matches the correlation id, or when the
// dialogue is already terminal; neither case mutates any entry.
func (t *Tracker) RecordResponse(resp *messaging.PlanResponse) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.lookup(resp.CorrelationID)
	if entry == nil {
		return nil
	}

	entry.Response = resp
	entry.State = StateAwaitingReview
	return entry
}

// RecordFeedback stores review feedback. Approval moves the dialogue to the
// terminal approved state; a rejection increments the revision count and
// either requests a revision or, once max revisions is reached, fails the
// dialogue. Returns nil for unknown or terminal dialogues without mutating
// anything.
func (t *Tracker) RecordFeedback(fb *messaging.ReviewFeedback) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.lookup(fb.CorrelationID)
	if entry == nil {
		return nil
	}

	entry.Feedback = fb
	if fb.Approved {
		entry.State = StateApproved
		return entry
	}

	entry.RevisionCount++
	if entry.RevisionCount >= entry.MaxRevisions {
		entry.State = StateFailed
		log.Printf("dialogue %s failed after %d revisions", entry.CorrelationID, entry.RevisionCount)
	} else {
		entry.State = StateRevisionRequested
	}
	return entry
}

// lookup returns the live entry for cid, or nil (logged) when cid is unknown
// or the entry is terminal. Caller must hold t.mu.
func (t *Tracker) lookup(cid string) *Entry {
	if cid == "" {
		log.Printf("no dialogue found for empty correlation id")
		return nil
	}
	entry, ok := t.dialogues[cid]
	if !ok {
		log.Printf("no dialogue found for correlation_id=%s", cid)
		return nil
	}
	if entry.State.Terminal() {
		log.Printf("dialogue %s is already %s, ignoring", cid, entry.State)
		return nil
	}
	return entry
}

// GetDialogue returns the entry for the given correlation id, if any.
func (t *Tracker) GetDialogue(correlationID string) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialogues[correlationID]
}

// ActiveDialogues returns all dialogues that have not reached a terminal
// state.
func (t *Tracker) ActiveDialogues() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*Entry
	for _, d := range t.dialogues {
		if !d.State.Terminal() {
			out = append(out, d)
		}
	}
	return out
}

// DialoguesForAgent returns every dialogue where the agent is the requester
// or the responder.
func (t *Tracker) DialoguesForAgent(agentName string) []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*Entry
	for _, d := range t.dialogues {
		if d.Requester == agentName || d.Responder == agentName {
			out = append(out, d)
		}
	}
	return out
}

// AllDialogues returns every tracked dialogue, terminal included.
func (t *Tracker) AllDialogues() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Entry, 0, len(t.dialogues))
	for _, d := range t.dialogues {
		out = append(out, d)
	}
	return out
}
