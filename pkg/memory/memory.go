// Package memory stores an agent's accumulating conversation with the
// generation service.
package memory

import "sync"

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single exchange in a conversation.
type Turn struct {
	Role    Role
	Content string
}

// Conversation is a capacity-bounded ordered list of turns.
type Conversation struct {
	turns    []Turn
	capacity int
	mu       sync.RWMutex
}

// NewConversation creates a conversation that keeps at most capacity turns.
func NewConversation(capacity int) *Conversation {
	return &Conversation{
		turns:    make([]Turn, 0, capacity),
		capacity: capacity,
	}
}

// Turns returns a copy of all turns in order.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	return turns
}

// Append adds a turn, evicting the oldest once capacity is exceeded.
// TODO: eviction should be token-count based rather than turn-count based.
func (c *Conversation) Append(role Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, Turn{Role: role, Content: content})
	if len(c.turns) > c.capacity {
		c.turns = c.turns[1:]
	}
}

// Clear drops all turns.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = c.turns[:0]
}

// Len returns the number of stored turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}
