package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Handler is invoked for each delivered message. An error (or panic) in one
// handler never affects delivery to other handlers and never reaches the
// publisher; it is reported through the router's error callback instead.
type Handler func(ctx context.Context, msg Message) error

// ErrorFunc receives handler failures. The default implementation logs them.
type ErrorFunc func(channel string, msg Message, err error)

// Subscription identifies a registered handler so it can be removed later.
// Function values are not comparable in Go, so removal is token-based.
type Subscription struct {
	channel string
	kind    Kind
	id      uint64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Router is an in-process publish/subscribe bus with named channels, kind
// subscriptions, and an append-only history of every published message.
// One Router is constructed per run and passed into every agent.
type Router struct {
	mu       sync.RWMutex
	nextID   uint64
	channels map[string][]subscriber
	kinds    map[Kind][]subscriber
	history  []Message
	onError  ErrorFunc
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithErrorFunc replaces the default log-based handler failure reporter.
func WithErrorFunc(f ErrorFunc) RouterOption {
	return func(r *Router) {
		r.onError = f
	}
}

// NewRouter creates a new message router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		channels: make(map[string][]subscriber),
		kinds:    make(map[Kind][]subscriber),
		onError: func(channel string, msg Message, err error) {
			log.Printf("handler failed on channel %q for %s: %v", channel, msg.Kind(), err)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a handler for every future message published on channel.
// The same handler may be registered on multiple channels.
func (r *Router) Subscribe(channel string, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.channels[channel] = append(r.channels[channel], subscriber{id: r.nextID, handler: h})
	return Subscription{channel: channel, id: r.nextID}
}

// SubscribeKind registers a handler for every future message of the given
// kind, independent of channel.
func (r *Router) SubscribeKind(k Kind, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.kinds[k] = append(r.kinds[k], subscriber{id: r.nextID, handler: h})
	return Subscription{kind: k, id: r.nextID}
}

// Unsubscribe removes a previously registered handler. Unknown tokens are a
// no-op.
func (r *Router) Unsubscribe(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.kind != "" {
		r.kinds[sub.kind] = removeSubscriber(r.kinds[sub.kind], sub.id)
		return
	}
	r.channels[sub.channel] = removeSubscriber(r.channels[sub.channel], sub.id)
}

func removeSubscriber(subs []subscriber, id uint64) []subscriber {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Publish appends msg to the history, then delivers it concurrently to every
// channel subscriber and every matching kind subscriber. It returns once all
// handlers have finished. Handler failures are isolated per handler and
// reported through the error callback, never to the caller.
func (r *Router) Publish(ctx context.Context, channel string, msg Message) {
	r.mu.Lock()
	r.history = append(r.history, msg)
	targets := make([]subscriber, 0, len(r.channels[channel])+len(r.kinds[msg.Kind()]))
	targets = append(targets, r.channels[channel]...)
	targets = append(targets, r.kinds[msg.Kind()]...)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(s subscriber) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.onError(channel, msg, fmt.Errorf("handler panic: %v", rec))
				}
			}()
			if err := s.handler(ctx, msg); err != nil {
				r.onError(channel, msg, err)
			}
		}(t)
	}
	wg.Wait()
}

// Send delivers msg to its recipient's channel. By convention each agent's
// inbound channel is named after the agent.
func (r *Router) Send(ctx context.Context, msg Message) {
	r.Publish(ctx, msg.Head().Recipient, msg)
}

// History returns a copy of all published messages in publish order.
func (r *Router) History() []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Message, len(r.history))
	copy(out, r.history)
	return out
}

// HistoryFor returns, in publish order, the messages sent to or from agentName.
func (r *Router) HistoryFor(agentName string) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Message
	for _, m := range r.history {
		head := m.Head()
		if head.Sender == agentName || head.Recipient == agentName {
			out = append(out, m)
		}
	}
	return out
}

// Reset drops all subscriptions and the history.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = make(map[string][]subscriber)
	r.kinds = make(map[Kind][]subscriber)
	r.history = nil
}
