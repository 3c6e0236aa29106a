// Package relay is the typed message-passing protocol connecting the
// four isolated execution contexts (page, content, background, panel).
// Delivery is at-most-once and unacknowledged for plain publishes;
// request/response pairs are correlated by a unique id echoed in the
// reply, with a caller-side timeout so delivery failure is detectable.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned by Request when no correlated reply arrives in
// time.
var ErrTimeout = errors.New("relay: request timed out")

const inboxBuffer = 16

// Bus routes messages between contexts. Each registered context owns a
// buffered inbox; a full or missing inbox drops the message (at-most-once,
// no retry).
type Bus struct {
	logger *slog.Logger

	mu      sync.RWMutex
	inboxes map[Context]chan Message
	pending map[string]chan Message
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:  logger,
		inboxes: make(map[Context]chan Message),
		pending: make(map[string]chan Message),
	}
}

// Register creates (or replaces) the inbox for a context and returns its
// receive side.
func (b *Bus) Register(ctx Context) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	inbox := make(chan Message, inboxBuffer)
	b.inboxes[ctx] = inbox
	return inbox
}

// Publish delivers a message to a context's inbox, fire-and-forget. A
// reply carrying a pending correlation id is routed to the waiting
// requester instead.
func (b *Bus) Publish(to Context, msg Message) {
	if msg.CorrelationID != "" {
		b.mu.RLock()
		waiter, ok := b.pending[msg.CorrelationID]
		b.mu.RUnlock()
		if ok {
			select {
			case waiter <- msg:
			default:
			}
			return
		}
	}

	b.mu.RLock()
	inbox, ok := b.inboxes[to]
	b.mu.RUnlock()
	if !ok {
		b.logger.Warn("relay drop: no such context",
			slog.String("to", string(to)),
			slog.String("type", string(msg.Type)),
		)
		return
	}

	select {
	case inbox <- msg:
	default:
		b.logger.Warn("relay drop: inbox full",
			slog.String("to", string(to)),
			slog.String("type", string(msg.Type)),
		)
	}
}

// Request publishes a message carrying a fresh correlation id and waits
// for the echoed reply. Returns ErrTimeout when no reply lands before the
// deadline, so callers can detect delivery failure instead of waiting
// indefinitely.
func (b *Bus) Request(ctx context.Context, to Context, msg Message, timeout time.Duration) (Message, error) {
	msg.CorrelationID = uuid.New().String()
	waiter := make(chan Message, 1)

	b.mu.Lock()
	b.pending[msg.CorrelationID] = waiter
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, msg.CorrelationID)
		b.mu.Unlock()
	}()

	b.Publish(to, msg)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-waiter:
		return reply, nil
	case <-timer.C:
		return Message{}, ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Reply answers a correlated request. The reply inherits the request's
// correlation id so the bus can route it to the waiter.
func (b *Bus) Reply(req Message, reply Message) {
	reply.CorrelationID = req.CorrelationID
	b.Publish(req.From, reply)
}
