// Package actor runs a value behind a mailbox so that every message it
// receives is handled by one goroutine, in arrival order.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/codefionn/tokengate/internal/logger"
)

// ErrStopped is returned when sending to an actor that has been stopped.
var ErrStopped = errors.New("actor stopped")

// Message represents a message sent between actors
type Message interface {
	Type() string
}

// Actor represents an actor in the actor model
type Actor interface {
	// Receive processes incoming messages
	Receive(ctx context.Context, msg Message) error
	// Start starts the actor
	Start(ctx context.Context) error
	// Stop stops the actor gracefully
	Stop(ctx context.Context) error
	// ID returns the actor's unique identifier
	ID() string
}

// ActorRef is a reference to an actor for sending messages
type ActorRef struct {
	id      string
	mailbox chan Message
	actor   Actor
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.RWMutex
	stopped bool
	ctx     context.Context
}

// NewActorRef creates a new actor reference with the given ID, actor
// implementation and mailbox size.
func NewActorRef(id string, actor Actor, mailboxSize int) *ActorRef {
	return &ActorRef{
		id:      id,
		actor:   actor,
		mailbox: make(chan Message, mailboxSize),
		ctx:     context.Background(),
	}
}

// ID returns the actor's ID
func (ref *ActorRef) ID() string {
	return ref.id
}

// SendContext enqueues msg, waiting for mailbox space until ctx is done.
func (ref *ActorRef) SendContext(ctx context.Context, msg Message) error {
	ref.mu.RLock()
	defer ref.mu.RUnlock()
	if ref.stopped {
		return fmt.Errorf("actor %s: %w", ref.id, ErrStopped)
	}

	select {
	case ref.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start starts the actor's message processing loop
func (ref *ActorRef) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := ref.actor.Start(ctx); err != nil {
		cancel()
		return err
	}

	ref.mu.Lock()
	ref.cancel = cancel
	ref.ctx = ctx
	ref.mu.Unlock()

	ref.wg.Add(1)
	go ref.run(ctx)
	return nil
}

// Stop stops the actor gracefully. Messages already in the mailbox are
// processed before the actor's own Stop is called.
func (ref *ActorRef) Stop(ctx context.Context) error {
	ref.mu.Lock()
	if ref.stopped {
		ref.mu.Unlock()
		return nil
	}
	ref.stopped = true
	cancel := ref.cancel
	ref.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		ref.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return ref.actor.Stop(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the actor's main message processing loop
func (ref *ActorRef) run(ctx context.Context) {
	defer ref.wg.Done()

	for {
		select {
		case <-ctx.Done():
			ref.drain()
			return
		case msg := <-ref.mailbox:
			ref.receive(ctx, msg)
		}
	}
}

// drain handles whatever is still queued once the run context is cancelled.
// Senders are excluded by the stopped flag, so the mailbox only shrinks.
func (ref *ActorRef) drain() {
	ctx := context.WithoutCancel(ref.ctx)
	for {
		select {
		case msg := <-ref.mailbox:
			ref.receive(ctx, msg)
		default:
			return
		}
	}
}

func (ref *ActorRef) receive(ctx context.Context, msg Message) {
	if err := ref.actor.Receive(ctx, msg); err != nil {
		logger.Error("Actor %s error processing %s message: %v", ref.id, msg.Type(), err)
	}
}
