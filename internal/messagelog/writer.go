package messagelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codefionn/tokengate/internal/actor"
	"github.com/codefionn/tokengate/internal/consts"
)

type appendMsg struct {
	entry Entry
	done  chan error
}

func (appendMsg) Type() string { return "append" }

// sinkActor owns the sink; the actor runtime guarantees a single caller.
type sinkActor struct {
	sink Sink
}

func (a *sinkActor) ID() string { return "messagelog" }

func (a *sinkActor) Start(ctx context.Context) error { return nil }

func (a *sinkActor) Stop(ctx context.Context) error {
	return a.sink.Close()
}

func (a *sinkActor) Receive(ctx context.Context, msg actor.Message) error {
	m, ok := msg.(appendMsg)
	if !ok {
		return fmt.Errorf("unexpected message type %s", msg.Type())
	}
	err := a.sink.Append(ctx, m.entry)
	m.done <- err
	return err
}

// Writer serializes appends from any number of goroutines onto one Sink.
type Writer struct {
	ref *actor.ActorRef
	now func() time.Time
}

// NewWriter starts the writer goroutine. The Writer takes ownership of sink
// and closes it on Close.
func NewWriter(ctx context.Context, sink Sink) (*Writer, error) {
	ref := actor.NewActorRef("messagelog", &sinkActor{sink: sink}, consts.MessageLogMailboxSize)
	if err := ref.Start(ctx); err != nil {
		return nil, fmt.Errorf("start message log writer: %w", err)
	}
	return &Writer{ref: ref, now: time.Now}, nil
}

// Append timestamps message and waits until the sink has stored it.
func (w *Writer) Append(ctx context.Context, message []byte, remote string) error {
	msg := appendMsg{
		entry: Entry{
			Timestamp: w.now(),
			Message:   append([]byte(nil), message...),
			Remote:    remote,
		},
		done: make(chan error, 1),
	}

	if err := w.ref.SendContext(ctx, msg); err != nil {
		if errors.Is(err, actor.ErrStopped) {
			return ErrClosed
		}
		return err
	}

	select {
	case err := <-msg.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes queued entries and closes the sink.
func (w *Writer) Close(ctx context.Context) error {
	return w.ref.Stop(ctx)
}
