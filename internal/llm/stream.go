package llm

import (
	"context"
	"errors"
	"io"
	"sync"
)

// eventStream adapts a producer function to the Stream interface. The
// producer runs on its own goroutine and sends events into a channel;
// Recv drains it. Whatever the producer does, the consumer observes
// exactly one EventEnd before io.EOF.
type eventStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	done   chan error

	mu       sync.Mutex
	sawEnd   bool
	finished bool
	closed   bool
}

// newEventStream starts run on a goroutine and returns a Stream over its
// events. If run returns an error and never emitted an EventEnd, a
// terminal EventEnd is synthesized from the error.
func newEventStream(parent context.Context, run func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(parent)
	s := &eventStream{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 16),
		done:   make(chan error, 1),
	}
	go func() {
		s.done <- run(ctx, s.events)
		close(s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return Event{}, io.EOF
	}
	s.mu.Unlock()

	event, ok := <-s.events
	if ok {
		if event.Type == EventEnd {
			s.mu.Lock()
			if s.sawEnd {
				// Producer misbehaved; swallow the duplicate.
				s.mu.Unlock()
				return s.Recv()
			}
			s.sawEnd = true
			s.mu.Unlock()
		}
		return event, nil
	}

	// Producer finished and the channel drained.
	err := <-s.done
	s.done <- err // keep for repeated Recv calls

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return Event{}, io.EOF
	}
	if !s.sawEnd {
		s.sawEnd = true
		return s.terminalEvent(err), nil
	}
	s.finished = true
	return Event{}, io.EOF
}

// terminalEvent synthesizes the single EventEnd when the producer exited
// without emitting one.
func (s *eventStream) terminalEvent(err error) Event {
	switch {
	case err == nil:
		return Event{Type: EventEnd, Finish: FinishComplete}
	case errors.Is(err, context.Canceled) || errors.Is(s.ctx.Err(), context.Canceled):
		return Event{Type: EventEnd, Finish: FinishCancelled, Err: err}
	default:
		return Event{Type: EventEnd, Finish: FinishError, Err: err}
	}
}

func (s *eventStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	// Unblock a producer mid-send; the channel is closed once run returns.
	go func() {
		for range s.events {
		}
	}()
	return nil
}
