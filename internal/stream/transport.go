package stream

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrClosed is returned when emitting on a closed stream.
var ErrClosed = eris.New("stream: closed")

// Emitter is the engine's view of a transport: an ordered pipe with a
// cancellation check before each write. It owns no business logic.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Stream is a channel-backed Emitter for in-process consumers. Events are
// delivered in emission order; nothing is reordered, dropped, or coalesced.
type Stream struct {
	ch chan Event

	mu     sync.Mutex
	closed bool
}

// NewStream creates a Stream with the given buffer size.
func NewStream(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{ch: make(chan Event, buffer)}
}

// Emit delivers ev in order. The cancellation check happens before the write
// so an aborted caller stops the engine promptly rather than after the next
// provider round-trip.
func (s *Stream) Emit(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Close ends the stream. Owned by the producing side: call only after the
// last Emit has returned. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
