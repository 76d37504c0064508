package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

// UpdateKind identifies what an Update reports.
type UpdateKind string

const (
	// UpdateDebateID carries the persisted debate identifier. It is sent at
	// most once per attempt, before the first message.
	UpdateDebateID UpdateKind = "debate_id"

	// UpdateMessage reports a message event applied to the transcript.
	UpdateMessage UpdateKind = "message"

	// UpdateState reports a state transition. Terminal Error transitions
	// carry Err.
	UpdateState UpdateKind = "state"
)

// Update is one ordered notification from an attempt.
type Update struct {
	Kind  UpdateKind
	State domain.SessionState

	// Message updates
	SpeakerID  string
	Entry      domain.TranscriptEntry
	Appended   bool
	Transcript []domain.TranscriptEntry

	DebateID string
	Err      error
}

// Handle controls one attempt. It is returned by Session.Start.
type Handle struct {
	s         *Session
	attempt   uint64
	cancelCtx context.CancelFunc

	updates chan Update
	done    chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	sendMu   sync.Mutex

	// Set by Observe. The attempt then waits for each update to be
	// dispatched before reading further.
	observed atomic.Bool
	ack      chan struct{}

	dispatchMu sync.Mutex
	inCallback atomic.Bool
}

func newHandle(s *Session, attempt uint64, cancel context.CancelFunc) *Handle {
	return &Handle{
		s:         s,
		attempt:   attempt,
		cancelCtx: cancel,
		updates:   make(chan Update),
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
		ack:       make(chan struct{}),
	}
}

// Updates returns the ordered update channel. It is unbuffered: the attempt
// does not read further from the transport until each update is received.
// The channel is closed when the attempt ends.
func (h *Handle) Updates() <-chan Update {
	return h.updates
}

// Done is closed once the attempt has released its transport resources.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel aborts the attempt. It is idempotent and safe to call from any
// goroutine, including one that is ranging over Updates or running an
// Observer callback. Once Cancel returns no further update is delivered, no
// further Observer callback starts and the session state no longer changes
// for this attempt.
func (h *Handle) Cancel() {
	h.stopOnce.Do(func() {
		h.s.cancelAttempt(h)
		close(h.stop)
		h.cancelCtx()
	})

	// Wait out a send that raced with the close above.
	h.sendMu.Lock()
	h.sendMu.Unlock()

	// Wait out a dispatch that passed its stop check. A callback that is
	// already running is not waited for, so a callback may cancel its own
	// attempt.
	if !h.inCallback.Load() {
		h.dispatchMu.Lock()
		h.dispatchMu.Unlock()
	}
}

// Wait drains the remaining updates and returns the attempt's final state
// and error cause. If ctx ends first the attempt is cancelled.
func (h *Handle) Wait(ctx context.Context) (domain.SessionState, error) {
	for {
		select {
		case _, ok := <-h.updates:
			if !ok {
				return h.outcome()
			}
		case <-ctx.Done():
			h.Cancel()
			return h.outcome()
		}
	}
}

func (h *Handle) outcome() (domain.SessionState, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.s.attempt != h.attempt {
		// Superseded by a later attempt; only cancellation can have ended it.
		return domain.StateCancelled, nil
	}
	return h.s.state, h.s.err
}

func (h *Handle) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// emit delivers u unless the handle has been cancelled. When an Observer is
// attached it also waits until u has been dispatched.
func (h *Handle) emit(u Update) bool {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	if h.stopped() {
		return false
	}
	select {
	case h.updates <- u:
	case <-h.stop:
		return false
	}

	if !h.observed.Load() {
		return true
	}
	select {
	case <-h.ack:
		return true
	case <-h.stop:
		return false
	}
}

// deliver runs fn unless the handle has been cancelled. Cancel from another
// goroutine blocks until fn returns.
func (h *Handle) deliver(fn func()) bool {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	if h.stopped() {
		return false
	}
	h.inCallback.Store(true)
	defer h.inCallback.Store(false)
	fn()
	return true
}

// release lets the attempt continue after an update has been dispatched.
func (h *Handle) release() {
	select {
	case h.ack <- struct{}{}:
	case <-h.stop:
	}
}
