// Package session drives one debate generation attempt end to end: it issues
// the request, decodes the event stream, assembles the transcript and reports
// exactly one terminal outcome.
//
// State machine per attempt:
//
//	Idle ──Start──▶ Streaming ──done──────────────▶ Complete
//	                    │    ──error/truncation────▶ Error
//	Idle/Streaming ─────┴────Stop/Cancel──────────▶ Cancelled
//
// A session may be started again from any terminal state; that begins a new
// attempt and events of the old attempt are dropped.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-debate/internal/api/debates"
	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
	"github.com/tjfontaine/polyglot-debate/internal/stream"
	"github.com/tjfontaine/polyglot-debate/internal/transcript"
)

// DefaultTimeout bounds a whole generation attempt.
const DefaultTimeout = 2 * time.Minute

// ErrAlreadyStreaming is returned by Start while an attempt is in progress.
var ErrAlreadyStreaming = errors.New("session is already streaming")

// Transport opens a generation stream. *debates.Client satisfies it.
type Transport interface {
	OpenStream(ctx context.Context, req *debates.GenerateRequest) (*debates.StreamResponse, error)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithTimeout bounds each attempt. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithTracerProvider sets the tracer provider used for attempt spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Session) {
		s.tracer = tp.Tracer(tracerName)
	}
}

const tracerName = "github.com/tjfontaine/polyglot-debate/internal/session"

// Session owns the transcript, current speaker and outcome of a debate
// generation. All mutations are serialised by the session.
type Session struct {
	transport Transport
	logger    *slog.Logger
	timeout   time.Duration
	tracer    trace.Tracer

	mu       sync.Mutex
	state    domain.SessionState
	asm      *transcript.Assembler
	err      error
	debateID string
	attempt  uint64
	current  *Handle
}

// New creates an idle session.
func New(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		logger:    slog.Default(),
		timeout:   DefaultTimeout,
		tracer:    otel.Tracer(tracerName),
		asm:       transcript.NewAssembler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a new attempt for topic and panelists. It resets the
// transcript and any prior outcome. The returned handle's updates must be
// drained, by ranging over Updates, by Observe or by Wait, until the handle
// is done or cancelled.
func (s *Session) Start(ctx context.Context, topic string, panelists []domain.Panelist) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.StateStreaming {
		return nil, ErrAlreadyStreaming
	}

	s.attempt++
	s.state = domain.StateStreaming
	s.asm.Reset()
	s.err = nil
	s.debateID = ""

	runCtx, cancel := context.WithCancel(ctx)
	if s.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, s.timeout)
		parent := cancel
		cancel = func() {
			cancelTimeout()
			parent()
		}
	}

	h := newHandle(s, s.attempt, cancel)
	s.current = h

	req := &debates.GenerateRequest{
		Topic:             topic,
		SelectedPanelists: append([]domain.Panelist(nil), panelists...),
	}

	s.logger.Info("debate stream starting",
		slog.Uint64("attempt", h.attempt),
		slog.Int("panelists", len(panelists)))

	go s.run(runCtx, h, req)
	return h, nil
}

// Stop cancels the latest attempt. An idle session becomes Cancelled and a
// terminal session keeps its state. In every case no update is delivered
// after Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	h := s.current
	if h == nil && s.state == domain.StateIdle {
		s.state = domain.StateCancelled
	}
	s.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
}

// State returns the current state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a snapshot of the transcript.
func (s *Session) Transcript() []domain.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asm.Entries()
}

// CurrentSpeaker returns the speaker of the latest message while streaming,
// or "" once the attempt is terminal.
func (s *Session) CurrentSpeaker() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asm.CurrentSpeaker()
}

// Err returns the cause of the Error state, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// DebateID returns the persisted debate identifier advertised by the backend
// for the current attempt, if any.
func (s *Session) DebateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debateID
}

// live reports whether h is the active attempt and still streaming. Callers
// must hold s.mu.
func (s *Session) live(h *Handle) bool {
	return s.attempt == h.attempt && s.state == domain.StateStreaming
}

func (s *Session) run(ctx context.Context, h *Handle, req *debates.GenerateRequest) {
	defer close(h.done)
	defer close(h.updates)
	defer h.cancelCtx()

	ctx, span := s.tracer.Start(ctx, "session.stream", trace.WithAttributes(
		attribute.Int("debate.topic_length", len(req.Topic)),
		attribute.Int("debate.panelists", len(req.SelectedPanelists)),
	))
	defer span.End()

	h.emit(Update{Kind: UpdateState, State: domain.StateStreaming})

	resp, err := s.transport.OpenStream(ctx, req)
	if err != nil {
		s.finish(ctx, h, span, err)
		return
	}
	defer resp.Body.Close()

	if resp.DebateID != "" {
		span.SetAttributes(attribute.String("debate.id", resp.DebateID))
		if s.setDebateID(h, resp.DebateID) {
			h.emit(Update{Kind: UpdateDebateID, DebateID: resp.DebateID})
		}
	}

	r := stream.NewReader(resp.Body, s.logger)
	messages := 0
	defer func() {
		span.SetAttributes(
			attribute.Int("debate.messages", messages),
			attribute.Int("debate.skipped_records", r.Skipped()))
	}()

	for {
		ev, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = domain.ErrTruncated()
			}
			s.finish(ctx, h, span, err)
			return
		}

		switch ev.Type {
		case domain.EventTypeMessage:
			u, ok := s.applyMessage(h, ev)
			if !ok {
				return
			}
			messages++
			h.emit(u)

		case domain.EventTypeError:
			s.finish(ctx, h, span, domain.ErrProtocol(ev.Message))
			return

		case domain.EventTypeDone:
			s.finish(ctx, h, span, nil)
			return
		}
	}
}

func (s *Session) setDebateID(h *Handle, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live(h) {
		return false
	}
	s.debateID = id
	return true
}

func (s *Session) applyMessage(h *Handle, ev domain.StreamEvent) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live(h) {
		return Update{}, false
	}
	c, _ := s.asm.Apply(ev)
	return Update{
		Kind:       UpdateMessage,
		State:      domain.StateStreaming,
		SpeakerID:  ev.SpeakerID,
		Entry:      c.Entry,
		Appended:   c.Appended,
		Transcript: s.asm.Entries(),
	}, true
}

// finish performs the terminal transition for h. A nil cause completes the
// attempt. Cancellation, whether through the handle or the caller's context,
// produces Cancelled without any update.
func (s *Session) finish(ctx context.Context, h *Handle, span trace.Span, cause error) {
	if cause != nil && !h.stopped() && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cause = domain.ErrTimeout(ctx.Err())
		} else {
			s.cancelAttempt(h)
			span.SetAttributes(attribute.String("debate.state", domain.StateCancelled.String()))
			return
		}
	}

	s.mu.Lock()
	if !s.live(h) {
		s.mu.Unlock()
		span.SetAttributes(attribute.String("debate.state", domain.StateCancelled.String()))
		return
	}

	u := Update{Kind: UpdateState}
	if cause == nil {
		s.state = domain.StateComplete
	} else {
		if _, ok := domain.AsStreamError(cause); !ok {
			cause = domain.ErrTransport(cause)
		}
		s.state = domain.StateError
		s.err = cause
		u.Err = cause
	}
	s.asm.ClearSpeaker()
	u.State = s.state
	u.Transcript = s.asm.Entries()
	entries := s.asm.Len()
	s.mu.Unlock()

	span.SetAttributes(attribute.String("debate.state", u.State.String()))
	if cause != nil {
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
		s.logger.Warn("debate stream failed",
			slog.Uint64("attempt", h.attempt),
			slog.String("error", cause.Error()),
			slog.Bool("retryable", domain.IsRetryable(cause)))
	} else {
		s.logger.Info("debate stream complete",
			slog.Uint64("attempt", h.attempt),
			slog.Int("entries", entries))
	}

	h.emit(u)
}

// cancelAttempt moves h's attempt to Cancelled if it is still streaming.
func (s *Session) cancelAttempt(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live(h) {
		return
	}
	s.state = domain.StateCancelled
	s.asm.ClearSpeaker()
	s.logger.Info("debate stream cancelled", slog.Uint64("attempt", h.attempt))
}
