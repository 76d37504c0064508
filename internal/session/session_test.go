package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-debate/internal/api/debates"
	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

const (
	kantDuty     = `{"type":"message","panelistId":"kant","text":"Duty "}` + "\n"
	kantMatters  = `{"type":"message","panelistId":"kant","text":"matters."}` + "\n"
	humeCustom   = `{"type":"message","panelistId":"hume","text":"Custom."}` + "\n"
	doneRecord   = `{"type":"done"}` + "\n"
	errorRecord  = `{"type":"error","error":"model overloaded"}` + "\n"
	missingID    = `{"type":"message","text":"oops"}` + "\n"
	testDebateID = "6f1c2d3e-4b5a-4c6d-8e7f-9a0b1c2d3e4f"
)

var testPanelists = []domain.Panelist{
	{ID: "kant", Name: "Immanuel Kant"},
	{ID: "hume", Name: "David Hume"},
}

// pipeTransport hands the session the read side of a pipe so tests control
// exactly when bytes arrive.
type pipeTransport struct {
	mu        sync.Mutex
	pr        *io.PipeReader
	pw        *io.PipeWriter
	debateID  string
	openErr   error
	ignoreCtx bool
	requests  []*debates.GenerateRequest
}

func newPipeTransport() *pipeTransport {
	pr, pw := io.Pipe()
	return &pipeTransport{pr: pr, pw: pw}
}

func (p *pipeTransport) OpenStream(ctx context.Context, req *debates.GenerateRequest) (*debates.StreamResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.openErr != nil {
		return nil, p.openErr
	}
	if !p.ignoreCtx {
		go func() {
			<-ctx.Done()
			p.pr.CloseWithError(ctx.Err())
		}()
	}
	return &debates.StreamResponse{Body: p.pr, DebateID: p.debateID, StatusCode: 200}, nil
}

// feed writes chunks from a separate goroutine, closing the stream when
// closeAfter is set. Write errors after the session hangs up are ignored.
func (p *pipeTransport) feed(closeAfter bool, chunks ...string) {
	go func() {
		for _, c := range chunks {
			if _, err := p.pw.Write([]byte(c)); err != nil {
				return
			}
		}
		if closeAfter {
			p.pw.Close()
		}
	}()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(tr Transport, opts ...Option) *Session {
	return New(tr, append([]Option{WithLogger(testLogger())}, opts...)...)
}

func collect(t *testing.T, h *Handle) []Update {
	t.Helper()
	var out []Update
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-h.Updates():
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("timed out waiting for updates")
		}
	}
}

func next(t *testing.T, h *Handle) Update {
	t.Helper()
	select {
	case u, ok := <-h.Updates():
		if !ok {
			t.Fatal("updates closed unexpectedly")
		}
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update{}
}

func TestSession_ContinuationScenario(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	h, err := s.Start(context.Background(), "Is duty prior to consequence?", testPanelists)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr.feed(true, kantDuty, kantMatters, doneRecord)

	updates := collect(t, h)

	if s.State() != domain.StateComplete {
		t.Fatalf("State() = %s, want complete", s.State())
	}
	want := []domain.TranscriptEntry{{Ordinal: 0, SpeakerID: "kant", Text: "Duty matters."}}
	if got := s.Transcript(); !reflect.DeepEqual(got, want) {
		t.Errorf("Transcript() = %+v, want %+v", got, want)
	}
	if s.CurrentSpeaker() != "" {
		t.Errorf("CurrentSpeaker() = %q after completion, want empty", s.CurrentSpeaker())
	}

	var kinds []UpdateKind
	for _, u := range updates {
		kinds = append(kinds, u.Kind)
	}
	wantKinds := []UpdateKind{UpdateState, UpdateMessage, UpdateMessage, UpdateState}
	if !reflect.DeepEqual(kinds, wantKinds) {
		t.Errorf("update kinds = %v, want %v", kinds, wantKinds)
	}
	if last := updates[len(updates)-1]; last.State != domain.StateComplete || last.Err != nil {
		t.Errorf("final update = %+v, want complete without error", last)
	}
	if updates[1].Appended != true || updates[2].Appended != false {
		t.Errorf("Appended flags = %v,%v; want true,false", updates[1].Appended, updates[2].Appended)
	}
}

func TestSession_SendsTopicAndPanelists(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	h, err := s.Start(context.Background(), "Free will", testPanelists)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr.feed(true, doneRecord)
	collect(t, h)

	if len(tr.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(tr.requests))
	}
	req := tr.requests[0]
	if req.Topic != "Free will" {
		t.Errorf("Topic = %q, want Free will", req.Topic)
	}
	if !reflect.DeepEqual(req.SelectedPanelists, testPanelists) {
		t.Errorf("SelectedPanelists = %+v, want %+v", req.SelectedPanelists, testPanelists)
	}
}

func TestSession_MalformedRecordSkipped(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	h, err := s.Start(context.Background(), "topic", testPanelists)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr.feed(true, missingID, doneRecord)

	state, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if state != domain.StateComplete {
		t.Errorf("state = %s, want complete", state)
	}
	if n := len(s.Transcript()); n != 0 {
		t.Errorf("Transcript() has %d entries, want 0", n)
	}
}

func TestSession_AlternatingSpeakers(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	tr.feed(true, kantDuty, humeCustom, kantMatters, doneRecord)

	if state, _ := h.Wait(context.Background()); state != domain.StateComplete {
		t.Fatalf("state = %s, want complete", state)
	}
	got := s.Transcript()
	if len(got) != 3 {
		t.Fatalf("Transcript() has %d entries, want 3", len(got))
	}
	if got[0].SpeakerID != "kant" || got[1].SpeakerID != "hume" || got[2].SpeakerID != "kant" {
		t.Errorf("speakers = %s,%s,%s; want kant,hume,kant", got[0].SpeakerID, got[1].SpeakerID, got[2].SpeakerID)
	}
}

func TestSession_TruncatedStreamIsError(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	tr.feed(true, kantDuty)

	state, err := h.Wait(context.Background())
	if state != domain.StateError {
		t.Fatalf("state = %s, want error", state)
	}
	se, ok := domain.AsStreamError(err)
	if !ok || se.Kind != domain.ErrorKindTruncated {
		t.Errorf("err = %v, want truncated stream error", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("truncation should be retryable")
	}
	if len(s.Transcript()) != 1 {
		t.Errorf("Transcript() length = %d, want 1", len(s.Transcript()))
	}
}

func TestSession_UnterminatedDoneIsTruncation(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	tr.feed(true, kantDuty, `{"type":"done"}`)

	if state, _ := h.Wait(context.Background()); state != domain.StateError {
		t.Errorf("state = %s, want error", state)
	}
}

func TestSession_ErrorEvent(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	tr.feed(false, kantDuty, errorRecord, humeCustom)

	updates := collect(t, h)

	if s.State() != domain.StateError {
		t.Fatalf("State() = %s, want error", s.State())
	}
	se, ok := domain.AsStreamError(s.Err())
	if !ok || se.Kind != domain.ErrorKindProtocol || se.Message != "model overloaded" {
		t.Errorf("Err() = %v, want protocol error with backend message", s.Err())
	}
	last := updates[len(updates)-1]
	if last.Kind != UpdateState || last.State != domain.StateError || last.Err == nil {
		t.Errorf("final update = %+v, want error state with cause", last)
	}
	if len(s.Transcript()) != 1 {
		t.Errorf("Transcript() length = %d, want 1 (events after error ignored)", len(s.Transcript()))
	}
}

func TestSession_DebateIDBeforeFirstMessage(t *testing.T) {
	tr := newPipeTransport()
	tr.debateID = testDebateID
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	tr.feed(true, kantDuty, doneRecord)

	updates := collect(t, h)

	idIdx, msgIdx, ids := -1, -1, 0
	for i, u := range updates {
		switch u.Kind {
		case UpdateDebateID:
			ids++
			if idIdx < 0 {
				idIdx = i
			}
			if u.DebateID != testDebateID {
				t.Errorf("DebateID = %q, want %q", u.DebateID, testDebateID)
			}
		case UpdateMessage:
			if msgIdx < 0 {
				msgIdx = i
			}
		}
	}
	if ids != 1 {
		t.Errorf("debate id updates = %d, want 1", ids)
	}
	if idIdx < 0 || msgIdx < 0 || idIdx > msgIdx {
		t.Errorf("debate id at %d, first message at %d; want id first", idIdx, msgIdx)
	}
	if s.DebateID() != testDebateID {
		t.Errorf("DebateID() = %q, want %q", s.DebateID(), testDebateID)
	}
}

func TestSession_CancelDropsLaterEvents(t *testing.T) {
	tr := newPipeTransport()
	tr.ignoreCtx = true
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	tr.feed(false, kantDuty)

	if u := next(t, h); u.Kind != UpdateState || u.State != domain.StateStreaming {
		t.Fatalf("first update = %+v, want streaming state", u)
	}
	if u := next(t, h); u.Kind != UpdateMessage {
		t.Fatalf("second update = %+v, want message", u)
	}

	h.Cancel()
	if s.State() != domain.StateCancelled {
		t.Fatalf("State() = %s, want cancelled", s.State())
	}

	// The transport keeps delivering after the abort; all of it must be dropped.
	tr.feed(true, humeCustom, kantMatters, doneRecord)

	for _, u := range collect(t, h) {
		t.Errorf("update delivered after Cancel: %+v", u)
	}
	<-h.Done()

	if s.State() != domain.StateCancelled {
		t.Errorf("State() = %s, want cancelled", s.State())
	}
	want := []domain.TranscriptEntry{{Ordinal: 0, SpeakerID: "kant", Text: "Duty "}}
	if got := s.Transcript(); !reflect.DeepEqual(got, want) {
		t.Errorf("Transcript() = %+v, want %+v", got, want)
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil for cancellation", s.Err())
	}
	if s.CurrentSpeaker() != "" {
		t.Errorf("CurrentSpeaker() = %q, want empty", s.CurrentSpeaker())
	}

	h.Cancel()
	s.Stop()
	if s.State() != domain.StateCancelled {
		t.Errorf("State() after repeated cancel = %s, want cancelled", s.State())
	}
}

func TestSession_StopBeforeAnyUpdate(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	s.Stop()

	for _, u := range collect(t, h) {
		t.Errorf("update delivered after Stop: %+v", u)
	}
	if s.State() != domain.StateCancelled {
		t.Errorf("State() = %s, want cancelled", s.State())
	}
}

func TestSession_StopIdle(t *testing.T) {
	s := newTestSession(newPipeTransport())
	s.Stop()
	if s.State() != domain.StateCancelled {
		t.Errorf("State() = %s, want cancelled", s.State())
	}
}

func TestSession_StopAfterCompleteKeepsState(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	tr.feed(true, doneRecord)
	h.Wait(context.Background())

	s.Stop()
	if s.State() != domain.StateComplete {
		t.Errorf("State() = %s, want complete", s.State())
	}
}

func TestSession_StartWhileStreaming(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	h, err := s.Start(context.Background(), "topic", testPanelists)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Cancel()

	if _, err := s.Start(context.Background(), "topic", testPanelists); !errors.Is(err, ErrAlreadyStreaming) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStreaming", err)
	}
}

func TestSession_RestartAfterError(t *testing.T) {
	first := newPipeTransport()
	s := newTestSession(first)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	first.feed(false, kantDuty, errorRecord)
	if state, _ := h.Wait(context.Background()); state != domain.StateError {
		t.Fatalf("first attempt state = %s, want error", state)
	}

	second := newPipeTransport()
	s.transport = second
	h2, err := s.Start(context.Background(), "topic", testPanelists)
	if err != nil {
		t.Fatalf("retry Start() error = %v", err)
	}
	if s.Err() != nil || len(s.Transcript()) != 0 {
		t.Errorf("retry did not reset outcome: err=%v transcript=%+v", s.Err(), s.Transcript())
	}
	second.feed(true, humeCustom, doneRecord)

	if state, err := h2.Wait(context.Background()); state != domain.StateComplete || err != nil {
		t.Fatalf("retry outcome = %s, %v; want complete", state, err)
	}
	if got := s.Transcript(); len(got) != 1 || got[0].SpeakerID != "hume" {
		t.Errorf("Transcript() = %+v, want one hume entry", got)
	}

	// The superseded handle reports cancellation rather than the new outcome.
	if state, _ := h.outcome(); state != domain.StateCancelled {
		t.Errorf("superseded handle outcome = %s, want cancelled", state)
	}
}

func TestSession_OpenStreamFailure(t *testing.T) {
	tr := newPipeTransport()
	tr.openErr = errors.New("dial tcp 127.0.0.1:8081: connect: connection refused")
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	state, err := h.Wait(context.Background())

	if state != domain.StateError {
		t.Fatalf("state = %s, want error", state)
	}
	se, ok := domain.AsStreamError(err)
	if !ok || se.Kind != domain.ErrorKindTransport {
		t.Errorf("err = %v, want transport error", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("transport failure should be retryable")
	}
}

func TestSession_HTTPStatusFailure(t *testing.T) {
	tr := newPipeTransport()
	tr.openErr = domain.ErrHTTPStatus(400, "Invalid panelists").WithCode("INVALID_PANELISTS")
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	_, err := h.Wait(context.Background())

	se, ok := domain.AsStreamError(err)
	if !ok || se.Kind != domain.ErrorKindHTTPStatus || se.Code != "INVALID_PANELISTS" {
		t.Errorf("err = %v, want http_status error with backend code", err)
	}
	if domain.IsRetryable(err) {
		t.Error("400 should not be retryable")
	}
}

func TestSession_Timeout(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr, WithTimeout(50*time.Millisecond))

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	state, err := h.Wait(context.Background())

	if state != domain.StateError {
		t.Fatalf("state = %s, want error", state)
	}
	se, ok := domain.AsStreamError(err)
	if !ok || se.Kind != domain.ErrorKindTimeout {
		t.Errorf("err = %v, want timeout error", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("timeout should be retryable")
	}
}

func TestSession_ParentContextCancelled(t *testing.T) {
	tr := newPipeTransport()
	s := newTestSession(tr)

	ctx, cancel := context.WithCancel(context.Background())
	h, _ := s.Start(ctx, "topic", testPanelists)
	next(t, h)
	cancel()

	for _, u := range collect(t, h) {
		t.Errorf("unexpected update after parent cancel: %+v", u)
	}
	if s.State() != domain.StateCancelled {
		t.Errorf("State() = %s, want cancelled", s.State())
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil", s.Err())
	}
}

func TestSession_ChunkBoundaryIndependence(t *testing.T) {
	full := kantDuty + humeCustom + kantMatters + missingID + kantMatters + doneRecord

	run := func(size int) []domain.TranscriptEntry {
		tr := newPipeTransport()
		s := newTestSession(tr)
		h, err := s.Start(context.Background(), "topic", testPanelists)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		var chunks []string
		for i := 0; i < len(full); i += size {
			end := i + size
			if end > len(full) {
				end = len(full)
			}
			chunks = append(chunks, full[i:end])
		}
		tr.feed(true, chunks...)
		if state, err := h.Wait(context.Background()); state != domain.StateComplete {
			t.Fatalf("chunk size %d: state = %s (%v), want complete", size, state, err)
		}
		return s.Transcript()
	}

	want := run(len(full))
	for _, size := range []int{1, 2, 3, 7, 13, 64} {
		if got := run(size); !reflect.DeepEqual(got, want) {
			t.Errorf("chunk size %d: transcript = %+v, want %+v", size, got, want)
		}
	}
}

func TestObserve_DispatchOrder(t *testing.T) {
	tr := newPipeTransport()
	tr.debateID = testDebateID
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	tr.feed(false, kantDuty, errorRecord)

	var calls []string
	state, err := Observe(context.Background(), h, ObserverFuncs{
		DebateID: func(id string) { calls = append(calls, "id") },
		Message: func(speakerID string, tr []domain.TranscriptEntry) {
			calls = append(calls, "message:"+speakerID)
		},
		StateChange: func(st domain.SessionState) { calls = append(calls, "state:"+st.String()) },
		Error:       func(err error) { calls = append(calls, "error") },
	})

	if state != domain.StateError || err == nil {
		t.Errorf("Observe() = %s, %v; want error state with cause", state, err)
	}
	want := []string{"state:streaming", "id", "message:kant", "error", "state:error"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestObserve_CancelFromCallback(t *testing.T) {
	tr := newPipeTransport()
	tr.ignoreCtx = true
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	tr.feed(true, kantDuty, humeCustom, doneRecord)

	messages := 0
	state, _ := Observe(context.Background(), h, ObserverFuncs{
		Message: func(string, []domain.TranscriptEntry) {
			messages++
			h.Cancel()
		},
	})

	if state != domain.StateCancelled {
		t.Errorf("state = %s, want cancelled", state)
	}
	if messages != 1 {
		t.Errorf("messages observed = %d, want 1", messages)
	}
}

func TestObserve_NoCallbackAfterStopReturns(t *testing.T) {
	for i := 0; i < 200; i++ {
		tr := newPipeTransport()
		s := newTestSession(tr)

		h, err := s.Start(context.Background(), "topic", testPanelists)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		tr.feed(false, kantDuty, humeCustom, kantMatters, humeCustom)

		var stopped atomic.Bool
		var late atomic.Int32
		check := func() {
			if stopped.Load() {
				late.Add(1)
			}
		}

		observed := make(chan struct{})
		go func() {
			defer close(observed)
			Observe(context.Background(), h, ObserverFuncs{
				DebateID:    func(string) { check() },
				Message:     func(string, []domain.TranscriptEntry) { check() },
				StateChange: func(domain.SessionState) { check() },
				Error:       func(error) { check() },
			})
		}()

		if i%2 == 1 {
			time.Sleep(time.Duration(i%7) * 100 * time.Microsecond)
		}
		s.Stop()
		stopped.Store(true)

		select {
		case <-observed:
		case <-time.After(5 * time.Second):
			t.Fatal("Observe did not return after Stop")
		}
		if n := late.Load(); n > 0 {
			t.Fatalf("run %d: %d callbacks after Stop returned", i, n)
		}
	}
}

// countingBody counts reads so tests can see when the session pulls more
// input.
type countingBody struct {
	io.ReadCloser
	reads atomic.Int32
}

func (b *countingBody) Read(p []byte) (int, error) {
	b.reads.Add(1)
	return b.ReadCloser.Read(p)
}

type countingTransport struct {
	*pipeTransport
	body *countingBody
}

func (c *countingTransport) OpenStream(ctx context.Context, req *debates.GenerateRequest) (*debates.StreamResponse, error) {
	resp, err := c.pipeTransport.OpenStream(ctx, req)
	if err != nil {
		return nil, err
	}
	c.body = &countingBody{ReadCloser: resp.Body}
	resp.Body = c.body
	return resp, nil
}

func TestObserve_CallbacksRunBeforeNextRead(t *testing.T) {
	tr := &countingTransport{pipeTransport: newPipeTransport()}
	s := newTestSession(tr)

	h, _ := s.Start(context.Background(), "topic", testPanelists)
	tr.feed(true, kantDuty, humeCustom, doneRecord)

	var advanced []string
	state, err := Observe(context.Background(), h, ObserverFuncs{
		Message: func(speakerID string, _ []domain.TranscriptEntry) {
			before := tr.body.reads.Load()
			time.Sleep(20 * time.Millisecond)
			if after := tr.body.reads.Load(); after != before {
				advanced = append(advanced, speakerID)
			}
		},
	})

	if state != domain.StateComplete || err != nil {
		t.Fatalf("Observe() = %s, %v; want complete", state, err)
	}
	if len(advanced) > 0 {
		t.Errorf("stream read during callbacks for %v", advanced)
	}
}
