package session

import (
	"context"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

// Observer receives the notifications of one attempt. Methods are called on
// the goroutine running Observe, in order, and may call Handle.Cancel or
// Session.Stop.
type Observer interface {
	OnDebateID(id string)
	OnMessage(speakerID string, transcript []domain.TranscriptEntry)
	OnStateChange(state domain.SessionState)
	OnError(err error)
}

// ObserverFuncs adapts optional functions to Observer. Nil fields are
// skipped.
type ObserverFuncs struct {
	DebateID    func(id string)
	Message     func(speakerID string, transcript []domain.TranscriptEntry)
	StateChange func(state domain.SessionState)
	Error       func(err error)
}

func (f ObserverFuncs) OnDebateID(id string) {
	if f.DebateID != nil {
		f.DebateID(id)
	}
}

func (f ObserverFuncs) OnMessage(speakerID string, transcript []domain.TranscriptEntry) {
	if f.Message != nil {
		f.Message(speakerID, transcript)
	}
}

func (f ObserverFuncs) OnStateChange(state domain.SessionState) {
	if f.StateChange != nil {
		f.StateChange(state)
	}
}

func (f ObserverFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Observe dispatches h's updates to o until the attempt ends and returns the
// final state and cause. Error transitions call OnError before
// OnStateChange. The attempt does not read further from the transport until
// the callbacks for the previous update have returned, and no callback starts
// once Cancel or Session.Stop has returned. If ctx ends first the attempt is
// cancelled.
//
// Observe must be the only consumer of h's updates.
func Observe(ctx context.Context, h *Handle, o Observer) (domain.SessionState, error) {
	h.observed.Store(true)
	for {
		select {
		case u, ok := <-h.Updates():
			if !ok {
				return h.outcome()
			}
			dispatch(h, u, o)
			h.release()
		case <-ctx.Done():
			h.Cancel()
			return h.outcome()
		}
	}
}

func dispatch(h *Handle, u Update, o Observer) {
	switch u.Kind {
	case UpdateDebateID:
		h.deliver(func() { o.OnDebateID(u.DebateID) })
	case UpdateMessage:
		h.deliver(func() { o.OnMessage(u.SpeakerID, u.Transcript) })
	case UpdateState:
		if u.Err != nil && !h.deliver(func() { o.OnError(u.Err) }) {
			return
		}
		h.deliver(func() { o.OnStateChange(u.State) })
	}
}
