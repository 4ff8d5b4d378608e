package session

import (
	"context"
	"log/slog"

	"github.com/m3rciful/finbot/core/logger"
)

// Kind classifies an inbound update for dispatch purposes.
type Kind string

const (
	// KindText is a plain text message.
	KindText Kind = "text"
	// KindVoice is a voice note reference.
	KindVoice Kind = "voice"
	// KindPhoto is a photo reference.
	KindPhoto Kind = "photo"
	// KindLocation is a shared location.
	KindLocation Kind = "location"
	// KindCallback is an inline button tap carrying a token payload.
	KindCallback Kind = "callback"
)

// Event is what the engine needs from an inbound update: the kind, the text
// for message updates, the raw token for button taps, and the transport's own
// context object so concrete handlers can reply.
type Event struct {
	Kind  Kind
	Text  string
	Token string
	// Origin carries the transport-specific context (tele.Context for this
	// bot). The engine never inspects it.
	Origin any
}

// Outcome distinguishes why dispatch did or did not run a handler. Callers
// branch differently per case, so collapsing them into a bool loses signal.
type Outcome int

const (
	// OutcomeHandled means the bound handler ran.
	OutcomeHandled Outcome = iota
	// OutcomeNoSession means the user has no active flow.
	OutcomeNoSession
	// OutcomeStale means the flow was abandoned and has been cleared.
	OutcomeStale
	// OutcomeUnhandled means the position has no handler for this event.
	OutcomeUnhandled
)

// String returns a log-friendly name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeHandled:
		return "handled"
	case OutcomeNoSession:
		return "no_session"
	case OutcomeStale:
		return "stale"
	case OutcomeUnhandled:
		return "unhandled"
	}
	return "unknown"
}

// Dispatcher routes inbound events to the handler bound to the user's current
// position. It never catches handler errors; top-level containment belongs to
// the transport layer.
type Dispatcher struct {
	mgr *Manager
}

// NewDispatcher wraps a Manager.
func NewDispatcher(mgr *Manager) *Dispatcher {
	return &Dispatcher{mgr: mgr}
}

// Handle resolves the user's session and runs the bound handler.
//
// A store failure propagates with OutcomeUnhandled; it must never be read as
// "no session". A handler error propagates with OutcomeHandled, since the
// handler did run.
func (d *Dispatcher) Handle(ctx context.Context, userID int64, ev Event) (Outcome, error) {
	rec, err := d.mgr.load(ctx, userID)
	if err != nil {
		return OutcomeUnhandled, err
	}
	if rec == nil || rec.Position == PositionNone {
		return OutcomeNoSession, nil
	}

	if d.mgr.IsStale(rec.Data) {
		logger.Debug(ctx, "session", "dispatch.stale",
			slog.Int64("user_id", userID),
			slog.String("position", string(rec.Position)),
		)
		if err := d.mgr.ClearState(ctx, userID); err != nil {
			return OutcomeStale, err
		}
		return OutcomeStale, nil
	}

	b, ok := d.mgr.binding(rec.Position)
	if !ok {
		// Some tags are markers consumed by direct callers only.
		return OutcomeUnhandled, nil
	}
	if !b.accepts(ev.Kind) {
		logger.Debug(ctx, "session", "dispatch.kind_rejected",
			slog.Int64("user_id", userID),
			slog.String("position", string(rec.Position)),
			slog.String("kind", string(ev.Kind)),
		)
		return OutcomeUnhandled, nil
	}

	logger.Debug(ctx, "session", "dispatch.handle",
		slog.Int64("user_id", userID),
		slog.String("position", string(rec.Position)),
		slog.String("kind", string(ev.Kind)),
	)
	return OutcomeHandled, b.Handler(ctx, ev, rec.Data)
}

