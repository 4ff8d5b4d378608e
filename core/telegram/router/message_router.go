package router

import (
	"context"
	"time"

	"github.com/m3rciful/finbot/core/session"
	tg "github.com/m3rciful/finbot/core/telegram"
	tghelpers "github.com/m3rciful/finbot/core/telegram/helpers"
	"github.com/m3rciful/finbot/core/telegram/middleware"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Conversation is the minimal interface the routers need from the session
// dispatch engine.
type Conversation interface {
	Handle(ctx context.Context, userID int64, ev session.Event) (session.Outcome, error)
}

// MessageOptions controls fallback behaviour for message updates that no
// active flow claimed.
type MessageOptions struct {
	// FreeText runs for text that neither a flow nor a command consumed;
	// free-form transaction parsing hangs off this path.
	FreeText tele.HandlerFunc
	// UnknownMedia runs for voice/photo/location updates outside any flow.
	UnknownMedia tele.HandlerFunc
}

// MessageRoutes builds handlers for text, voice, photo, and location updates.
// Every update is offered to the session dispatch engine first; the distinct
// dispatch outcomes (no session, stale, unhandled) all fall through to the
// default path for that update kind.
func MessageRoutes(conv Conversation, reg *tg.Registry, opts MessageOptions) []tg.Route {
	textHandler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		outcome, handled, err := offer(conv, c, session.Event{
			Kind:   session.KindText,
			Text:   text,
			Origin: c,
		})
		if handled || err != nil {
			return handleWithSummary(c, "flow", start, "", "", func() error {
				return err
			}, slog.String("dispatch", outcome.String()))
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				}, slog.String("dispatch", outcome.String()))
			}
		}

		if opts.FreeText != nil {
			return handleWithSummary(c, "free_text", start, "", "", func() error {
				return opts.FreeText(c)
			}, slog.String("dispatch", outcome.String()))
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	mediaHandler := func(kind session.Kind, name string) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()
			outcome, handled, err := offer(conv, c, session.Event{
				Kind:   kind,
				Text:   c.Text(),
				Origin: c,
			})
			if handled || err != nil {
				return handleWithSummary(c, "flow_"+name, start, "", "", func() error {
					return err
				}, slog.String("dispatch", outcome.String()))
			}
			if opts.UnknownMedia != nil {
				return handleWithSummary(c, "unexpected_"+name, start, "", "", func() error {
					return opts.UnknownMedia(c)
				})
			}
			logHandlerSummary(c, "unexpected_"+name, start, "skip", "ok", nil)
			return nil
		}
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(textHandler)},
		{Endpoint: tele.OnVoice, Handler: wrap(mediaHandler(session.KindVoice, "voice"))},
		{Endpoint: tele.OnPhoto, Handler: wrap(mediaHandler(session.KindPhoto, "photo"))},
		{Endpoint: tele.OnLocation, Handler: wrap(mediaHandler(session.KindLocation, "location"))},
	}
}

// offer runs the update through the dispatch engine. The bool reports whether
// the flow handler ran; a non-nil error with handled=false is an
// infrastructure failure, not a handler error.
func offer(conv Conversation, c tele.Context, ev session.Event) (session.Outcome, bool, error) {
	if conv == nil || c.Sender() == nil {
		return session.OutcomeNoSession, false, nil
	}
	ctx := tghelpers.BuildContext(c)
	outcome, err := conv.Handle(ctx, c.Sender().ID, ev)
	return outcome, outcome == session.OutcomeHandled, err
}
