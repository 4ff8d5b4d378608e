package router

import (
	"time"

	"github.com/m3rciful/finbot/core/session"
	tg "github.com/m3rciful/finbot/core/telegram"
	"github.com/m3rciful/finbot/core/telegram/middleware"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute returns a handler that routes callbacks. A tap is first
// offered to the session dispatch engine (the raw payload travels as the
// event token, so flow handlers can decode it); callbacks no flow claimed
// are routed through the registry by key.
func CallbackRoute(conv Conversation, reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}

		key, payload := parseCallback(c.Callback())
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		_ = c.Respond()

		outcome, handled, err := offer(conv, c, session.Event{
			Kind:   session.KindCallback,
			Text:   key,
			Token:  payload,
			Origin: c,
		})
		if handled || err != nil {
			extras = append(extras, slog.String("dispatch", outcome.String()))
			return handleWithSummary(c, name, start, "", "", func() error {
				return err
			}, extras...)
		}

		cbHandler, ok := reg.GetCallback(key)
		if !ok || cbHandler == nil {
			fallback := reg.CallbackNotFound()
			if fallback == nil {
				fallback = opts.NotFound
			}
			extras = append(extras, slog.String("reason", "not_found"))
			return handleWithSummary(c, name, start, "", "", func() error {
				if fallback != nil {
					return fallback(c)
				}
				return nil
			}, extras...)
		}

		return handleWithSummary(c, name, start, "", "", func() error {
			return cbHandler(c)
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
