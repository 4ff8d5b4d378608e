package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/finbot/app/finance"
	"github.com/m3rciful/finbot/core/session"
	tghelpers "github.com/m3rciful/finbot/core/telegram/helpers"
	"github.com/m3rciful/finbot/core/telegram/keyboard"
)

// Callback keys used by onboarding buttons.
const (
	cbOnboardingLanguage = "onb_lang"
	cbOnboardingCurrency = "onb_currency"
	cbOnboardingNext     = "onb_next"
)

var onboardingLanguages = []struct {
	code  string
	label string
}{
	{"en", "English"},
	{"ru", "Русский"},
}

var onboardingCurrencies = []string{"USD", "EUR", "RUB", "GBP"}

// tourNext maps each tour screen to its successor. The budget screen is the
// last one; its successor is the terminal done marker.
var tourNext = map[session.Position]session.Position{
	PositionOnboardingIntro:       PositionOnboardingCurrency,
	PositionOnboardingTourAdd:     PositionOnboardingTourVoice,
	PositionOnboardingTourVoice:   PositionOnboardingTourPhoto,
	PositionOnboardingTourPhoto:   PositionOnboardingTourStats,
	PositionOnboardingTourStats:   PositionOnboardingTourHistory,
	PositionOnboardingTourHistory: PositionOnboardingTourBudget,
	PositionOnboardingTourBudget:  PositionOnboardingDone,
}

var tourText = map[session.Position]string{
	PositionOnboardingIntro:       "I keep track of your money. Let me show you around — a couple of quick questions first.",
	PositionOnboardingTourAdd:     "Just type what you spent, like \"coffee 4.50\", and I will record it.",
	PositionOnboardingTourVoice:   "Too busy to type? Send a voice note and I will transcribe it.",
	PositionOnboardingTourPhoto:   "Snap a receipt and I will read the total for you.",
	PositionOnboardingTourStats:   "Use /stats to see where the money went, week by week.",
	PositionOnboardingTourHistory: "Use /history to browse and fix past transactions.",
	PositionOnboardingTourBudget:  "That's it. Everything you record stays editable — nothing is final.",
}

// Start begins (or resumes announcing) onboarding for the sender. Called from
// the /start command.
func (f *Flows) Start(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	user, err := tghelpers.CurrentUser[finance.User](ctx, f.api, userID)
	if err != nil {
		var apiErr *finance.APIError
		if !errors.As(err, &apiErr) || apiErr.Status != 404 {
			return err
		}
		lang := c.Sender().LanguageCode
		if user, err = f.api.CreateUser(ctx, userID, lang); err != nil {
			return err
		}
	}
	if user.Onboarded {
		return tghelpers.SendText(c, "Welcome back! Type an expense, or use /stats and /history.")
	}

	if err := f.mgr.SetState(ctx, userID, PositionOnboardingLanguage, session.Data{}); err != nil {
		return err
	}

	buttons := make([]keyboard.InlineBtn, 0, len(onboardingLanguages))
	for _, l := range onboardingLanguages {
		buttons = append(buttons, keyboard.InlineBtn{Text: l.label, Unique: cbOnboardingLanguage, Data: l.code})
	}
	return tghelpers.SendMD(c, "Hi! Which language should we speak?", keyboard.InlineButtons(buttons))
}

func (f *Flows) handleOnboardingLanguage(ctx context.Context, ev session.Event, _ session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID
	if ev.Text != cbOnboardingLanguage {
		return nil
	}

	lang := strings.TrimSpace(ev.Token)
	if _, err := f.api.UpdateUser(ctx, userID, &lang, nil, nil); err != nil {
		return err
	}
	if err := f.mgr.SetState(ctx, userID, PositionOnboardingIntro, session.Data{}); err != nil {
		return err
	}
	return tghelpers.EditOrSendMD(c, tourText[PositionOnboardingIntro], nextMarkup())
}

func (f *Flows) handleOnboardingCurrency(ctx context.Context, ev session.Event, _ session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID
	if ev.Text != cbOnboardingCurrency {
		return nil
	}

	currency := strings.ToUpper(strings.TrimSpace(ev.Token))
	if _, err := f.api.UpdateUser(ctx, userID, nil, &currency, nil); err != nil {
		return err
	}
	if err := f.mgr.SetState(ctx, userID, PositionOnboardingAccountName, session.Data{dataKeyCurrency: currency}); err != nil {
		return err
	}
	return tghelpers.EditOrSendMD(c, "Now let's set up your first account. What should I call it? (e.g. *Cash* or *Main card*)")
}

// handleOnboardingNext advances any linear screen when its continue button is
// tapped. The currency screen injects its own keyboard; the terminal screen
// marks the user onboarded and drops the session.
func (f *Flows) handleOnboardingNext(ctx context.Context, ev session.Event, data session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID
	if ev.Text != cbOnboardingNext {
		return nil
	}

	current, err := f.mgr.GetState(ctx, userID)
	if err != nil {
		return err
	}
	next, ok := tourNext[current]
	if !ok {
		return f.expireFlow(ctx, c, userID)
	}

	switch next {
	case PositionOnboardingCurrency:
		if err := f.mgr.SetState(ctx, userID, next, data); err != nil {
			return err
		}
		buttons := make([]keyboard.InlineBtn, 0, len(onboardingCurrencies))
		for _, cur := range onboardingCurrencies {
			buttons = append(buttons, keyboard.InlineBtn{Text: cur, Unique: cbOnboardingCurrency, Data: cur})
		}
		return tghelpers.EditOrSendMD(c, "Which currency do you use day to day?", keyboard.InlineButtonsNPerRow(buttons, 2))

	case PositionOnboardingDone:
		// Terminal marker: set and immediately cleared, no further input expected.
		if err := f.mgr.SetState(ctx, userID, PositionOnboardingDone, session.Data{}); err != nil {
			return err
		}
		onboarded := true
		if _, err := f.api.UpdateUser(ctx, userID, nil, nil, &onboarded); err != nil {
			return err
		}
		if err := f.mgr.ClearState(ctx, userID); err != nil {
			return err
		}
		return tghelpers.EditOrSendMD(c, "All set! Type your first expense whenever you're ready.")

	default:
		if err := f.mgr.SetState(ctx, userID, next, data); err != nil {
			return err
		}
		return tghelpers.EditOrSendMD(c, tourText[next], nextMarkup())
	}
}

func (f *Flows) handleOnboardingAccountName(ctx context.Context, ev session.Event, data session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID

	name := strings.TrimSpace(ev.Text)
	if name == "" || len(name) > maxAccountNameLen {
		return tghelpers.SendText(c, "Please send a short name for the account (up to 64 characters).")
	}

	data[dataKeyAccountName] = name
	if err := f.mgr.SetState(ctx, userID, PositionOnboardingAccountBalance, data); err != nil {
		return err
	}
	return tghelpers.SendText(c, "And how much is on it right now? Just the number.")
}

func (f *Flows) handleOnboardingAccountBalance(ctx context.Context, ev session.Event, data session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID

	balance, parseErr := parseAmount(ev.Text)
	if parseErr != nil {
		return tghelpers.SendText(c, "I couldn't read that as a number. Try something like 1250.50")
	}

	name, _ := data[dataKeyAccountName].(string)
	currency, _ := data[dataKeyCurrency].(string)
	if name == "" {
		return f.expireFlow(ctx, c, userID)
	}

	if _, err := f.api.CreateAccount(ctx, userID, name, currency, balance); err != nil {
		return err
	}
	if err := f.mgr.SetState(ctx, userID, PositionOnboardingTourAdd, session.Data{}); err != nil {
		return err
	}
	return tghelpers.SendMD(c, tourText[PositionOnboardingTourAdd], nextMarkup())
}

func nextMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "Next ➡️", Unique: cbOnboardingNext, Data: "1"},
	})
}

func parseAmount(text string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	return strconv.ParseFloat(cleaned, 64)
}
