// Package flows defines the bot's conversational flows: the position
// catalogue, the step handlers bound to it, and the navigation callbacks
// driven by bounded tokens.
package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/finbot/app/finance"
	"github.com/m3rciful/finbot/core/session"
	tghelpers "github.com/m3rciful/finbot/core/telegram/helpers"
	"github.com/m3rciful/finbot/core/telegram/navtoken"
)

// Flows wires the finance client and the session engine into concrete
// conversation handlers.
type Flows struct {
	mgr *session.Manager
	api *finance.Client
}

// New constructs the flow set.
func New(mgr *session.Manager, api *finance.Client) *Flows {
	return &Flows{mgr: mgr, api: api}
}

// Register binds every position that expects further input to its handler.
// It runs once at startup; any double binding surfaces as an error here and
// must abort the boot.
func (f *Flows) Register() error {
	bindings := []struct {
		position session.Position
		handler  session.Handler
		kinds    []session.Kind
	}{
		{PositionOnboardingLanguage, f.handleOnboardingLanguage, []session.Kind{session.KindCallback}},
		{PositionOnboardingIntro, f.handleOnboardingNext, []session.Kind{session.KindCallback}},
		{PositionOnboardingCurrency, f.handleOnboardingCurrency, []session.Kind{session.KindCallback}},
		{PositionOnboardingAccountName, f.handleOnboardingAccountName, []session.Kind{session.KindText}},
		{PositionOnboardingAccountBalance, f.handleOnboardingAccountBalance, []session.Kind{session.KindText}},
		{PositionOnboardingTourAdd, f.handleOnboardingNext, []session.Kind{session.KindCallback}},
		{PositionOnboardingTourVoice, f.handleOnboardingNext, []session.Kind{session.KindCallback}},
		{PositionOnboardingTourPhoto, f.handleOnboardingNext, []session.Kind{session.KindCallback}},
		{PositionOnboardingTourStats, f.handleOnboardingNext, []session.Kind{session.KindCallback}},
		{PositionOnboardingTourHistory, f.handleOnboardingNext, []session.Kind{session.KindCallback}},
		{PositionOnboardingTourBudget, f.handleOnboardingNext, []session.Kind{session.KindCallback}},
		{PositionTransactionConfirm, f.handleTransactionConfirm, []session.Kind{session.KindCallback}},
		{PositionTransactionEditAmount, f.handleTransactionEditAmount, []session.Kind{session.KindText}},
		{PositionTransactionEditCategory, f.handleTransactionEditCategory, []session.Kind{session.KindCallback}},
		{PositionTransactionEditAccount, f.handleTransactionEditAccount, []session.Kind{session.KindCallback}},
		{PositionTransactionEditDate, f.handleTransactionEditDate, []session.Kind{session.KindText}},
		{PositionAccountName, f.handleAccountName, []session.Kind{session.KindText}},
		{PositionAccountBalance, f.handleAccountBalance, []session.Kind{session.KindText}},
	}
	for _, b := range bindings {
		if err := f.mgr.Register(b.position, b.handler, b.kinds...); err != nil {
			return fmt.Errorf("flows: %w", err)
		}
	}
	return nil
}

// Callbacks lists the handlers routed through the callback registry rather
// than a flow position: actions that stay valid on old messages with no
// session behind them.
func (f *Flows) Callbacks() map[string]tele.HandlerFunc {
	return map[string]tele.HandlerFunc{
		cbNav:        f.HandleNav,
		cbTxDelete:   f.HandleDeleteTransaction,
		cbFlowCancel: f.HandleCancelCallback,
	}
}

// errNoOrigin reports an event that arrived without its transport context.
var errNoOrigin = errors.New("flows: event has no transport origin")

// teleCtx recovers the Telegram context the routers attach to every event.
func teleCtx(ev session.Event) (tele.Context, error) {
	c, ok := ev.Origin.(tele.Context)
	if !ok || c == nil {
		return nil, errNoOrigin
	}
	return c, nil
}

const msgOutdated = "This action is out of date. Please start again."

// expireFlow is the single generic reaction to stale or unresolvable
// references: tell the user the action is outdated and drop the session so
// the next message starts fresh.
func (f *Flows) expireFlow(ctx context.Context, c tele.Context, userID int64) error {
	if err := f.mgr.ClearState(ctx, userID); err != nil {
		return err
	}
	return tghelpers.SendText(c, msgOutdated)
}

// scopeContext lists the user's current account ids for token decoding.
func (f *Flows) scopeContext(ctx context.Context, userID int64) (navtoken.Context, []finance.Account, error) {
	accounts, err := f.api.Accounts(ctx, userID)
	if err != nil {
		return navtoken.Context{}, nil, err
	}
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID.String())
	}
	return navtoken.Context{ScopeIDs: ids}, accounts, nil
}

// draftFromData re-hydrates the transaction draft a flow carries between
// steps. The payload survives a JSON round-trip through the store, so the
// draft arrives as a generic map and goes back through json to regain its
// shape.
func draftFromData(data session.Data) (finance.Transaction, error) {
	raw, ok := data[dataKeyDraft]
	if !ok {
		return finance.Transaction{}, errors.New("flows: no draft in session data")
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return finance.Transaction{}, fmt.Errorf("flows: marshal draft: %w", err)
	}
	var tx finance.Transaction
	if err := json.Unmarshal(buf, &tx); err != nil {
		return finance.Transaction{}, fmt.Errorf("flows: unmarshal draft: %w", err)
	}
	return tx, nil
}

// Cancel abandons whatever flow the user is in. The /cancel command lands
// here; running it outside a flow is harmless.
func (f *Flows) Cancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	active, err := f.mgr.GetState(ctx, userID)
	if err != nil {
		return err
	}
	if err := f.mgr.ClearState(ctx, userID); err != nil {
		return err
	}
	if active == session.PositionNone {
		return tghelpers.SendText(c, "Nothing to cancel.")
	}
	return tghelpers.SendText(c, "Cancelled.")
}

// cbFlowCancel backs the inline cancel button on flow prompts.
const cbFlowCancel = "flow_cancel"

func (f *Flows) HandleCancelCallback(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := f.mgr.ClearState(ctx, c.Sender().ID); err != nil {
		return err
	}
	return tghelpers.EditOrSendMD(c, "Cancelled.")
}

// Help lists what the bot understands.
func (f *Flows) Help(c tele.Context) error {
	return tghelpers.SendMD(c, strings.Join([]string{
		"*What I can do*",
		"Send a transaction as plain text: \"groceries 23.40\"",
		"Or as a voice note — I'll transcribe it.",
		"",
		"/history — browse your transactions",
		"/stats — weekly spending summary",
		"/accounts — list your accounts",
		"/newaccount — add an account",
		"/cancel — abandon the current step",
	}, "\n"))
}
