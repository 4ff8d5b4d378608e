package flows

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/finbot/core/session"
	tghelpers "github.com/m3rciful/finbot/core/telegram/helpers"
	"github.com/m3rciful/finbot/core/telegram/keyboard"
)

const maxAccountNameLen = 64

// StartAccountCreation enters the two-step account flow. The /newaccount
// command lands here.
func (f *Flows) StartAccountCreation(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	user, err := f.api.GetUserByTelegramID(ctx, userID)
	if err != nil {
		return err
	}
	data := session.Data{dataKeyCurrency: user.Currency}
	if err := f.mgr.SetState(ctx, userID, PositionAccountName, data); err != nil {
		return err
	}
	return tghelpers.SendMD(c, "What should the account be called?", keyboard.SingleCancelMarkup(cbFlowCancel))
}

// ListAccounts renders the user's accounts with balances. The /accounts
// command lands here.
func (f *Flows) ListAccounts(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	accounts, err := f.api.Accounts(ctx, userID)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return tghelpers.SendText(c, "No accounts yet. Use /newaccount to add one.")
	}
	var b strings.Builder
	b.WriteString("*Your accounts*\n")
	for _, acc := range accounts {
		fmt.Fprintf(&b, "%s — %.2f %s\n", mdSafe(acc.Name), acc.Balance, acc.Currency)
	}
	return tghelpers.SendMD(c, b.String())
}

func (f *Flows) handleAccountName(ctx context.Context, ev session.Event, data session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID

	name := strings.TrimSpace(ev.Text)
	if name == "" || len(name) > maxAccountNameLen {
		return tghelpers.SendText(c, "Account names must be 1-64 characters. Try again.")
	}
	data[dataKeyAccountName] = name
	if err := f.mgr.SetState(ctx, userID, PositionAccountBalance, data); err != nil {
		return err
	}
	return tghelpers.SendMD(c, "Starting balance?", keyboard.SingleCancelMarkup(cbFlowCancel))
}

func (f *Flows) handleAccountBalance(ctx context.Context, ev session.Event, data session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID

	balance, parseErr := parseAmount(ev.Text)
	if parseErr != nil {
		return tghelpers.SendText(c, "I couldn't read that as a number. Try 100 or 100.50")
	}
	name, _ := data[dataKeyAccountName].(string)
	currency, _ := data[dataKeyCurrency].(string)
	if name == "" {
		return f.expireFlow(ctx, c, userID)
	}

	acc, err := f.api.CreateAccount(ctx, userID, name, currency, balance)
	if err != nil {
		return err
	}
	if err := f.mgr.ClearState(ctx, userID); err != nil {
		return err
	}
	return tghelpers.SendMD(c, fmt.Sprintf("Account *%s* created with %.2f %s.", mdSafe(acc.Name), acc.Balance, acc.Currency))
}
