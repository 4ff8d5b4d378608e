package flows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/finbot/app/finance"
	"github.com/m3rciful/finbot/core/session"
	"github.com/m3rciful/finbot/core/telegram/callbacks"
	"github.com/m3rciful/finbot/core/telegram/format"
	tghelpers "github.com/m3rciful/finbot/core/telegram/helpers"
	"github.com/m3rciful/finbot/core/telegram/keyboard"
)

// Callback keys used by the transaction confirm/edit screens.
const (
	cbTxConfirm      = "tx_confirm"
	cbTxDiscard      = "tx_discard"
	cbTxEditMenu     = "tx_edit"
	cbTxEditAmount   = "tx_edit_amount"
	cbTxEditCategory = "tx_edit_category"
	cbTxEditAccount  = "tx_edit_account"
	cbTxEditDate     = "tx_edit_date"
	cbTxBack         = "tx_back"
	cbTxPickCategory = "tx_cat"
	cbTxPickAccount  = "tx_acc"
	cbTxDelete       = "tx_del"
)

// HandleFreeText is the default path for text no flow or command claimed:
// the backend parses it into a draft transaction and the user lands in the
// confirm step.
func (f *Flows) HandleFreeText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	draft, err := f.api.ParseTransaction(ctx, userID, c.Text())
	if err != nil {
		return tghelpers.SendText(c, "I couldn't make sense of that. Try something like \"groceries 23.40\".")
	}
	return f.beginConfirm(ctx, c, userID, draft)
}

// HandleVoice transcribes a voice note through the backend and feeds the text
// into the same parse-and-confirm path.
func (f *Flows) HandleVoice(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	voice := c.Message().Voice
	if voice == nil {
		return nil
	}
	text, err := f.api.Transcribe(ctx, userID, voice.FileID)
	if err != nil || strings.TrimSpace(text) == "" {
		return tghelpers.SendText(c, "I couldn't hear that one. Mind typing it instead?")
	}
	draft, err := f.api.ParseTransaction(ctx, userID, text)
	if err != nil {
		return tghelpers.SendText(c, "I couldn't make sense of that. Try something like \"groceries 23.40\".")
	}
	return f.beginConfirm(ctx, c, userID, draft)
}

// HandleUnknownMedia is the default for media updates no flow claimed: voice
// notes still become transactions, anything else gets a nudge toward text.
func (f *Flows) HandleUnknownMedia(c tele.Context) error {
	if msg := c.Message(); msg != nil && msg.Voice != nil {
		return f.HandleVoice(c)
	}
	return tghelpers.SendText(c, "Send a transaction as text or a voice note, e.g. \"groceries 23.40\".")
}

func (f *Flows) beginConfirm(ctx context.Context, c tele.Context, userID int64, draft finance.Transaction) error {
	data := session.Data{dataKeyDraft: draft}
	if err := f.mgr.SetState(ctx, userID, PositionTransactionConfirm, data); err != nil {
		return err
	}
	return tghelpers.SendMD(c, renderDraft(draft), confirmMarkup())
}

func (f *Flows) handleTransactionConfirm(ctx context.Context, ev session.Event, data session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID

	draft, draftErr := draftFromData(data)
	if draftErr != nil {
		return f.expireFlow(ctx, c, userID)
	}

	switch ev.Text {
	case cbTxConfirm:
		if _, err := f.api.CreateTransaction(ctx, userID, draft); err != nil {
			return err
		}
		if err := f.mgr.ClearState(ctx, userID); err != nil {
			return err
		}
		return tghelpers.EditOrSendMD(c, "Saved ✅")

	case cbTxDiscard:
		if err := f.mgr.ClearState(ctx, userID); err != nil {
			return err
		}
		return tghelpers.EditOrSendMD(c, "Discarded.")

	case cbTxEditMenu:
		return tghelpers.EditOrSendMD(c, renderDraft(draft), editMarkup())

	case cbTxBack:
		return tghelpers.EditOrSendMD(c, renderDraft(draft), confirmMarkup())

	case cbTxEditAmount:
		if err := f.mgr.SetState(ctx, userID, PositionTransactionEditAmount, data); err != nil {
			return err
		}
		return tghelpers.EditOrSendMD(c, "Send the new amount.")

	case cbTxEditDate:
		if err := f.mgr.SetState(ctx, userID, PositionTransactionEditDate, data); err != nil {
			return err
		}
		return tghelpers.EditOrSendMD(c, "Send the new date, e.g. 2025-12-07 or 7.12.2025.")

	case cbTxEditCategory:
		categories, err := f.api.Categories(ctx, userID)
		if err != nil {
			return err
		}
		if err := f.mgr.SetState(ctx, userID, PositionTransactionEditCategory, data); err != nil {
			return err
		}
		buttons := make([]keyboard.InlineBtn, 0, len(categories))
		for _, cat := range categories {
			buttons = append(buttons, keyboard.InlineBtn{Text: cat.Name, Unique: cbTxPickCategory, Data: cat.ID.String()})
		}
		return tghelpers.EditOrSendMD(c, "Pick a category:", keyboard.InlineButtonsNPerRow(buttons, 2))

	case cbTxEditAccount:
		accounts, err := f.api.Accounts(ctx, userID)
		if err != nil {
			return err
		}
		if err := f.mgr.SetState(ctx, userID, PositionTransactionEditAccount, data); err != nil {
			return err
		}
		buttons := make([]keyboard.InlineBtn, 0, len(accounts))
		for _, acc := range accounts {
			buttons = append(buttons, keyboard.InlineBtn{Text: acc.Name, Unique: cbTxPickAccount, Data: acc.ID.String()})
		}
		return tghelpers.EditOrSendMD(c, "Pick an account:", keyboard.InlineButtons(buttons))
	}

	return nil
}

func (f *Flows) handleTransactionEditAmount(ctx context.Context, ev session.Event, data session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID

	amount, parseErr := parseAmount(ev.Text)
	if parseErr != nil {
		return tghelpers.SendText(c, "I couldn't read that as a number. Try 23.40")
	}
	return f.updateDraft(ctx, c, userID, data, func(tx *finance.Transaction) {
		tx.Amount = amount
	})
}

func (f *Flows) handleTransactionEditDate(ctx context.Context, ev session.Event, data session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID

	parsed, ok := tghelpers.ParseFlexibleDate(ev.Text)
	if !ok {
		return tghelpers.SendText(c, "I couldn't read that date. Try 2025-12-07 or 7.12.2025.")
	}
	return f.updateDraft(ctx, c, userID, data, func(tx *finance.Transaction) {
		tx.Date = parsed.Format("2006-01-02")
	})
}

func (f *Flows) handleTransactionEditCategory(ctx context.Context, ev session.Event, data session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID
	if ev.Text != cbTxPickCategory {
		return nil
	}

	id, parseErr := uuid.Parse(ev.Token)
	if parseErr != nil {
		return f.expireFlow(ctx, c, userID)
	}
	categories, err := f.api.Categories(ctx, userID)
	if err != nil {
		return err
	}
	name := ""
	for _, cat := range categories {
		if cat.ID == id {
			name = cat.Name
			break
		}
	}
	if name == "" {
		return f.expireFlow(ctx, c, userID)
	}
	return f.updateDraft(ctx, c, userID, data, func(tx *finance.Transaction) {
		tx.CategoryID = id
		tx.Category = name
	})
}

func (f *Flows) handleTransactionEditAccount(ctx context.Context, ev session.Event, data session.Data) error {
	c, err := teleCtx(ev)
	if err != nil {
		return err
	}
	userID := c.Sender().ID
	if ev.Text != cbTxPickAccount {
		return nil
	}

	id, parseErr := uuid.Parse(ev.Token)
	if parseErr != nil {
		return f.expireFlow(ctx, c, userID)
	}
	accounts, err := f.api.Accounts(ctx, userID)
	if err != nil {
		return err
	}
	name := ""
	for _, acc := range accounts {
		if acc.ID == id {
			name = acc.Name
			break
		}
	}
	if name == "" {
		return f.expireFlow(ctx, c, userID)
	}
	return f.updateDraft(ctx, c, userID, data, func(tx *finance.Transaction) {
		tx.AccountID = id
		tx.Account = name
	})
}

// updateDraft applies a mutation to the working draft and returns the user to
// the confirm screen with a fresh session timestamp.
func (f *Flows) updateDraft(ctx context.Context, c tele.Context, userID int64, data session.Data, mutate func(*finance.Transaction)) error {
	draft, err := draftFromData(data)
	if err != nil {
		return f.expireFlow(ctx, c, userID)
	}
	mutate(&draft)
	data[dataKeyDraft] = draft
	if err := f.mgr.SetState(ctx, userID, PositionTransactionConfirm, data); err != nil {
		return err
	}
	return tghelpers.EditOrSendMD(c, renderDraft(draft), confirmMarkup())
}

// HandleDeleteTransaction handles the delete button on a history detail view.
// It is registered in the callback registry, not bound to a flow position.
func (f *Flows) HandleDeleteTransaction(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	id, err := uuid.Parse(strings.TrimSpace(callbacks.CallbackPayload(c)))
	if err != nil {
		return tghelpers.SendText(c, msgOutdated)
	}
	if err := f.api.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	return tghelpers.EditOrSendMD(c, "Deleted.")
}

func renderDraft(tx finance.Transaction) string {
	date := tx.Date
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	category := tx.Category
	if category == "" {
		category = "—"
	}
	account := tx.Account
	if account == "" {
		account = "—"
	}
	note := format.DerefString(tx.Note, "")

	var b strings.Builder
	fmt.Fprintf(&b, "*%.2f %s*\n", tx.Amount, tx.Currency)
	fmt.Fprintf(&b, "Category: %s\n", mdSafe(category))
	fmt.Fprintf(&b, "Account: %s\n", mdSafe(account))
	fmt.Fprintf(&b, "Date: %s", date)
	if note != "" {
		fmt.Fprintf(&b, "\n_%s_", mdSafe(note))
	}
	return b.String()
}

// mdSafe escapes user-supplied text embedded in Markdown replies.
func mdSafe(s string) string {
	escaped, err := format.EscapeMarkdown(s, format.MarkdownV1, "")
	if err != nil {
		return s
	}
	return escaped
}

func confirmMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "✅ Save", Unique: cbTxConfirm, Data: "1"},
			{Text: "✏️ Edit", Unique: cbTxEditMenu, Data: "1"},
		},
		[]keyboard.InlineBtn{
			{Text: "❌ Discard", Unique: cbTxDiscard, Data: "1"},
		},
	)
}

func editMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "Amount", Unique: cbTxEditAmount, Data: "1"},
			{Text: "Category", Unique: cbTxEditCategory, Data: "1"},
		},
		[]keyboard.InlineBtn{
			{Text: "Account", Unique: cbTxEditAccount, Data: "1"},
			{Text: "Date", Unique: cbTxEditDate, Data: "1"},
		},
		[]keyboard.InlineBtn{
			{Text: "⬅️ Back", Unique: cbTxBack, Data: "1"},
		},
	)
}
