package flows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/finbot/app/finance"
	"github.com/m3rciful/finbot/core/logger"
	"github.com/m3rciful/finbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/finbot/core/telegram/helpers"
	"github.com/m3rciful/finbot/core/telegram/keyboard"
	"github.com/m3rciful/finbot/core/telegram/navtoken"
)

// cbNav is the registry key every navigation button shares; the payload is a
// bounded token.
const cbNav = "nav"

const historyPerPage = 5

// ShowHistory renders the first page of transaction history. The /history
// command lands here.
func (f *Flows) ShowHistory(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return f.renderHistory(ctx, c, c.Sender().ID, "", 0, false)
}

// ShowStats renders the current week's spending summary. The /stats command
// lands here.
func (f *Flows) ShowStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	anchor := time.Now().UTC().Format("2006-01-02")
	return f.renderStats(ctx, c, c.Sender().ID, "", anchor, false)
}

// HandleNav decodes a navigation token against the user's current accounts
// and executes it. Tokens outlive the messages they were attached to; any
// decode failure means the world moved on, and the reply says so instead of
// surfacing an error.
func (f *Flows) HandleNav(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	scope, _, err := f.scopeContext(ctx, userID)
	if err != nil {
		return err
	}
	action, decodeErr := navtoken.Decode(callbacks.CallbackPayload(c), scope)
	if decodeErr != nil {
		// An unresolvable token reference gets the same treatment as a
		// stale session: say so, drop whatever flow is in progress.
		logger.Debug(ctx, "flows", "nav.expired", slog.String("err", decodeErr.Error()))
		return f.expireFlow(ctx, c, userID)
	}

	switch action.Verb {
	case navtoken.VerbViewPage:
		return f.renderHistory(ctx, c, userID, action.ScopeID, action.Index, true)
	case navtoken.VerbViewItem:
		return f.renderItem(ctx, c, userID, action.ScopeID, action.Index)
	case navtoken.VerbSetPeriod:
		return f.renderStats(ctx, c, userID, action.ScopeID, action.Date, true)
	case navtoken.VerbStepForward:
		return f.renderStats(ctx, c, userID, action.ScopeID, shiftWeek(action.Date, 1), true)
	case navtoken.VerbStepBack:
		return f.renderStats(ctx, c, userID, action.ScopeID, shiftWeek(action.Date, -1), true)
	}
	return f.expireFlow(ctx, c, userID)
}

func (f *Flows) renderHistory(ctx context.Context, c tele.Context, userID int64, accountID string, page int, edit bool) error {
	pageData, err := f.api.Transactions(ctx, userID, finance.TransactionsQuery{
		AccountID: accountID,
		Page:      page,
		PerPage:   historyPerPage,
	})
	if err != nil {
		return err
	}
	if pageData.Total == 0 {
		return f.reply(c, "No transactions yet. Send one as text, e.g. \"groceries 23.40\".", nil, edit)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*History* — page %d of %d\n", pageData.Page+1, pageData.Pages)
	for i, tx := range pageData.Items {
		fmt.Fprintf(&b, "%d. %s — %.2f %s (%s)\n", i+1, mdSafe(tx.Category), tx.Amount, tx.Currency, tx.Date)
	}

	var itemRow []keyboard.InlineBtn
	for i := range pageData.Items {
		token, err := navtoken.Encode(navtoken.Action{
			Verb:    navtoken.VerbViewItem,
			ScopeID: accountID,
			Index:   pageData.Page*historyPerPage + i,
		})
		if err != nil {
			return err
		}
		itemRow = append(itemRow, keyboard.InlineBtn{Text: fmt.Sprintf("%d", i+1), Unique: cbNav, Data: token})
	}

	var pageRow []keyboard.InlineBtn
	if pageData.Page > 0 {
		token, err := navtoken.Encode(navtoken.Action{Verb: navtoken.VerbViewPage, ScopeID: accountID, Index: pageData.Page - 1})
		if err != nil {
			return err
		}
		pageRow = append(pageRow, keyboard.InlineBtn{Text: "⬅️", Unique: cbNav, Data: token})
	}
	if pageData.Page+1 < pageData.Pages {
		token, err := navtoken.Encode(navtoken.Action{Verb: navtoken.VerbViewPage, ScopeID: accountID, Index: pageData.Page + 1})
		if err != nil {
			return err
		}
		pageRow = append(pageRow, keyboard.InlineBtn{Text: "➡️", Unique: cbNav, Data: token})
	}

	rows := [][]keyboard.InlineBtn{itemRow}
	if len(pageRow) > 0 {
		rows = append(rows, pageRow)
	}
	return f.reply(c, b.String(), keyboard.InlineButtonsRows(rows...), edit)
}

// renderItem opens one transaction by its absolute offset in the filtered
// history.
func (f *Flows) renderItem(ctx context.Context, c tele.Context, userID int64, accountID string, offset int) error {
	if offset < 0 {
		return tghelpers.EditOrSendMD(c, msgOutdated)
	}
	pageData, err := f.api.Transactions(ctx, userID, finance.TransactionsQuery{
		AccountID: accountID,
		Page:      offset / historyPerPage,
		PerPage:   historyPerPage,
	})
	if err != nil {
		return err
	}
	idx := offset % historyPerPage
	if idx >= len(pageData.Items) {
		return tghelpers.EditOrSendMD(c, msgOutdated)
	}
	tx := pageData.Items[idx]

	backToken, err := navtoken.Encode(navtoken.Action{Verb: navtoken.VerbViewPage, ScopeID: accountID, Index: pageData.Page})
	if err != nil {
		return err
	}
	markup := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "🗑 Delete", Unique: cbTxDelete, Data: tx.ID.String()},
		},
		[]keyboard.InlineBtn{
			{Text: "⬅️ Back", Unique: cbNav, Data: backToken},
		},
	)
	return tghelpers.EditOrSendMD(c, renderDraft(tx), markup)
}

func (f *Flows) renderStats(ctx context.Context, c tele.Context, userID int64, accountID, anchor string, edit bool) error {
	stats, err := f.api.Stats(ctx, userID, finance.StatsQuery{
		AccountID: accountID,
		Period:    "week",
		Anchor:    anchor,
	})
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Week %s — %s*\n", stats.From, stats.To)
	if len(stats.Rows) == 0 {
		b.WriteString("Nothing spent this week.")
	} else {
		for _, row := range stats.Rows {
			fmt.Fprintf(&b, "%s — %.2f\n", mdSafe(row.Category), row.Amount)
		}
		fmt.Fprintf(&b, "*Total: %.2f*", stats.Total)
	}

	backToken, err := navtoken.Encode(navtoken.Action{Verb: navtoken.VerbStepBack, ScopeID: accountID, Date: anchor})
	if err != nil {
		return err
	}
	fwdToken, err := navtoken.Encode(navtoken.Action{Verb: navtoken.VerbStepForward, ScopeID: accountID, Date: anchor})
	if err != nil {
		return err
	}
	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "⬅️", Unique: cbNav, Data: backToken},
		{Text: "➡️", Unique: cbNav, Data: fwdToken},
	})
	return f.reply(c, b.String(), markup, edit)
}

func (f *Flows) reply(c tele.Context, text string, markup *tele.ReplyMarkup, edit bool) error {
	if edit {
		if markup != nil {
			return tghelpers.EditOrSendMD(c, text, markup)
		}
		return tghelpers.EditOrSendMD(c, text)
	}
	if markup != nil {
		return tghelpers.SendMD(c, text, markup)
	}
	return tghelpers.SendMD(c, text)
}

// shiftWeek moves an anchor date by whole weeks; a blank or unparseable
// anchor falls back to today.
func shiftWeek(anchor string, weeks int) string {
	t, err := time.Parse("2006-01-02", anchor)
	if err != nil {
		t = time.Now().UTC()
	}
	return t.AddDate(0, 0, 7*weeks).Format("2006-01-02")
}
