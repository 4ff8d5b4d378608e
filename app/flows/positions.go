package flows

import "github.com/m3rciful/finbot/core/session"

// Position catalogue. This is the closed set of flow steps the bot can park a
// user at; the session engine treats the tags opaquely.
const (
	// Onboarding screens 0-11. Linear, with two branch points (language and
	// currency choice) that never loop back.
	PositionOnboardingLanguage       session.Position = "ONBOARDING_LANGUAGE"
	PositionOnboardingIntro          session.Position = "ONBOARDING_INTRO"
	PositionOnboardingCurrency       session.Position = "ONBOARDING_CURRENCY"
	PositionOnboardingAccountName    session.Position = "ONBOARDING_ACCOUNT_NAME"
	PositionOnboardingAccountBalance session.Position = "ONBOARDING_ACCOUNT_BALANCE"
	PositionOnboardingTourAdd        session.Position = "ONBOARDING_TOUR_ADD"
	PositionOnboardingTourVoice      session.Position = "ONBOARDING_TOUR_VOICE"
	PositionOnboardingTourPhoto      session.Position = "ONBOARDING_TOUR_PHOTO"
	PositionOnboardingTourStats      session.Position = "ONBOARDING_TOUR_STATS"
	PositionOnboardingTourHistory    session.Position = "ONBOARDING_TOUR_HISTORY"
	PositionOnboardingTourBudget     session.Position = "ONBOARDING_TOUR_BUDGET"
	// PositionOnboardingDone is a terminal marker: the handler that sets it
	// clears it in the same step, so it never expects further input and has
	// no registered handler.
	PositionOnboardingDone session.Position = "ONBOARDING_DONE"

	// Transaction lifecycle. Confirm can branch into the edit sub-flow and
	// every edit step returns to confirm.
	PositionTransactionConfirm      session.Position = "WAIT_TRANSACTION_CONFIRM"
	PositionTransactionEditAmount   session.Position = "WAIT_TRANSACTION_EDIT_AMOUNT"
	PositionTransactionEditCategory session.Position = "WAIT_TRANSACTION_EDIT_CATEGORY"
	PositionTransactionEditAccount  session.Position = "WAIT_TRANSACTION_EDIT_ACCOUNT"
	PositionTransactionEditDate     session.Position = "WAIT_TRANSACTION_EDIT_DATE"

	// Account creation: a linear two-step flow entered from several places.
	PositionAccountName    session.Position = "WAIT_ACCOUNT_NAME"
	PositionAccountBalance session.Position = "WAIT_ACCOUNT_BALANCE"
)

// Working-data keys shared between flow steps.
const (
	dataKeyDraft       = "draft"
	dataKeyAccountName = "account_name"
	dataKeyCurrency    = "currency"
)
