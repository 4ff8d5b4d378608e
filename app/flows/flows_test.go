package flows

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/finbot/app/finance"
	"github.com/m3rciful/finbot/core/session"
)

func newTestFlows(t *testing.T) *Flows {
	t.Helper()
	mgr := session.NewManager(session.NewMemoryStore(), session.Options{})
	return New(mgr, nil)
}

func TestRegisterBindsEveryPositionOnce(t *testing.T) {
	f := newTestFlows(t)
	require.NoError(t, f.Register())

	// The binding table itself must be free of duplicates; a second pass
	// over the same table trips the engine's duplicate check for every row.
	err := f.Register()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestCallbacksExposeTokenRoutes(t *testing.T) {
	f := newTestFlows(t)
	cbs := f.Callbacks()
	assert.Contains(t, cbs, cbNav)
	assert.Contains(t, cbs, cbTxDelete)
	assert.Contains(t, cbs, cbFlowCancel)
}

func TestTourNextTerminates(t *testing.T) {
	// Every chain through the tour map must leave it: either at the terminal
	// marker or at the currency question, which advances through its own
	// handler. A cycle here would trap users in onboarding.
	exits := map[session.Position]bool{
		PositionOnboardingDone:     true,
		PositionOnboardingCurrency: true,
	}
	for start := range tourNext {
		pos := start
		for steps := 0; !exits[pos]; steps++ {
			require.Less(t, steps, len(tourNext)+1, "cycle detected from %s", start)
			next, ok := tourNext[pos]
			require.True(t, ok, "dead end at %s", pos)
			pos = next
		}
	}
}

func TestTourTextCoversEveryScreen(t *testing.T) {
	for pos := range tourNext {
		assert.Contains(t, tourText, pos)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"100", 100, true},
		{"23.40", 23.40, true},
		{"23,40", 23.40, true},
		{" 1 250,50 ", 1250.50, true},
		{"-5", -5, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := parseAmount(tc.in)
		if tc.ok {
			require.NoError(t, err, "input %q", tc.in)
			assert.InDelta(t, tc.want, got, 1e-9, "input %q", tc.in)
		} else {
			assert.Error(t, err, "input %q", tc.in)
		}
	}
}

func TestShiftWeek(t *testing.T) {
	assert.Equal(t, "2025-12-14", shiftWeek("2025-12-07", 1))
	assert.Equal(t, "2025-11-30", shiftWeek("2025-12-07", -1))
	assert.Equal(t, "2025-01-04", shiftWeek("2024-12-28", 1))
}

func TestDraftFromDataSurvivesJSONRoundTrip(t *testing.T) {
	note := "lunch"
	draft := finance.Transaction{Amount: 23.4, Currency: "EUR", Category: "Food", Note: &note}

	// Simulate what the store does to the payload between steps.
	raw, err := json.Marshal(session.Data{dataKeyDraft: draft})
	require.NoError(t, err)
	var data session.Data
	require.NoError(t, json.Unmarshal(raw, &data))

	got, err := draftFromData(data)
	require.NoError(t, err)
	assert.Equal(t, draft.Amount, got.Amount)
	assert.Equal(t, draft.Currency, got.Currency)
	assert.Equal(t, draft.Category, got.Category)
	require.NotNil(t, got.Note)
	assert.Equal(t, note, *got.Note)
}

func TestDraftFromDataMissing(t *testing.T) {
	_, err := draftFromData(session.Data{})
	assert.Error(t, err)
}
