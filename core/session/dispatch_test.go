package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore simulates infrastructure failure on every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Put(context.Context, string, []byte, time.Duration) error { return errStoreDown }
func (failingStore) Get(context.Context, string) ([]byte, error)             { return nil, errStoreDown }
func (failingStore) Delete(context.Context, string) error                    { return errStoreDown }

func TestDispatchNoSession(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	d := NewDispatcher(mgr)

	outcome, err := d.Handle(context.Background(), testUserID, Event{Kind: KindText})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSession, outcome)
}

func TestDispatchHandled(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	var got Event
	var gotData Data
	require.NoError(t, mgr.Register("P", func(_ context.Context, ev Event, data Data) error {
		got = ev
		gotData = data
		return nil
	}, KindText))
	require.NoError(t, mgr.SetState(ctx, testUserID, "P", Data{"k": "v"}))

	d := NewDispatcher(mgr)
	outcome, err := d.Handle(ctx, testUserID, Event{Kind: KindText, Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHandled, outcome)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "v", gotData["k"])
}

func TestDispatchHandlerErrorKeepsHandledOutcome(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	handlerErr := errors.New("boom")
	require.NoError(t, mgr.Register("P", func(context.Context, Event, Data) error {
		return handlerErr
	}))
	require.NoError(t, mgr.SetState(ctx, testUserID, "P", nil))

	d := NewDispatcher(mgr)
	outcome, err := d.Handle(ctx, testUserID, Event{Kind: KindText})
	assert.Equal(t, OutcomeHandled, outcome, "the handler ran, its error is the handler's")
	assert.ErrorIs(t, err, handlerErr)
}

func TestDispatchStaleClearsSession(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	ctx := context.Background()

	called := false
	require.NoError(t, mgr.Register("P", func(context.Context, Event, Data) error {
		called = true
		return nil
	}))
	require.NoError(t, mgr.SetState(ctx, testUserID, "P", nil))
	clock.advance(mgr.StaleAfter() + time.Second)

	d := NewDispatcher(mgr)
	outcome, err := d.Handle(ctx, testUserID, Event{Kind: KindText})
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, outcome)
	assert.False(t, called, "stale sessions never reach the handler")

	// The stale session is gone; the next event sees no session at all.
	outcome, err = d.Handle(ctx, testUserID, Event{Kind: KindText})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSession, outcome)
}

func TestDispatchStalenessWindowSequence(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	ctx := context.Background()

	handled := 0
	require.NoError(t, mgr.Register("WAIT_ACCOUNT_NAME", func(context.Context, Event, Data) error {
		handled++
		return nil
	}))
	require.NoError(t, mgr.SetState(ctx, testUserID, "WAIT_ACCOUNT_NAME", Data{}))
	d := NewDispatcher(mgr)

	// Four minutes in the session is still live.
	clock.advance(4 * time.Minute)
	outcome, err := d.Handle(ctx, testUserID, Event{Kind: KindText, Text: "Groceries"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHandled, outcome)
	assert.Equal(t, 1, handled)

	// Six minutes after the original write it has gone stale.
	clock.advance(2 * time.Minute)
	outcome, err = d.Handle(ctx, testUserID, Event{Kind: KindText, Text: "more"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, outcome)
	assert.Equal(t, 1, handled)
}

func TestDispatchUnboundPosition(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.SetState(ctx, testUserID, "MARKER", nil))

	d := NewDispatcher(mgr)
	outcome, err := d.Handle(ctx, testUserID, Event{Kind: KindText})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnhandled, outcome)

	// The session survives: unbound is not stale.
	pos, err := mgr.GetState(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, Position("MARKER"), pos)
}

func TestDispatchKindRejected(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	called := false
	require.NoError(t, mgr.Register("P", func(context.Context, Event, Data) error {
		called = true
		return nil
	}, KindCallback))
	require.NoError(t, mgr.SetState(ctx, testUserID, "P", nil))

	d := NewDispatcher(mgr)
	outcome, err := d.Handle(ctx, testUserID, Event{Kind: KindVoice})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnhandled, outcome)
	assert.False(t, called)

	outcome, err = d.Handle(ctx, testUserID, Event{Kind: KindCallback})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHandled, outcome)
	assert.True(t, called)
}

func TestDispatchEmptyKindsAcceptEverything(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	count := 0
	require.NoError(t, mgr.Register("P", func(context.Context, Event, Data) error {
		count++
		return nil
	}))
	require.NoError(t, mgr.SetState(ctx, testUserID, "P", nil))

	d := NewDispatcher(mgr)
	for _, kind := range []Kind{KindText, KindVoice, KindPhoto, KindLocation, KindCallback} {
		outcome, err := d.Handle(ctx, testUserID, Event{Kind: kind})
		require.NoError(t, err)
		assert.Equal(t, OutcomeHandled, outcome)
	}
	assert.Equal(t, 5, count)
}

func TestDispatchStoreErrorPropagates(t *testing.T) {
	mgr := NewManager(failingStore{}, Options{})
	d := NewDispatcher(mgr)

	outcome, err := d.Handle(context.Background(), testUserID, Event{Kind: KindText})
	assert.Equal(t, OutcomeUnhandled, outcome)
	assert.ErrorIs(t, err, errStoreDown, "a store failure must never read as no session")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "handled", OutcomeHandled.String())
	assert.Equal(t, "no_session", OutcomeNoSession.String())
	assert.Equal(t, "stale", OutcomeStale.String())
	assert.Equal(t, "unhandled", OutcomeUnhandled.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
