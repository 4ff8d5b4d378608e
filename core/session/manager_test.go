package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID int64 = 42

// fakeClock is a settable clock shared between a Manager and its store.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.now
	mgr := NewManager(store, Options{Now: clock.now})
	return mgr, store, clock
}

func TestSetStateRoundTrip(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.SetState(ctx, testUserID, "WAIT_NAME", Data{"draft": "x"}))

	pos, err := mgr.GetState(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, Position("WAIT_NAME"), pos)

	data, err := mgr.GetData(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, "x", data["draft"])
	assert.Contains(t, data, CreatedAtKey, "every write stamps a creation time")
}

func TestSetStateDoesNotMutateCallerData(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	in := Data{"k": "v"}
	require.NoError(t, mgr.SetState(ctx, testUserID, "P", in))
	assert.NotContains(t, in, CreatedAtKey)
}

func TestGetStateNoSession(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	pos, err := mgr.GetState(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, PositionNone, pos)

	data, err := mgr.GetData(ctx, testUserID)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestUpdateDataMergesAndKeepsTimestamp(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.SetState(ctx, testUserID, "P", Data{"a": "1", "b": "2"}))
	before, err := mgr.GetData(ctx, testUserID)
	require.NoError(t, err)

	clock.advance(time.Minute)
	require.NoError(t, mgr.UpdateData(ctx, testUserID, Data{"b": "3", "c": "4", CreatedAtKey: "forged"}))

	after, err := mgr.GetData(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, "1", after["a"])
	assert.Equal(t, "3", after["b"])
	assert.Equal(t, "4", after["c"])
	assert.Equal(t, before[CreatedAtKey], after[CreatedAtKey], "merge must not touch the creation timestamp")
}

func TestUpdateDataNoSessionIsNoop(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.UpdateData(ctx, testUserID, Data{"a": "1"}))

	pos, err := mgr.GetState(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, PositionNone, pos, "payload must never appear without a position")
}

func TestClearStateIdempotent(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.SetState(ctx, testUserID, "P", nil))
	require.NoError(t, mgr.ClearState(ctx, testUserID))
	require.NoError(t, mgr.ClearState(ctx, testUserID))

	pos, err := mgr.GetState(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, PositionNone, pos)
}

func TestStoreTTLExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.now
	mgr := NewManager(store, Options{StoreTTL: time.Hour, Now: clock.now})
	ctx := context.Background()

	require.NoError(t, mgr.SetState(ctx, testUserID, "P", nil))
	clock.advance(2 * time.Hour)

	pos, err := mgr.GetState(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, PositionNone, pos, "expired entries read as no session")
}

func TestIsStale(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.SetState(ctx, testUserID, "P", nil))
	data, err := mgr.GetData(ctx, testUserID)
	require.NoError(t, err)

	assert.False(t, mgr.IsStale(data))

	// The window boundary holds to the millisecond.
	clock.advance(mgr.StaleAfter() - time.Millisecond)
	assert.False(t, mgr.IsStale(data))
	clock.advance(2 * time.Millisecond)
	assert.True(t, mgr.IsStale(data))
}

func TestIsStaleToleratesMissingOrBadTimestamp(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	assert.False(t, mgr.IsStale(Data{}))
	assert.False(t, mgr.IsStale(Data{CreatedAtKey: "not-a-time"}))
	assert.False(t, mgr.IsStale(Data{CreatedAtKey: 12345}))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	h := func(context.Context, Event, Data) error { return nil }

	require.NoError(t, mgr.Register("P", h))
	err := mgr.Register("P", h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.Error(t, mgr.Register(PositionNone, h))
	assert.Error(t, mgr.Register("Q", nil))
}

func TestSessionKeyShape(t *testing.T) {
	assert.Equal(t, "fsm:v1:42", sessionKey(testUserID))
}
