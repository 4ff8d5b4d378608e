package flows

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/finbot/app/finance"
	"github.com/m3rciful/finbot/core/session"
)

const navTestUserID int64 = 42

// callbackCtx is the minimal telebot context a callback handler touches.
// Everything else comes from the embedded interface and stays unused.
type callbackCtx struct {
	tele.Context
	sender *tele.User
	data   string
	stash  map[string]any
	sent   []string
}

func (c *callbackCtx) Sender() *tele.User  { return c.sender }
func (c *callbackCtx) Chat() *tele.Chat    { return nil }
func (c *callbackCtx) Update() tele.Update { return tele.Update{} }

func (c *callbackCtx) Callback() *tele.Callback {
	return &tele.Callback{Data: cbNav + "|" + c.data}
}

func (c *callbackCtx) Get(key string) any { return c.stash[key] }

func (c *callbackCtx) Set(key string, v any) {
	if c.stash == nil {
		c.stash = map[string]any{}
	}
	c.stash[key] = v
}

func (c *callbackCtx) Send(what any, _ ...any) error {
	if s, ok := what.(string); ok {
		c.sent = append(c.sent, s)
	}
	return nil
}

func newNavTestFlows(t *testing.T) (*Flows, *session.Manager) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)

	api, err := finance.NewClient(finance.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	mgr := session.NewManager(session.NewMemoryStore(), session.Options{})
	return New(mgr, api), mgr
}

func TestHandleNavBadTokenExpiresFlow(t *testing.T) {
	f, mgr := newNavTestFlows(t)
	ctx := context.Background()

	// A user mid-flow taps a nav button whose scope no longer resolves.
	require.NoError(t, mgr.SetState(ctx, navTestUserID, PositionTransactionConfirm, nil))

	c := &callbackCtx{sender: &tele.User{ID: navTestUserID}, data: "b:deadbeef:20251207"}
	require.NoError(t, f.HandleNav(c))

	pos, err := mgr.GetState(ctx, navTestUserID)
	require.NoError(t, err)
	assert.Equal(t, session.PositionNone, pos, "a dead nav button must drop the live flow")
	require.NotEmpty(t, c.sent)
	assert.Equal(t, msgOutdated, c.sent[len(c.sent)-1])
}

func TestHandleNavMalformedTokenExpiresFlow(t *testing.T) {
	f, mgr := newNavTestFlows(t)
	ctx := context.Background()

	require.NoError(t, mgr.SetState(ctx, navTestUserID, PositionAccountName, nil))

	c := &callbackCtx{sender: &tele.User{ID: navTestUserID}, data: "not-a-token"}
	require.NoError(t, f.HandleNav(c))

	pos, err := mgr.GetState(ctx, navTestUserID)
	require.NoError(t, err)
	assert.Equal(t, session.PositionNone, pos)
}
