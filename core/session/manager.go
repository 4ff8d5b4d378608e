package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/finbot/core/logger"
)

// Position identifies which flow step a user currently occupies.
// The catalogue of positions belongs to the application's flow definitions;
// the engine treats tags opaquely.
type Position string

// PositionNone indicates no active flow.
const PositionNone Position = ""

// Data is the open-ended working payload a flow carries between steps.
// The engine stamps CreatedAtKey on every SetState; everything else belongs
// to the flow that wrote it.
type Data map[string]any

// CreatedAtKey is the reserved payload key holding the RFC3339 write timestamp
// used for staleness checks.
const CreatedAtKey = "created_at"

// Handler processes one inbound event for a user sitting at a position.
type Handler func(ctx context.Context, ev Event, data Data) error

// Binding pairs a handler with the event kinds it accepts.
// An empty Kinds list accepts every kind.
type Binding struct {
	Handler Handler
	Kinds   []Kind
}

func (b Binding) accepts(k Kind) bool {
	if len(b.Kinds) == 0 {
		return true
	}
	for _, kind := range b.Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

const (
	defaultStoreTTL   = 24 * time.Hour
	defaultStaleAfter = 5 * time.Minute
)

// Options tunes Manager behaviour. Zero values select the defaults.
type Options struct {
	// StoreTTL bounds how long an entry survives in the store (default 24h).
	StoreTTL time.Duration
	// StaleAfter is how long an unfinished flow stays resumable (default 5m).
	StaleAfter time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager owns per-user sessions on top of a Store and the process-wide
// registry binding positions to step handlers. The registry is populated at
// startup and read-only afterwards.
type Manager struct {
	store      Store
	ttl        time.Duration
	staleAfter time.Duration
	now        func() time.Time
	bindings   map[Position]Binding
}

// NewManager constructs a Manager over the given store.
func NewManager(store Store, opts Options) *Manager {
	if opts.StoreTTL <= 0 {
		opts.StoreTTL = defaultStoreTTL
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:      store,
		ttl:        opts.StoreTTL,
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
		bindings:   make(map[Position]Binding),
	}
}

// Register binds a handler to a position. Binding the same position twice is
// a configuration bug and fails immediately instead of being silently kept.
func (m *Manager) Register(p Position, h Handler, kinds ...Kind) error {
	if p == PositionNone {
		return errors.New("session: cannot register empty position")
	}
	if h == nil {
		return fmt.Errorf("session: nil handler for position %q", p)
	}
	if _, exists := m.bindings[p]; exists {
		return fmt.Errorf("session: handler already registered for position %q", p)
	}
	m.bindings[p] = Binding{Handler: h, Kinds: kinds}
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func (m *Manager) MustRegister(p Position, h Handler, kinds ...Kind) {
	if err := m.Register(p, h, kinds...); err != nil {
		panic(err)
	}
}

func (m *Manager) binding(p Position) (Binding, bool) {
	b, ok := m.bindings[p]
	return b, ok
}

// record is the single serialized value stored per user. Position and payload
// live under one key so they can never be observed half-updated.
type record struct {
	Position Position `json:"position"`
	Data     Data     `json:"data"`
}

// SetState replaces the user's session with a new position and payload,
// stamping the payload's creation time and refreshing the store TTL.
func (m *Manager) SetState(ctx context.Context, userID int64, p Position, data Data) error {
	payload := make(Data, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload[CreatedAtKey] = m.now().UTC().Format(time.RFC3339Nano)

	if err := m.write(ctx, userID, record{Position: p, Data: payload}); err != nil {
		return err
	}
	logger.Debug(ctx, "session", "state.set",
		slog.Int64("user_id", userID),
		slog.String("position", string(p)),
	)
	return nil
}

// GetState returns the user's current position, or PositionNone when no
// session exists. Store failures propagate; they never read as "no session".
func (m *Manager) GetState(ctx context.Context, userID int64) (Position, error) {
	rec, err := m.load(ctx, userID)
	if err != nil {
		return PositionNone, err
	}
	if rec == nil {
		return PositionNone, nil
	}
	return rec.Position, nil
}

// GetData returns the user's working payload, or an empty payload when no
// session exists.
func (m *Manager) GetData(ctx context.Context, userID int64) (Data, error) {
	rec, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return Data{}, nil
	}
	return rec.Data, nil
}

// UpdateData shallowly merges partial into the existing payload, preserving
// the original creation timestamp and refreshing the store TTL. When no
// session exists the call is a no-op: a payload must never appear without its
// position.
func (m *Manager) UpdateData(ctx context.Context, userID int64, partial Data) error {
	rec, err := m.load(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	for k, v := range partial {
		if k == CreatedAtKey {
			continue
		}
		rec.Data[k] = v
	}
	return m.write(ctx, userID, *rec)
}

// ClearState deletes the user's session. Clearing an already-clear session is
// not an error.
func (m *Manager) ClearState(ctx context.Context, userID int64) error {
	if err := m.store.Delete(ctx, sessionKey(userID)); err != nil {
		return err
	}
	logger.Debug(ctx, "session", "state.clear", slog.Int64("user_id", userID))
	return nil
}

// IsStale reports whether the payload's creation time exceeds the staleness
// window. A missing or unreadable timestamp counts as not stale, so payloads
// written before the timestamp existed keep working.
func (m *Manager) IsStale(data Data) bool {
	raw, ok := data[CreatedAtKey]
	if !ok {
		return false
	}
	var createdAt time.Time
	switch v := raw.(type) {
	case time.Time:
		createdAt = v
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return false
		}
		createdAt = parsed
	default:
		return false
	}
	return m.now().Sub(createdAt) > m.staleAfter
}

// StaleAfter exposes the configured staleness window.
func (m *Manager) StaleAfter() time.Duration {
	return m.staleAfter
}

func (m *Manager) write(ctx context.Context, userID int64, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: marshal session: %w", err)
	}
	return m.store.Put(ctx, sessionKey(userID), raw, m.ttl)
}

func (m *Manager) load(ctx context.Context, userID int64) (*record, error) {
	raw, err := m.store.Get(ctx, sessionKey(userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("session: unmarshal session: %w", err)
	}
	if rec.Data == nil {
		rec.Data = Data{}
	}
	return &rec, nil
}
