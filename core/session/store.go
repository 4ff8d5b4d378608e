package session

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrNotFound is returned by Store.Get when no live entry exists for the key.
// Absence is a meaningful state (no active flow) and must stay distinguishable
// from infrastructure failures, which are returned as ordinary wrapped errors.
var ErrNotFound = errors.New("session: not found")

// Store is the minimal durable key/value contract the engine needs.
// All operations are safe for concurrent use across different keys; keys are
// only ever derived from a single user id, so no cross-user locking exists.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

const keyPrefix = "fsm:v1:"

// sessionKey namespaces a user id into the store key space.
func sessionKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}
