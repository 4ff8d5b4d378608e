// Package session provides the durable conversation engine for Telegram bots:
// a key/value store abstraction with per-key expiration, a session manager that
// tracks which multi-step flow each user is inside, and a dispatch engine that
// routes inbound updates to the handler bound to the user's current position.
package session
