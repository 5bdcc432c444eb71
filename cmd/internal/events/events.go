// Package events publishes Paydesk's auth domain events to Kafka.
//
// Publishing is best-effort: auth flows never fail because the broker is
// down. When no brokers are configured, a no-op producer is used so callers
// need no conditionals.
package events

import "time"

// Event names. Consumers key off these; treat them as a wire contract.
const (
	UserRegistered    = "user.registered"
	UserVerified      = "user.verified"
	UserDeleted       = "user.deleted"
	PasswordChanged   = "user.password_changed"
	SessionRevokedAll = "session.revoked_all"
)

// Envelope is the wire shape of every published event.
type Envelope struct {
	Name       string         `json:"name"`
	OccurredAt time.Time      `json:"occurred_at"`
	UserID     string         `json:"user_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}
