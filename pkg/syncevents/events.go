// Package syncevents defines the events consumed and published by the mail
// sync worker.
package syncevents

import "time"

// Event types
const (
	// EventAccountCreated starts tracking a new account from a baseline
	EventAccountCreated = "account.created"
	// EventSyncRequested asks for an incremental sync of an account
	EventSyncRequested = "mail.syncRequested"
	// EventChanged reports a completed sync that moved the state
	EventChanged = "mail.changed"
	// EventResyncRequired reports that incremental sync is impossible and
	// the account's cache must be rebuilt from a full fetch
	EventResyncRequired = "mail.resyncRequired"
)

// EventPayload is the envelope of every event on the sync queues
type EventPayload struct {
	EventType  string         `json:"eventType"`      // Event type identifier (e.g., "mail.changed")
	OccurredAt string         `json:"occurredAt"`     // ISO 8601 timestamp when the event occurred
	AccountID  string         `json:"accountId"`      // Account ID related to this event
	Data       map[string]any `json:"data,omitempty"` // Event-specific data (optional)
}

// Entities returns the entity types named in data.entities, or nil when
// the event does not restrict them
func (e EventPayload) Entities() []string {
	raw, ok := e.Data["entities"].([]any)
	if !ok {
		return nil
	}
	entities := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			entities = append(entities, s)
		}
	}
	return entities
}

// NewChanged builds a mail.changed event
func NewChanged(accountID, entity, oldState, newState string, created, updated, destroyed int, at time.Time) EventPayload {
	return EventPayload{
		EventType:  EventChanged,
		OccurredAt: at.UTC().Format(time.RFC3339),
		AccountID:  accountID,
		Data: map[string]any{
			"entity":    entity,
			"oldState":  oldState,
			"newState":  newState,
			"created":   created,
			"updated":   updated,
			"destroyed": destroyed,
		},
	}
}

// NewResyncRequired builds a mail.resyncRequired event
func NewResyncRequired(accountID, entity, reason string, at time.Time) EventPayload {
	return EventPayload{
		EventType:  EventResyncRequired,
		OccurredAt: at.UTC().Format(time.RFC3339),
		AccountID:  accountID,
		Data: map[string]any{
			"entity": entity,
			"reason": reason,
		},
	}
}
