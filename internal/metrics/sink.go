package metrics

import "time"

// Sink records service metrics.
// All methods are fire-and-forget: implementations must not block or propagate errors.
type Sink interface {
	// Reminder derivation
	DerivationCompleted(duration time.Duration, records int, err error)

	// Notification dispatch
	ReminderFired()
	ReminderAction(action string)

	// Deferred triggers
	TriggersRegistered(n int)
	TriggersCanceled(n int)

	// Reconciliation
	SyncCompleted(state string, duration time.Duration)
}
