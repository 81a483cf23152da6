package metrics

import "time"

// NoopSink is used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) DerivationCompleted(duration time.Duration, records int, err error) {}
func (n *NoopSink) ReminderFired()                                                     {}
func (n *NoopSink) ReminderAction(action string)                                       {}
func (n *NoopSink) TriggersRegistered(count int)                                       {}
func (n *NoopSink) TriggersCanceled(count int)                                         {}
func (n *NoopSink) SyncCompleted(state string, duration time.Duration)                 {}
