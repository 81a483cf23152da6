package models

import "time"

type TriggerKind int

const (
	TriggerReminder TriggerKind = iota + 1
	TriggerDownload
	TriggerUpload
)

type TriggerPayload struct {
	Kind       TriggerKind `json:"kind"`
	AccountID  string      `json:"account_id,omitempty"`
	ReminderID string      `json:"reminder_id,omitempty"`
}

// TriggerDefinition is a named wake-up. Exactly one of FireAt (one-shot)
// or Every (periodic) is set.
type TriggerDefinition struct {
	Name         string         `json:"name"`
	FireAt       time.Time      `json:"fire_at"`
	Every        time.Duration  `json:"every"`
	Payload      TriggerPayload `json:"payload"`
	RegisteredAt time.Time      `json:"registered_at"`
}

func (d *TriggerDefinition) Periodic() bool {
	return d.Every > 0
}
