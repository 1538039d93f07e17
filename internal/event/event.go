// Package event defines the domain events that trigger notification delivery
// and the publisher producers use to emit them without blocking on
// persistence or fan-out.
package event

// Kind discriminates the notification event variants.
type Kind string

// Built-in notification kinds. Custom kinds are free-form strings carried
// through unchanged.
const (
	KindAppointment   Kind = "APPOINTMENT"
	KindProjectUpdate Kind = "PROJECT_UPDATE"
	KindTaskAssigned  Kind = "TASK_ASSIGNED"
	KindSystem        Kind = "SYSTEM"
)

// NotificationEvent is an immutable occurrence produced by a business module.
// It is the trigger for a notification, not the persisted record: the
// dispatcher consumes it exactly once and it is never stored.
type NotificationEvent struct {
	RecipientID string
	Title       string
	Message     string
	Kind        Kind
}
