package model

import "time"

// NotificationKind discriminates the work carried by a Notification.
type NotificationKind string

const (
	// NotifyRender asks the sink to re-render the public event message.
	NotifyRender NotificationKind = "render"
	// NotifyAudit carries an audit entry to persist and publish.
	NotifyAudit NotificationKind = "audit"
)

// Notification is the unit flowing through the asynchronous notification queue.
type Notification struct {
	Kind       NotificationKind
	EventID    string
	Audit      *AuditEntry
	EnqueuedAt time.Time
}
