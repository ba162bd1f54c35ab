package model

import "time"

// ParticipantStatus is a participant's admission state.
type ParticipantStatus string

// Admission states.
const (
	StatusPending   ParticipantStatus = "pending"
	StatusConfirmed ParticipantStatus = "confirmed"
	StatusWaitlist  ParticipantStatus = "waitlist"
)

// Valid reports whether s is a known status.
func (s ParticipantStatus) Valid() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusWaitlist
}

// Participant is a user's signup for one event. Unique per (EventID, UserID).
type Participant struct {
	EventID  string
	UserID   string
	Username string
	Role     string
	Spec     string
	Status   ParticipantStatus

	// Position is the display index in the waitlist; non-nil iff Status is waitlist.
	Position *int
	// JoinedAt is the ordering source of truth for the waitlist and approval queue.
	JoinedAt time.Time
	// Overflow marks bench entries admitted by the eligibility override.
	Overflow bool
}

// PositionValue returns the waitlist position or zero.
func (p Participant) PositionValue() int {
	if p.Position == nil {
		return 0
	}
	return *p.Position
}
