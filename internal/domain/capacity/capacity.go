// Package capacity evaluates whether an event or one of its roles has a free
// confirmed seat. Every function here is pure: it only inspects the snapshot
// it is given.
package capacity

import "github.com/okian/rollcall/internal/domain/model"

// Verdict is the outcome of a combined capacity check.
type Verdict int

// Verdicts.
const (
	Room Verdict = iota
	EventFull
	RoleFull
)

func (v Verdict) String() string {
	switch v {
	case Room:
		return "room"
	case EventFull:
		return "event_full"
	case RoleFull:
		return "role_full"
	}
	return "unknown"
}

// CountConfirmed returns the number of confirmed participants.
func CountConfirmed(participants []model.Participant) int {
	n := 0
	for i := range participants {
		if participants[i].Status == model.StatusConfirmed {
			n++
		}
	}
	return n
}

// CountConfirmedRole returns the number of confirmed participants holding role,
// ignoring excludeUserID.
func CountConfirmedRole(participants []model.Participant, role, excludeUserID string) int {
	n := 0
	for i := range participants {
		p := &participants[i]
		if p.Status != model.StatusConfirmed || p.Role != role {
			continue
		}
		if excludeUserID != "" && p.UserID == excludeUserID {
			continue
		}
		n++
	}
	return n
}

// HasRoomOverall reports whether another participant can be confirmed.
// A nil maxParticipants is unlimited.
func HasRoomOverall(participants []model.Participant, maxParticipants *int) bool {
	if maxParticipants == nil {
		return true
	}
	return CountConfirmed(participants) < *maxParticipants
}

// HasRoomForRole reports whether role has a free confirmed seat.
// An empty role or a role without a configured limit always has room.
func HasRoomForRole(participants []model.Participant, maxParticipants *int, limits model.RoleLimits, role string) bool {
	return HasRoomForRoleExcluding(participants, limits, role, "")
}

// HasRoomForRoleExcluding is HasRoomForRole with one user's seat left out of the
// count, used when that user is moving between roles.
func HasRoomForRoleExcluding(participants []model.Participant, limits model.RoleLimits, role, excludeUserID string) bool {
	limit, ok := limits.Limit(role)
	if !ok {
		return true
	}
	return CountConfirmedRole(participants, role, excludeUserID) < limit
}

// Admit combines the overall and role checks in the order admission applies them.
func Admit(participants []model.Participant, maxParticipants *int, limits model.RoleLimits, role string) Verdict {
	if !HasRoomOverall(participants, maxParticipants) {
		return EventFull
	}
	if role != "" && !HasRoomForRole(participants, maxParticipants, limits, role) {
		return RoleFull
	}
	return Room
}
