package admission

import "github.com/okian/rollcall/internal/domain/model"

// Outcome is the discriminant of Result.
type Outcome string

// Outcomes. Denied is the only soft failure; its Reason says why.
const (
	OutcomeConfirmed   Outcome = "confirmed"
	OutcomeWaitlisted  Outcome = "waitlisted"
	OutcomePending     Outcome = "pending"
	OutcomeLeft        Outcome = "left"
	OutcomePromoted    Outcome = "promoted"
	OutcomeRoleUpdated Outcome = "role_updated"
	OutcomeDenied      Outcome = "denied"
)

// Reason explains a denied outcome.
type Reason string

// Reasons.
const (
	ReasonAlreadyJoined  Reason = "already_joined"
	ReasonIneligible     Reason = "ineligible"
	ReasonNotParticipant Reason = "not_participant"
	ReasonNotPromotable  Reason = "not_promotable"
	ReasonEventFull      Reason = "event_full"
	ReasonRoleFull       Reason = "role_full"
	ReasonNoCandidate    Reason = "no_candidate"
)

// Result is returned by single-target admission operations.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Reason  Reason  `json:"reason,omitempty"`
	// Position is the waitlist position when Outcome is waitlisted.
	Position int    `json:"position,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	// Promoted lists participants confirmed as a consequence of the operation
	// (backfill after a leave or role change).
	Promoted []model.Participant `json:"promoted,omitempty"`
}

// OK reports whether the operation took effect.
func (r Result) OK() bool { return r.Outcome != OutcomeDenied }

func denied(reason Reason) Result {
	return Result{Outcome: OutcomeDenied, Reason: reason}
}

// BatchResult counts per-user outcomes of Approve and Reject.
type BatchResult struct {
	Approved   int `json:"approved"`
	Waitlisted int `json:"waitlisted"`
	Rejected   int `json:"rejected"`
	// Skipped counts targets that were not pending.
	Skipped int `json:"skipped"`
	// Failed counts targets whose write failed.
	Failed int `json:"failed"`
}
