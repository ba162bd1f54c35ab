// Package waitlist orders waitlisted participants and derives their display
// positions. Join time is authoritative; positions are a recomputed cache.
package waitlist

import (
	"sort"

	"github.com/okian/rollcall/internal/domain/model"
)

// less orders by join time, then user id so ties are deterministic.
func less(a, b *model.Participant) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.UserID < b.UserID
}

// Filter returns the participants with the given status, sorted by join order.
func Filter(ps []model.Participant, status model.ParticipantStatus) []model.Participant {
	out := make([]model.Participant, 0, len(ps))
	for i := range ps {
		if ps[i].Status == status {
			out = append(out, ps[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	return out
}

// Order returns the waitlist in FIFO order.
func Order(ps []model.Participant) []model.Participant {
	return Filter(ps, model.StatusWaitlist)
}

// Count returns the number of waitlisted participants.
func Count(ps []model.Participant) int {
	n := 0
	for i := range ps {
		if ps[i].Status == model.StatusWaitlist {
			n++
		}
	}
	return n
}

// NextPosition is the tail position for a new waitlist entry.
func NextPosition(ps []model.Participant) int {
	return Count(ps) + 1
}

// Renumber assigns positions 1..N in FIFO order and returns only the entries
// whose stored position differs, with the new position applied.
func Renumber(ps []model.Participant) []model.Participant {
	ordered := Order(ps)
	changed := make([]model.Participant, 0)
	for i := range ordered {
		want := i + 1
		if ordered[i].Position != nil && *ordered[i].Position == want {
			continue
		}
		p := ordered[i]
		p.Position = &want
		changed = append(changed, p)
	}
	return changed
}

// Contiguous reports whether waitlist positions form 1..N with no gaps or duplicates
// and no non-waitlist participant carries a position.
func Contiguous(ps []model.Participant) bool {
	n := Count(ps)
	seen := make([]bool, n+1)
	for i := range ps {
		p := &ps[i]
		if p.Status != model.StatusWaitlist {
			if p.Position != nil {
				return false
			}
			continue
		}
		if p.Position == nil {
			return false
		}
		pos := *p.Position
		if pos < 1 || pos > n || seen[pos] {
			return false
		}
		seen[pos] = true
	}
	return true
}
