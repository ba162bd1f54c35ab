package loadtest

import (
	"errors"
	"fmt"
	"sort"
)

// Verify checks a roster against the event's capacity rules and returns
// every violation found.
func Verify(maxParticipants *int, roles map[string]int, roster []Participant) error {
	var errs []error

	seen := make(map[string]bool, len(roster))
	confirmed := 0
	perRole := make(map[string]int)
	var waitlist []Participant
	for _, p := range roster {
		if seen[p.UserID] {
			errs = append(errs, fmt.Errorf("user %s appears twice", p.UserID))
		}
		seen[p.UserID] = true

		switch p.Status {
		case "confirmed":
			confirmed++
			perRole[p.Role]++
		case "waitlist":
			if !p.Overflow {
				waitlist = append(waitlist, p)
			}
		}
	}

	if maxParticipants != nil && confirmed > *maxParticipants {
		errs = append(errs, fmt.Errorf("%d confirmed exceeds capacity %d", confirmed, *maxParticipants))
	}
	for role, limit := range roles {
		if perRole[role] > limit {
			errs = append(errs, fmt.Errorf("role %s has %d confirmed, limit %d", role, perRole[role], limit))
		}
	}

	sort.SliceStable(waitlist, func(i, j int) bool { return waitlist[i].JoinedAt.Before(waitlist[j].JoinedAt) })
	for i, p := range waitlist {
		if p.Position == nil {
			errs = append(errs, fmt.Errorf("waitlisted user %s has no position", p.UserID))
			continue
		}
		if *p.Position != i+1 {
			errs = append(errs, fmt.Errorf("waitlisted user %s at position %d, want %d", p.UserID, *p.Position, i+1))
		}
	}

	// Without role limits any open seat must have been backfilled.
	if len(roles) == 0 && maxParticipants != nil && len(waitlist) > 0 && confirmed < *maxParticipants {
		errs = append(errs, fmt.Errorf("%d seats idle with %d waiting", *maxParticipants-confirmed, len(waitlist)))
	}

	return errors.Join(errs...)
}
