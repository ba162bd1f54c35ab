// Package view builds the immutable view-model of an event's public message
// and renders it to text. Chat adapters receive the view, never the store.
package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/waitlist"
)

const noRole = "Unassigned"

// Member is one line of the roster.
type Member struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Spec     string `json:"spec,omitempty"`
	Position int    `json:"position,omitempty"`
	Overflow bool   `json:"overflow,omitempty"`
}

// RoleGroup is the confirmed roster for one role.
type RoleGroup struct {
	Role    string   `json:"role"`
	Limit   int      `json:"limit,omitempty"`
	Members []Member `json:"members"`
}

// EventView is everything needed to draw the event's public message.
type EventView struct {
	EventID         string      `json:"event_id"`
	GuildID         string      `json:"guild_id"`
	ChannelID       string      `json:"channel_id"`
	MessageID       string      `json:"message_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	StartTime       time.Time   `json:"start_time"`
	Status          string      `json:"status"`
	Confirmed       int         `json:"confirmed"`
	MaxParticipants int         `json:"max_participants,omitempty"`
	Roles           []RoleGroup `json:"roles"`
	Waitlist        []Member    `json:"waitlist"`
	Pending         []Member    `json:"pending"`
	SignupOpen      bool        `json:"signup_open"`
}

func member(p *model.Participant) Member {
	return Member{
		UserID:   p.UserID,
		Username: p.Username,
		Spec:     p.Spec,
		Position: p.PositionValue(),
		Overflow: p.Overflow,
	}
}

// Build assembles the view for ev from a participant snapshot taken at now.
func Build(ev *model.Event, participants []model.Participant, now time.Time) EventView {
	v := EventView{
		EventID:     ev.ID,
		GuildID:     ev.GuildID,
		ChannelID:   ev.ChannelID,
		MessageID:   ev.MessageID,
		Title:       ev.Title,
		Description: ev.Description,
		StartTime:   ev.StartTime,
		Status:      string(ev.Status),
		SignupOpen:  ev.Status.Open() && !ev.SignupClosed(now),
		Waitlist:    []Member{},
		Pending:     []Member{},
	}
	if ev.MaxParticipants != nil {
		v.MaxParticipants = *ev.MaxParticipants
	}

	groups := map[string]*RoleGroup{}
	for role, limit := range ev.RoleLimits {
		groups[role] = &RoleGroup{Role: role, Limit: limit, Members: []Member{}}
	}
	for _, p := range waitlist.Filter(participants, model.StatusConfirmed) {
		role := p.Role
		if role == "" {
			role = noRole
		}
		g, ok := groups[role]
		if !ok {
			g = &RoleGroup{Role: role, Members: []Member{}}
			groups[role] = g
		}
		g.Members = append(g.Members, member(&p))
		v.Confirmed++
	}
	for _, g := range groups {
		v.Roles = append(v.Roles, *g)
	}
	sort.Slice(v.Roles, func(i, j int) bool { return v.Roles[i].Role < v.Roles[j].Role })

	for _, p := range waitlist.Order(participants) {
		v.Waitlist = append(v.Waitlist, member(&p))
	}
	for _, p := range waitlist.Filter(participants, model.StatusPending) {
		v.Pending = append(v.Pending, member(&p))
	}
	return v
}

// Render draws v as plain text.
func Render(v EventView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s)\n", v.Title, v.Status)
	fmt.Fprintf(&b, "Starts: %s\n", v.StartTime.UTC().Format(time.RFC1123))
	if v.Description != "" {
		b.WriteString(v.Description)
		b.WriteString("\n")
	}
	if v.MaxParticipants > 0 {
		fmt.Fprintf(&b, "Confirmed: %d/%d\n", v.Confirmed, v.MaxParticipants)
	} else {
		fmt.Fprintf(&b, "Confirmed: %d\n", v.Confirmed)
	}
	for _, g := range v.Roles {
		if g.Limit > 0 {
			fmt.Fprintf(&b, "\n%s (%d/%d)\n", g.Role, len(g.Members), g.Limit)
		} else {
			fmt.Fprintf(&b, "\n%s (%d)\n", g.Role, len(g.Members))
		}
		for _, m := range g.Members {
			writeMember(&b, m)
		}
	}
	if len(v.Waitlist) > 0 {
		b.WriteString("\nWaitlist\n")
		for _, m := range v.Waitlist {
			fmt.Fprintf(&b, "#%d ", m.Position)
			writeMember(&b, m)
		}
	}
	if len(v.Pending) > 0 {
		b.WriteString("\nAwaiting approval\n")
		for _, m := range v.Pending {
			writeMember(&b, m)
		}
	}
	if !v.SignupOpen {
		b.WriteString("\nSignups closed\n")
	}
	return b.String()
}

func writeMember(b *strings.Builder, m Member) {
	b.WriteString(m.Username)
	if m.Spec != "" {
		fmt.Fprintf(b, " [%s]", m.Spec)
	}
	if m.Overflow {
		b.WriteString(" (bench)")
	}
	b.WriteString("\n")
}
