package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/rollcall/internal/app/admission"
	"github.com/okian/rollcall/internal/domain/model"
)

type createEventRequest struct {
	GuildID             string         `json:"guild_id"`
	ChannelID           string         `json:"channel_id"`
	MessageID           string         `json:"message_id"`
	ThreadID            string         `json:"thread_id"`
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	StartTime           time.Time      `json:"start_time"`
	DurationMinutes     *int           `json:"duration_minutes"`
	MaxParticipants     *int           `json:"max_participants"`
	RoleLimits          map[string]int `json:"role_limits"`
	AllowedRoleIDs      []string       `json:"allowed_role_ids"`
	BenchOverflow       bool           `json:"bench_overflow"`
	RequireApproval     bool           `json:"require_approval"`
	SignupDeadlineHours *int           `json:"signup_deadline_hours"`
}

func (r *createEventRequest) toModel() model.Event {
	return model.Event{
		GuildID:             r.GuildID,
		ChannelID:           r.ChannelID,
		MessageID:           r.MessageID,
		ThreadID:            r.ThreadID,
		Title:               r.Title,
		Description:         r.Description,
		StartTime:           r.StartTime,
		Duration:            r.DurationMinutes,
		MaxParticipants:     r.MaxParticipants,
		RoleLimits:          r.RoleLimits,
		AllowedRoleIDs:      r.AllowedRoleIDs,
		BenchOverflow:       r.BenchOverflow,
		RequireApproval:     r.RequireApproval,
		SignupDeadlineHours: r.SignupDeadlineHours,
	}
}

type patchEventRequest struct {
	Title               *string        `json:"title"`
	Description         *string        `json:"description"`
	StartTime           *time.Time     `json:"start_time"`
	DurationMinutes     *int           `json:"duration_minutes"`
	MaxParticipants     *int           `json:"max_participants"`
	RoleLimits          map[string]int `json:"role_limits"`
	AllowedRoleIDs      []string       `json:"allowed_role_ids"`
	BenchOverflow       *bool          `json:"bench_overflow"`
	RequireApproval     *bool          `json:"require_approval"`
	SignupDeadlineHours *int           `json:"signup_deadline_hours"`
	Clear               []string       `json:"clear"`
}

func (r *patchEventRequest) toPatch() (admission.EventPatch, error) {
	p := admission.EventPatch{
		Title:               r.Title,
		Description:         r.Description,
		StartTime:           r.StartTime,
		Duration:            r.DurationMinutes,
		MaxParticipants:     r.MaxParticipants,
		RoleLimits:          r.RoleLimits,
		AllowedRoleIDs:      r.AllowedRoleIDs,
		BenchOverflow:       r.BenchOverflow,
		RequireApproval:     r.RequireApproval,
		SignupDeadlineHours: r.SignupDeadlineHours,
	}
	for _, field := range r.Clear {
		switch field {
		case "duration_minutes":
			p.ClearDuration = true
		case "max_participants":
			p.ClearMaxParticipants = true
		case "signup_deadline_hours":
			p.ClearSignupDeadline = true
		default:
			return admission.EventPatch{}, fmt.Errorf("%w: cannot clear %q", ErrBadRequest, field)
		}
	}
	return p, nil
}

type eventResponse struct {
	ID                  string         `json:"id"`
	GuildID             string         `json:"guild_id"`
	ChannelID           string         `json:"channel_id,omitempty"`
	MessageID           string         `json:"message_id,omitempty"`
	ThreadID            string         `json:"thread_id,omitempty"`
	CreatorID           string         `json:"creator_id,omitempty"`
	Title               string         `json:"title"`
	Description         string         `json:"description,omitempty"`
	StartTime           time.Time      `json:"start_time"`
	DurationMinutes     *int           `json:"duration_minutes,omitempty"`
	MaxParticipants     *int           `json:"max_participants,omitempty"`
	RoleLimits          map[string]int `json:"role_limits,omitempty"`
	AllowedRoleIDs      []string       `json:"allowed_role_ids,omitempty"`
	BenchOverflow       bool           `json:"bench_overflow"`
	RequireApproval     bool           `json:"require_approval"`
	SignupDeadlineHours *int           `json:"signup_deadline_hours,omitempty"`
	Status              string         `json:"status"`
	ArchivedAt          *time.Time     `json:"archived_at,omitempty"`
	DeletedAt           *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func toEventResponse(ev model.Event) eventResponse {
	return eventResponse{
		ID:                  ev.ID,
		GuildID:             ev.GuildID,
		ChannelID:           ev.ChannelID,
		MessageID:           ev.MessageID,
		ThreadID:            ev.ThreadID,
		CreatorID:           ev.CreatorID,
		Title:               ev.Title,
		Description:         ev.Description,
		StartTime:           ev.StartTime,
		DurationMinutes:     ev.Duration,
		MaxParticipants:     ev.MaxParticipants,
		RoleLimits:          ev.RoleLimits,
		AllowedRoleIDs:      ev.AllowedRoleIDs,
		BenchOverflow:       ev.BenchOverflow,
		RequireApproval:     ev.RequireApproval,
		SignupDeadlineHours: ev.SignupDeadlineHours,
		Status:              string(ev.Status),
		ArchivedAt:          ev.ArchivedAt,
		DeletedAt:           ev.DeletedAt,
		CreatedAt:           ev.CreatedAt,
		UpdatedAt:           ev.UpdatedAt,
	}
}

type participantResponse struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     string    `json:"role,omitempty"`
	Spec     string    `json:"spec,omitempty"`
	Status   string    `json:"status"`
	Position *int      `json:"position,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
	Overflow bool      `json:"overflow,omitempty"`
}

func toParticipants(ps []model.Participant) []participantResponse {
	out := make([]participantResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, participantResponse{
			UserID:   p.UserID,
			Username: p.Username,
			Role:     p.Role,
			Spec:     p.Spec,
			Status:   string(p.Status),
			Position: p.Position,
			JoinedAt: p.JoinedAt,
			Overflow: p.Overflow,
		})
	}
	return out
}

type resultResponse struct {
	Outcome  string                `json:"outcome"`
	Reason   string                `json:"reason,omitempty"`
	Position int                   `json:"position,omitempty"`
	UserID   string                `json:"user_id,omitempty"`
	Promoted []participantResponse `json:"promoted,omitempty"`
}

func toResultResponse(r admission.Result) resultResponse {
	resp := resultResponse{
		Outcome:  string(r.Outcome),
		Reason:   string(r.Reason),
		Position: r.Position,
		UserID:   r.UserID,
	}
	if len(r.Promoted) > 0 {
		resp.Promoted = toParticipants(r.Promoted)
	}
	return resp
}

type joinRequest struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Spec     string   `json:"spec"`
	RoleIDs  []string `json:"role_ids"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

func (r userRequest) validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: missing user_id", ErrBadRequest)
	}
	return nil
}

type batchRequest struct {
	UserIDs []string `json:"user_ids"`
}

func (r batchRequest) validate() error {
	if len(r.UserIDs) == 0 {
		return fmt.Errorf("%w: user_ids must not be empty", ErrBadRequest)
	}
	return nil
}

type roleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Spec   string `json:"spec"`
}

type guildSettingsRequest struct {
	MessageRetentionSeconds int64  `json:"message_retention_seconds"`
	LogRetentionSeconds     int64  `json:"log_retention_seconds"`
	ArchiveChannelID        string `json:"archive_channel_id"`
	DeleteThreads           bool   `json:"delete_threads"`
}

func (r guildSettingsRequest) validate() error {
	if r.MessageRetentionSeconds < 0 || r.LogRetentionSeconds < 0 {
		return fmt.Errorf("%w: retention must not be negative", ErrBadRequest)
	}
	return nil
}

type guildSettingsResponse struct {
	GuildID                 string    `json:"guild_id"`
	MessageRetentionSeconds int64     `json:"message_retention_seconds"`
	LogRetentionSeconds     int64     `json:"log_retention_seconds"`
	ArchiveChannelID        string    `json:"archive_channel_id,omitempty"`
	DeleteThreads           bool      `json:"delete_threads"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func toGuildSettingsResponse(gs model.GuildSettings) guildSettingsResponse {
	return guildSettingsResponse{
		GuildID:                 gs.GuildID,
		MessageRetentionSeconds: int64(gs.MessageRetention / time.Second),
		LogRetentionSeconds:     int64(gs.LogRetention / time.Second),
		ArchiveChannelID:        gs.ArchiveChannelID,
		DeleteThreads:           gs.DeleteThreads,
		UpdatedAt:               gs.UpdatedAt,
	}
}

var errMissingID = errors.New("missing path id")
