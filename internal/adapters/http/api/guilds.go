package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/app/admission"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
)

// GuildsHandler serves per-guild lifecycle settings.
type GuildsHandler struct {
	store  GuildSettings
	logger logger.Logger
	now    func() time.Time
}

// NewGuildsHandler creates a new guild settings handler.
func NewGuildsHandler(store GuildSettings, l logger.Logger) *GuildsHandler {
	return &GuildsHandler{store: store, logger: l, now: time.Now}
}

func guildID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "guildID")
	if id == "" {
		return "", fmt.Errorf("%w: %v", ErrBadRequest, errMissingID)
	}
	return id, nil
}

// HandleGet handles GET /guilds/{guildID}/settings.
func (h *GuildsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_guild_settings"
	id, err := guildID(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	gs, err := h.store.GetGuildSettings(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		err = admission.WrapKind(op, admission.ErrNotFound, err)
	}
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toGuildSettingsResponse(gs))
}

// HandlePut handles PUT /guilds/{guildID}/settings.
func (h *GuildsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_guild_settings"
	id, err := guildID(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	var req guildSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	if err := req.validate(); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	gs := model.GuildSettings{
		GuildID:          id,
		MessageRetention: time.Duration(req.MessageRetentionSeconds) * time.Second,
		LogRetention:     time.Duration(req.LogRetentionSeconds) * time.Second,
		ArchiveChannelID: req.ArchiveChannelID,
		DeleteThreads:    req.DeleteThreads,
		UpdatedAt:        h.now(),
	}
	if err := h.store.UpsertGuildSettings(r.Context(), gs); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toGuildSettingsResponse(gs))
}
