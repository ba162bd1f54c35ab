package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/rollcall/internal/app/admission"
	"github.com/okian/rollcall/internal/domain/view"
	"github.com/okian/rollcall/pkg/logger"
)

// EventsHandler serves event management and admission commands. Soft
// admission outcomes are 200 responses carrying outcome and reason.
type EventsHandler struct {
	adm    Admission
	logger logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(adm Admission, l logger.Logger) *EventsHandler {
	return &EventsHandler{adm: adm, logger: l}
}

func eventID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "eventID")
	if id == "" {
		return "", fmt.Errorf("%w: %v", ErrBadRequest, errMissingID)
	}
	return id, nil
}

// HandleCreate handles POST /events.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_event"
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	ev, err := h.adm.CreateEvent(r.Context(), req.toModel(), actorFrom(r))
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(ev))
}

// HandleGet handles GET /events/{eventID}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	id, err := eventID(r)
	if err == nil {
		ev, gerr := h.adm.GetEvent(r.Context(), id)
		if gerr == nil {
			writeJSON(w, http.StatusOK, toEventResponse(ev))
			return
		}
		err = gerr
	}
	fail(r.Context(), h.logger, w, op, err)
}

// HandleEdit handles PATCH /events/{eventID}.
func (h *EventsHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	const op = "api.edit_event"
	id, err := eventID(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	var req patchEventRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	ev, err := h.adm.EditEvent(r.Context(), id, patch, actorFrom(r))
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

// HandleCancel handles POST /events/{eventID}/cancel.
func (h *EventsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	const op = "api.cancel_event"
	id, err := eventID(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	ev, err := h.adm.CancelEvent(r.Context(), id, actorFrom(r))
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

type viewResponse struct {
	View view.EventView `json:"view"`
	Text string         `json:"text"`
}

// HandleView handles GET /events/{eventID}/view.
func (h *EventsHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	const op = "api.view"
	id, err := eventID(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	v, err := h.adm.View(r.Context(), id)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{View: v, Text: view.Render(v)})
}

// HandleParticipants handles GET /events/{eventID}/participants.
func (h *EventsHandler) HandleParticipants(w http.ResponseWriter, r *http.Request) {
	const op = "api.participants"
	id, err := eventID(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	ps, err := h.adm.ListParticipants(r.Context(), id)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipants(ps))
}

// HandleJoin handles POST /events/{eventID}/join.
func (h *EventsHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	const op = "api.join"
	id, err := eventID(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	if err := (userRequest{UserID: req.UserID}).validate(); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	res, err := h.adm.Join(r.Context(), admission.JoinRequest{
		EventID:  id,
		UserID:   req.UserID,
		Username: req.Username,
		Role:     req.Role,
		Spec:     req.Spec,
		RoleIDs:  req.RoleIDs,
	})
	h.respond(w, r, op, res, err)
}

// HandleLeave handles POST /events/{eventID}/leave.
func (h *EventsHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	const op = "api.leave"
	id, req, err := h.userCommand(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	res, err := h.adm.Leave(r.Context(), id, req.UserID)
	h.respond(w, r, op, res, err)
}

// HandlePromote handles POST /events/{eventID}/promote.
func (h *EventsHandler) HandlePromote(w http.ResponseWriter, r *http.Request) {
	const op = "api.promote"
	id, req, err := h.userCommand(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	res, err := h.adm.Promote(r.Context(), id, req.UserID, actorFrom(r))
	h.respond(w, r, op, res, err)
}

// HandlePromoteNext handles POST /events/{eventID}/promote-next.
func (h *EventsHandler) HandlePromoteNext(w http.ResponseWriter, r *http.Request) {
	const op = "api.promote_next"
	id, err := eventID(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	res, err := h.adm.PromoteNext(r.Context(), id, actorFrom(r))
	h.respond(w, r, op, res, err)
}

// HandleRole handles POST /events/{eventID}/role.
func (h *EventsHandler) HandleRole(w http.ResponseWriter, r *http.Request) {
	const op = "api.role"
	id, err := eventID(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	if err := (userRequest{UserID: req.UserID}).validate(); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	res, err := h.adm.UpdateRole(r.Context(), id, req.UserID, req.Role, req.Spec)
	h.respond(w, r, op, res, err)
}

// HandleApprove handles POST /events/{eventID}/approve.
func (h *EventsHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, "api.approve", h.adm.Approve)
}

// HandleReject handles POST /events/{eventID}/reject.
func (h *EventsHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, "api.reject", h.adm.Reject)
}

type batchFunc func(ctx context.Context, eventID string, userIDs []string, actor admission.Actor) (admission.BatchResult, error)

func (h *EventsHandler) batch(w http.ResponseWriter, r *http.Request, op string, fn batchFunc) {
	id, err := eventID(r)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	if err := req.validate(); err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	br, err := fn(r.Context(), id, req.UserIDs, actorFrom(r))
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, br)
}

func (h *EventsHandler) userCommand(r *http.Request) (string, userRequest, error) {
	id, err := eventID(r)
	if err != nil {
		return "", userRequest{}, err
	}
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		return "", userRequest{}, err
	}
	if err := req.validate(); err != nil {
		return "", userRequest{}, err
	}
	return id, req, nil
}

func (h *EventsHandler) respond(w http.ResponseWriter, r *http.Request, op string, res admission.Result, err error) {
	if err != nil {
		fail(r.Context(), h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res))
}
