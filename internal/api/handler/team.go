package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Rrens/collab-hub/internal/api/middleware"
	"github.com/Rrens/collab-hub/internal/api/response"
	"github.com/Rrens/collab-hub/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// TeamHandler serves read endpoints over a team's realtime state
type TeamHandler struct {
	teamService *service.TeamService
}

// NewTeamHandler creates a new team handler
func NewTeamHandler(teamService *service.TeamService) *TeamHandler {
	return &TeamHandler{teamService: teamService}
}

// Presence lists the presence of every known team member
func (h *TeamHandler) Presence(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	teamID, ok := middleware.GetTeamID(r.Context())
	if !ok {
		response.BadRequest(w, "missing team ID")
		return
	}

	presence, err := h.teamService.ListPresence(r.Context(), userID, teamID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.OK(w, presence)
}

// Operations lists recorded operations of a resource after a sequence number
func (h *TeamHandler) Operations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	teamID, ok := middleware.GetTeamID(r.Context())
	if !ok {
		response.BadRequest(w, "missing team ID")
		return
	}

	q := service.OperationsQuery{
		ResourceType: chi.URLParam(r, "resourceType"),
		ResourceID:   chi.URLParam(r, "resourceID"),
	}
	if v := r.URL.Query().Get("after"); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.BadRequest(w, "invalid after")
			return
		}
		q.After = after
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "invalid limit")
			return
		}
		q.Limit = limit
	}

	ops, err := h.teamService.ListOperations(r.Context(), userID, teamID, q)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.OK(w, map[string]any{
		"operations": ops,
		"after":      q.After,
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrAccessDenied):
		response.Forbidden(w, "access denied")
	case errors.Is(err, service.ErrInvalidInput):
		response.BadRequest(w, err.Error())
	default:
		log.Error().Err(err).Msg("Team request failed")
		response.InternalError(w, "internal error")
	}
}
