package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/services"
)

type CompetitionHandler struct {
	competitionService   services.CompetitionService
	participationService services.ParticipationService
}

func NewCompetitionHandler(cs services.CompetitionService, ps services.ParticipationService) *CompetitionHandler {
	return &CompetitionHandler{
		competitionService:   cs,
		participationService: ps,
	}
}

// CreateCompetition godoc
// @Summary Create a competition in DRAFT
// @Tags competitions
// @Accept json
// @Produce json
// @Param input body services.CreateCompetitionInput true "Competition data"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 422 {object} map[string]interface{} "Missing required fields"
// @Security BearerAuth
// @Router /competitions [post]
func (h *CompetitionHandler) CreateCompetition(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var input services.CreateCompetitionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	competition, err := h.competitionService.CreateCompetition(r.Context(), actor, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"competition": competition}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListCompetitions godoc
// @Summary List competitions
// @Tags competitions
// @Produce json
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Param organizerId query string false "Organizer filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /competitions [get]
func (h *CompetitionHandler) ListCompetitions(w http.ResponseWriter, r *http.Request) {
	filter, err := competitionFilterFromQuery(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	competitions, err := h.competitionService.ListCompetitions(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if competitions == nil {
		competitions = []*models.Competition{}
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"competitions": competitions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetCompetition godoc
// @Summary Competition details with participation stats
// @Tags competitions
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /competitions/{competitionID} [get]
func (h *CompetitionHandler) GetCompetition(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	competition, err := h.competitionService.GetCompetition(r.Context(), competitionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"competition": competition}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByJoinCode godoc
// @Summary Find a competition by its join code
// @Tags competitions
// @Produce json
// @Param joinCode path string true "Join code"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /competitions/code/{joinCode} [get]
func (h *CompetitionHandler) GetByJoinCode(w http.ResponseWriter, r *http.Request) {
	competition, err := h.competitionService.GetByJoinCode(r.Context(), chi.URLParam(r, "joinCode"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"competition": competition}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateCompetition godoc
// @Summary Update competition details
// @Description Organizer and status cannot be changed here.
// @Tags competitions
// @Accept json
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Param input body services.UpdateCompetitionInput true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /competitions/{competitionID} [patch]
func (h *CompetitionHandler) UpdateCompetition(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var input services.UpdateCompetitionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	competition, err := h.competitionService.UpdateCompetition(r.Context(), actor, competitionID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"competition": competition}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateRules godoc
// @Summary Replace the competition rules document
// @Tags competitions
// @Accept json
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Param rules body object true "Rules JSON"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /competitions/{competitionID}/rules [put]
func (h *CompetitionHandler) UpdateRules(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var rules json.RawMessage
	if err := readJSON(w, r, &rules); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	competition, err := h.competitionService.UpdateRules(r.Context(), actor, competitionID, rules)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"competition": competition}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DeleteCompetition godoc
// @Summary Delete a DRAFT or CANCELLED competition
// @Tags competitions
// @Param competitionID path string true "Competition ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /competitions/{competitionID} [delete]
func (h *CompetitionHandler) DeleteCompetition(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	if err := h.competitionService.DeleteCompetition(r.Context(), actor, competitionID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Publish godoc
// @Summary Open registration for a DRAFT competition
// @Tags competitions
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /competitions/{competitionID}/publish [post]
func (h *CompetitionHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.statusAction(w, r, h.competitionService.Publish)
}

// Cancel godoc
// @Summary Cancel a competition
// @Tags competitions
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /competitions/{competitionID}/cancel [post]
func (h *CompetitionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.statusAction(w, r, h.competitionService.Cancel)
}

// OverrideStatus godoc
// @Summary Set a competition status manually
// @Tags competitions
// @Accept json
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Param input body object true "{\"status\": \"IN_PROGRESS\"}"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /competitions/{competitionID}/status [put]
func (h *CompetitionHandler) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Status models.CompetitionStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	h.statusAction(w, r, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Competition, error) {
		return h.competitionService.OverrideStatus(ctx, actor, id, input.Status)
	})
}

// ListTransitions godoc
// @Summary Status change history
// @Tags competitions
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /competitions/{competitionID}/transitions [get]
func (h *CompetitionHandler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	transitions, err := h.competitionService.ListTransitions(r.Context(), competitionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if transitions == nil {
		transitions = []*models.StatusTransition{}
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"transitions": transitions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetStats godoc
// @Summary Participation counters
// @Description Unknown or malformed identifiers yield zero counters.
// @Tags competitions
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Success 200 {object} map[string]interface{}
// @Router /competitions/{competitionID}/stats [get]
func (h *CompetitionHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.participationService.GetCompetitionStats(r.Context(), chi.URLParam(r, "competitionID"))
	if err := writeJSON(w, http.StatusOK, jsonResponse{"stats": stats}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *CompetitionHandler) statusAction(w http.ResponseWriter, r *http.Request, action func(context.Context, models.Actor, uuid.UUID) (*models.Competition, error)) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	competition, err := action(r.Context(), actor, competitionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"competition": competition}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func competitionFilterFromQuery(r *http.Request) (models.CompetitionFilter, error) {
	q := r.URL.Query()
	var filter models.CompetitionFilter

	if s := q.Get("status"); s != "" {
		status := models.CompetitionStatus(strings.ToUpper(s))
		if !status.Valid() {
			return filter, errors.New("invalid status filter")
		}
		filter.Status = &status
	}
	if c := q.Get("category"); c != "" {
		filter.Category = &c
	}
	if o := q.Get("organizerId"); o != "" {
		id, err := uuid.Parse(o)
		if err != nil {
			return filter, errors.New("invalid organizerId filter")
		}
		filter.OrganizerID = &id
	}

	var err error
	if filter.Limit, err = queryInt(q.Get("limit"), 20); err != nil || filter.Limit < 1 || filter.Limit > 100 {
		return filter, errors.New("limit must be between 1 and 100")
	}
	if filter.Offset, err = queryInt(q.Get("offset"), 0); err != nil || filter.Offset < 0 {
		return filter, errors.New("offset must not be negative")
	}
	return filter, nil
}

func queryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
