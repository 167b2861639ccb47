package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/services"
)

type ParticipationHandler struct {
	participationService services.ParticipationService
}

func NewParticipationHandler(ps services.ParticipationService) *ParticipationHandler {
	return &ParticipationHandler{participationService: ps}
}

type createParticipationRequest struct {
	TeamData json.RawMessage `json:"teamData,omitempty"`
}

// CreateParticipation godoc
// @Summary Register for a competition
// @Description An optional teamData payload with a name and players registers a team captained by the caller.
// @Tags participations
// @Accept json
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Param input body createParticipationRequest false "Team registration"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Registration closed, competition full or invalid team data"
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Already registered"
// @Security BearerAuth
// @Router /competitions/{competitionID}/participations [post]
func (h *ParticipationHandler) CreateParticipation(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var input createParticipationRequest
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}

	participation, err := h.participationService.CreateParticipation(r.Context(), actor, competitionID, input.TeamData)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"participation": participation}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CheckParticipation godoc
// @Summary Whether a user holds an active participation
// @Description Checks the caller. Only admins may name another user through userId.
// @Tags participations
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Param userId query string false "User ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /competitions/{competitionID}/participations/check [get]
func (h *ParticipationHandler) CheckParticipation(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	userID := actor.UserID.String()
	if requested := r.URL.Query().Get("userId"); requested != "" && actor.IsAdmin() {
		userID = requested
	}

	participating := h.participationService.CheckParticipation(r.Context(), chi.URLParam(r, "competitionID"), userID)
	if err := writeJSON(w, http.StatusOK, jsonResponse{"participating": participating}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListCompetitionParticipations godoc
// @Summary Participations of a competition (organizer or admin)
// @Tags participations
// @Produce json
// @Param competitionID path string true "Competition ID"
// @Param status query string false "pending, approved or rejected"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /competitions/{competitionID}/participations [get]
func (h *ParticipationHandler) ListCompetitionParticipations(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var status *models.ParticipationStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := models.ParticipationStatus(strings.ToLower(s))
		status = &st
	}

	participations, err := h.participationService.ListCompetitionParticipations(r.Context(), actor, competitionID, status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeParticipations(w, r, participations)
}

// ListMyParticipations godoc
// @Summary The caller's participations
// @Tags participations
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /participations/me [get]
func (h *ParticipationHandler) ListMyParticipations(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	participations, err := h.participationService.ListMyParticipations(r.Context(), actor)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeParticipations(w, r, participations)
}

// GetParticipation godoc
// @Summary Participation details
// @Tags participations
// @Produce json
// @Param participationID path string true "Participation ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /participations/{participationID} [get]
func (h *ParticipationHandler) GetParticipation(w http.ResponseWriter, r *http.Request) {
	participationID, err := getIDFromURL(r, "participationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	participation, err := h.participationService.GetParticipation(r.Context(), actor, participationID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"participation": participation}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ReviewParticipation godoc
// @Summary Approve or reject a participation
// @Tags participations
// @Accept json
// @Produce json
// @Param participationID path string true "Participation ID"
// @Param input body object true "{\"status\": \"approved\"}"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Another active participation exists"
// @Security BearerAuth
// @Router /participations/{participationID}/status [patch]
func (h *ParticipationHandler) ReviewParticipation(w http.ResponseWriter, r *http.Request) {
	participationID, err := getIDFromURL(r, "participationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var input struct {
		Status models.ParticipationStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participation, err := h.participationService.ReviewParticipation(r.Context(), actor, participationID, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"participation": participation}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// WithdrawParticipation godoc
// @Summary Withdraw the caller's own participation
// @Tags participations
// @Param participationID path string true "Participation ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /participations/{participationID} [delete]
func (h *ParticipationHandler) WithdrawParticipation(w http.ResponseWriter, r *http.Request) {
	participationID, err := getIDFromURL(r, "participationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	if err := h.participationService.WithdrawParticipation(r.Context(), actor, participationID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeParticipations(w http.ResponseWriter, r *http.Request, participations []*models.Participation) {
	if participations == nil {
		participations = []*models.Participation{}
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"participations": participations}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
