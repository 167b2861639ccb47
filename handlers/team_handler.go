package handlers

import (
	"net/http"

	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/services"
)

type TeamHandler struct {
	rosterService services.RosterService
}

func NewTeamHandler(rs services.RosterService) *TeamHandler {
	return &TeamHandler{rosterService: rs}
}

// GetTeam godoc
// @Summary Team with its roster
// @Tags teams
// @Produce json
// @Param teamID path string true "Team ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /teams/{teamID} [get]
func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	team, err := h.rosterService.GetTeam(r.Context(), teamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"team": team}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListTeamPlayers godoc
// @Summary Players of a team
// @Tags teams
// @Produce json
// @Param teamID path string true "Team ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /teams/{teamID}/players [get]
func (h *TeamHandler) ListTeamPlayers(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	players, err := h.rosterService.ListTeamPlayers(r.Context(), teamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if players == nil {
		players = []*models.Player{}
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"players": players}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AddPlayer godoc
// @Summary Add a player to the roster (captain only)
// @Tags teams
// @Accept json
// @Produce json
// @Param teamID path string true "Team ID"
// @Param input body models.PlayerInput true "Player"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /teams/{teamID}/players [post]
func (h *TeamHandler) AddPlayer(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var input models.PlayerInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	player, err := h.rosterService.AddPlayer(r.Context(), actor, teamID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"player": player}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdatePlayer godoc
// @Summary Update a player (captain only)
// @Tags teams
// @Accept json
// @Produce json
// @Param playerID path string true "Player ID"
// @Param input body services.UpdatePlayerInput true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /players/{playerID} [patch]
func (h *TeamHandler) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	playerID, err := getIDFromURL(r, "playerID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var input services.UpdatePlayerInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	player, err := h.rosterService.UpdatePlayer(r.Context(), actor, playerID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"player": player}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DeletePlayer godoc
// @Summary Remove a player (captain only)
// @Tags teams
// @Param playerID path string true "Player ID"
// @Success 204
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /players/{playerID} [delete]
func (h *TeamHandler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	playerID, err := getIDFromURL(r, "playerID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	if err := h.rosterService.DeletePlayer(r.Context(), actor, playerID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
