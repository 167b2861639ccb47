package handlers

import (
	"errors"
	"net/http"

	"github.com/starkspartacus/ecompetition-sub002/services"
)

const maxPhotoBytes = 5 << 20

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(us services.UserService) *UserHandler {
	return &UserHandler{userService: us}
}

// GetMe godoc
// @Summary Current user profile
// @Tags users
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Security BearerAuth
// @Router /users/me [get]
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	user, err := h.userService.GetUser(r.Context(), actor, actor.UserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetUser godoc
// @Summary User profile (self or admin)
// @Tags users
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /users/{userID} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(r.Context(), actor, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateUser godoc
// @Summary Update profile fields
// @Description Only firstName, lastName, phoneNumber, country, address, city, commune, bio, category and photo are applied; other keys are ignored.
// @Tags users
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Param input body map[string]interface{} true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Phone already in use"
// @Security BearerAuth
// @Router /users/{userID} [patch]
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var fields map[string]interface{}
	if err := readJSON(w, r, &fields); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.userService.UpdateUser(r.Context(), actor, userID, fields)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UploadPhoto godoc
// @Summary Upload a profile photo
// @Tags users
// @Accept multipart/form-data
// @Produce json
// @Param userID path string true "User ID"
// @Param photo formData file true "JPEG, PNG or WebP image"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /users/{userID}/photo [post]
func (h *UserHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		badRequestResponse(w, r, errors.New("photo must be sent as multipart form data of at most 5 MB"))
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		badRequestResponse(w, r, errors.New("content type required"))
		return
	}

	user, err := h.userService.UploadPhoto(r.Context(), actor, userID, contentType, file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
