package handlers

import (
	"net/http"
	"time"

	"github.com/starkspartacus/ecompetition-sub002/middleware"
	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/services"
)

type AuthHandler struct {
	userService services.UserService
	jwtSecret   []byte
	tokenTTL    time.Duration
}

func NewAuthHandler(userService services.UserService, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
	}
}

// Register godoc
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param input body services.RegisterUserInput true "Account data"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string "Email or phone already in use"
// @Failure 422 {object} map[string]interface{} "Missing required fields"
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterUserInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.userService.RegisterUser(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Login godoc
// @Summary Exchange credentials for a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param input body models.Credentials true "Credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input models.Credentials
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.userService.Login(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	token, err := middleware.GenerateToken(h.jwtSecret, user, h.tokenTTL)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	response := jsonResponse{
		"token":     token,
		"expiresIn": int(h.tokenTTL.Seconds()),
		"user":      user,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
