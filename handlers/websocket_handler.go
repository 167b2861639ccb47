package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/starkspartacus/ecompetition-sub002/realtime"
	"github.com/starkspartacus/ecompetition-sub002/services"
)

type WebSocketHandler struct {
	hub                *realtime.Hub
	competitionService services.CompetitionService
	upgrader           websocket.Upgrader
	logger             *slog.Logger
}

// NewWebSocketHandler accepts connections from allowedOrigins; a "*" entry allows any origin.
func NewWebSocketHandler(hub *realtime.Hub, cs services.CompetitionService, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:                hub,
		competitionService: cs,
		logger:             logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// ServeWs godoc
// @Summary Live status and participation events of a competition
// @Tags realtime
// @Param competitionID path string true "Competition ID"
// @Success 101
// @Failure 404 {object} map[string]string
// @Router /ws/competitions/{competitionID} [get]
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if _, err := h.competitionService.GetCompetition(r.Context(), competitionID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn("websocket upgrade failed",
			slog.String("competition_id", competitionID.String()),
			slog.Any("error", err))
		return
	}

	room := realtime.RoomForCompetition(competitionID)
	h.hub.Serve(conn, room)
	h.logger.Debug("websocket client joined", slog.String("room", room))
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
