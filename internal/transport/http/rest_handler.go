package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"classroom-live-service/internal/app"
	"classroom-live-service/internal/domain"
)

// RESTHandler serves the room-creation and history endpoints. Credential
// issuance lives outside this service; the bearer token is consumed as an
// opaque account identity.
type RESTHandler struct {
	coordinator *app.Coordinator
}

func NewRESTHandler(coordinator *app.Coordinator) *RESTHandler {
	return &RESTHandler{coordinator: coordinator}
}

type createRoomRequest struct {
	RoomID      string `json:"roomId"`
	CreatorName string `json:"creatorName"`
}

type createRoomResponse struct {
	RoomID     string `json:"roomId"`
	CreatorKey string `json:"creatorKey"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type historyResponse struct {
	Sessions []domain.SessionHistory `json:"sessions"`
}

// CreateRoom handles POST /api/rooms. Returns the room id and the creator
// capability key used to prove ownership out-of-band.
func (h *RESTHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "METHOD"})
		return
	}
	userID, ok := bearerIdentity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "UNAUTH"})
		return
	}
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "BAD_BODY"})
		return
	}
	room, err := h.coordinator.CreateRoom(r.Context(), req.RoomID, req.CreatorName, userID)
	if errors.Is(err, domain.ErrRoomExists) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "ROOM_EXISTS"})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("create room")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL"})
		return
	}
	writeJSON(w, http.StatusOK, createRoomResponse{RoomID: room.ID, CreatorKey: room.CreatorKey})
}

// History handles GET /api/history?keys=k1,k2 for room creators. Without
// keys the endpoint returns an empty list.
func (h *RESTHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "METHOD"})
		return
	}
	userID, ok := bearerIdentity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "UNAUTH"})
		return
	}
	keys := splitKeys(r.URL.Query().Get("keys"))
	if len(keys) == 0 {
		writeJSON(w, http.StatusOK, historyResponse{Sessions: []domain.SessionHistory{}})
		return
	}
	sessions, err := h.coordinator.History(r.Context(), userID, keys)
	if err != nil {
		log.Error().Err(err).Msg("fetch history")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL"})
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Sessions: sessions})
}

// bearerIdentity extracts the opaque authenticated account identity from
// the Authorization header. Token verification happens upstream.
func bearerIdentity(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func splitKeys(raw string) []string {
	keys := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if k := strings.TrimSpace(part); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
