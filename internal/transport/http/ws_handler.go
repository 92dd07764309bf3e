package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"classroom-live-service/internal/app"
	"classroom-live-service/internal/domain"
)

type WSHandler struct {
	coordinator *app.Coordinator
	hub         *Hub
	upgrader    websocket.Upgrader
}

func NewWSHandler(coordinator *app.Coordinator, hub *Hub) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		hub:         hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	RoomID     string `json:"roomId"`
	Name       string `json:"name"`
	CreatorKey string `json:"creatorKey"`
}

type signalPayload struct {
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

type quizCreatePayload struct {
	RoomID          string   `json:"roomId"`
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	CorrectIndex    *int     `json:"correctIndex"`
	CreatedBy       string   `json:"createdBy"`
	DurationSeconds int      `json:"durationSeconds"`
}

type quizAnswerPayload struct {
	QuizID      string `json:"quizId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AnswerIndex int    `json:"answerIndex"`
}

type sessionEndPayload struct {
	RoomID string `json:"roomId"`
}

// ServeWS upgrades the request and runs the connection's event loop. Each
// connection gets a transient identity valid until the socket closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer sock.Close()

	c := &conn{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan []byte, 32),
	}
	h.hub.register(c)
	go c.writePump()

	currentRoom := ""
	displayName := domain.GuestName

	defer func() {
		h.hub.unregister(c.id)
		h.coordinator.Disconnect(r.Context(), currentRoom, c.id)
	}()

	for {
		var inbound inboundMessage
		if err := sock.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case domain.EventJoin:
			var p joinPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil || p.RoomID == "" {
				continue
			}
			if p.Name != "" {
				displayName = p.Name
			}
			currentRoom = p.RoomID
			h.coordinator.Join(r.Context(), p.RoomID, c.id, p.Name, p.CreatorKey)

		case domain.EventSignal:
			var p signalPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil || p.To == "" {
				continue
			}
			h.coordinator.Signal(c.id, p.To, p.Data)

		case domain.EventChat:
			var text string
			if err := json.Unmarshal(inbound.Payload, &text); err != nil {
				continue
			}
			h.coordinator.Chat(currentRoom, c.id, displayName, text)

		case domain.EventQuizCreate:
			var p quizCreatePayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil || p.RoomID == "" {
				continue
			}
			_ = h.coordinator.CreateQuiz(r.Context(), c.id, app.QuizDraft{
				RoomID:          p.RoomID,
				Question:        p.Question,
				Options:         p.Options,
				CorrectIndex:    p.CorrectIndex,
				CreatedBy:       p.CreatedBy,
				DurationSeconds: p.DurationSeconds,
			})

		case domain.EventQuizAnswer:
			var p quizAnswerPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				continue
			}
			_ = h.coordinator.SubmitAnswer(r.Context(), p.QuizID, p.UserID, p.DisplayName, p.AnswerIndex)

		case domain.EventSessionEnd:
			var p sessionEndPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil || p.RoomID == "" {
				continue
			}
			_ = h.coordinator.EndSession(r.Context(), p.RoomID, c.id)

		default:
			// unknown events are ignored
		}
	}
}
