package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Liberatex/Rotation/internal/services"
	"github.com/Liberatex/Rotation/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer for the REST API; the websocket
	// endpoint authenticates with a JWT instead.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub            *ws.Hub
	authService    *services.AuthService
	sessionService *services.SessionService
}

func NewWSHandler(hub *ws.Hub, authService *services.AuthService, sessionService *services.SessionService) *WSHandler {
	return &WSHandler{hub: hub, authService: authService, sessionService: sessionService}
}

// clientMessage is the envelope clients send over the socket.
type clientMessage struct {
	Type      string          `json:"type"`
	SessionID uint            `json:"session_id"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// HandleWebSocket upgrades the connection and drives its read loop. Auth is a
// JWT in the "token" query parameter or the Authorization header; browsers
// cannot set headers on websocket dials, so the query form is the common one.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	userID, err := h.authService.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or missing token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("ws: upgrade failed")
		return
	}

	client := ws.NewClient(conn, userID)
	go client.WritePump()
	defer func() {
		h.hub.RemoveClient(client)
		client.Close()
	}()

	for {
		data, err := client.Read()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.Send(ws.Event{Type: ws.EventError, Data: ws.ErrorEvent{Message: "malformed message"}})
			continue
		}
		h.dispatch(client, msg)
	}
}

func (h *WSHandler) dispatch(client *ws.Client, msg clientMessage) {
	switch msg.Type {
	case "join_session":
		ok, err := h.sessionService.IsParticipant(client.UserID, msg.SessionID)
		if err != nil || !ok {
			client.Send(ws.Event{Type: ws.EventError, Data: ws.ErrorEvent{Message: "not a participant of this session"}})
			return
		}
		h.hub.Join(msg.SessionID, client)
		client.Send(ws.Event{
			Type: ws.EventJoinedSession,
			Data: ws.SessionEvent{SessionID: msg.SessionID},
		})

	case "leave_session":
		h.hub.Leave(msg.SessionID, client)
		client.Send(ws.Event{
			Type: ws.EventLeftSession,
			Data: ws.SessionEvent{SessionID: msg.SessionID},
		})

	case "timer_alert":
		// Client-side timers announce threshold crossings to the rest of the
		// group; the sender already rendered its own alert.
		if !h.joined(client, msg.SessionID) {
			client.Send(ws.Event{Type: ws.EventError, Data: ws.ErrorEvent{Message: "join the session first"}})
			return
		}
		var alert ws.TimerAlertEvent
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &alert); err != nil {
				client.Send(ws.Event{Type: ws.EventError, Data: ws.ErrorEvent{Message: "malformed timer alert"}})
				return
			}
		}
		alert.SessionID = msg.SessionID
		h.hub.BroadcastExcept(msg.SessionID, client, ws.Event{Type: ws.EventTimerAlert, Data: alert})

	default:
		client.Send(ws.Event{Type: ws.EventError, Data: ws.ErrorEvent{Message: "unknown message type"}})
	}
}

func (h *WSHandler) joined(client *ws.Client, sessionID uint) bool {
	for _, id := range h.hub.Sessions(client) {
		if id == sessionID {
			return true
		}
	}
	return false
}
