package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/societynet/societychat/internal/chat"
	"github.com/societynet/societychat/internal/common/errors"
	"github.com/societynet/societychat/internal/events"
	"github.com/societynet/societychat/internal/identity"
	"github.com/societynet/societychat/internal/moderation"
	"github.com/societynet/societychat/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	maxMsgSize = 64 * 1024
)

// Gateway terminates WebSocket connections, authenticates them against the
// identity collaborator and dispatches decoded client events to the chat
// coordinator.
type Gateway struct {
	coordinator *chat.Service
	hub         *events.Hub
	idm         *identity.Manager
	validate    *validator.Validate
	metrics     *observability.Metrics
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

func New(coordinator *chat.Service, hub *events.Hub, idm *identity.Manager, metrics *observability.Metrics, logger *zap.Logger) *Gateway {
	return &Gateway{
		coordinator: coordinator,
		hub:         hub,
		idm:         idm,
		validate:    validator.New(),
		metrics:     metrics,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (g *Gateway) Register(router *mux.Router) {
	router.HandleFunc("/ws", g.HandleWS)
}

// wsConn adapts a websocket connection to the hub's writer interface. Both
// methods are only ever called from the session's write pump.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteEvent(ev events.Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = identity.FromBearer(r.Header.Get("Authorization"))
	}

	ident, err := g.idm.Verify(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.New().String()
	session := g.hub.AddSession(sessionID, ident.UserID.String(), &wsConn{conn: conn})
	if session == nil {
		_ = conn.Close()
		return
	}

	if g.metrics != nil {
		g.metrics.SessionOpened()
	}

	g.readPump(r.Context(), conn, sessionID, ident)

	g.hub.RemoveSession(sessionID)
	_ = conn.Close()

	if g.metrics != nil {
		g.metrics.SessionClosed()
	}
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	Room string `json:"room" validate:"required"`
}

type reactPayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	Emoji     string `json:"emoji" validate:"required"`
}

type deletePayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	Scope     string `json:"scope" validate:"required,oneof=me everyone"`
}

type mutePayload struct {
	UserID string `json:"userId" validate:"required,uuid"`
}

type settingsPayload struct {
	Room string `json:"room" validate:"required"`
	moderation.Update
}

func (g *Gateway) readPump(ctx context.Context, conn *websocket.Conn, sessionID string, ident identity.Identity) {
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("websocket read error",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.reject(sessionID, env.Type, errors.Invalid("malformed event"))
			continue
		}

		g.dispatch(ctx, sessionID, ident, env)
	}
}

func (g *Gateway) dispatch(ctx context.Context, sessionID string, ident identity.Identity, env envelope) {
	var err error
	switch env.Type {
	case events.Join:
		var p joinPayload
		if err = g.decode(env.Payload, &p); err == nil {
			err = g.coordinator.Join(ctx, sessionID, ident, p.Room)
		}

	case events.Send:
		var p chat.SendRequest
		if err = g.decode(env.Payload, &p); err == nil {
			_, err = g.coordinator.Send(ctx, ident, p)
		}

	case events.React:
		var p reactPayload
		if err = g.decode(env.Payload, &p); err == nil {
			err = g.coordinator.React(ctx, ident, uuid.MustParse(p.MessageID), p.Emoji)
		}

	case events.Delete:
		var p deletePayload
		if err = g.decode(env.Payload, &p); err == nil {
			err = g.coordinator.Delete(ctx, sessionID, ident, uuid.MustParse(p.MessageID), p.Scope)
		}

	case events.UpdateSettings:
		var p settingsPayload
		if err = g.decode(env.Payload, &p); err == nil {
			err = g.coordinator.UpdateSettings(ctx, ident, p.Room, p.Update)
		}

	case events.ToggleMute:
		var p mutePayload
		if err = g.decode(env.Payload, &p); err == nil {
			err = g.coordinator.ToggleMute(ctx, sessionID, ident, uuid.MustParse(p.UserID))
		}

	default:
		err = errors.Invalid("unknown event type")
	}

	outcome := "ok"
	if err != nil {
		outcome = string(errors.CodeOf(err))
		g.reject(sessionID, env.Type, err)
	}
	if g.metrics != nil {
		g.metrics.ObserveEvent(env.Type, outcome)
	}
}

func (g *Gateway) decode(payload json.RawMessage, dest any) error {
	if len(payload) == 0 {
		return errors.Invalid("missing payload")
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return errors.Invalid("malformed payload")
	}
	if err := g.validate.Struct(dest); err != nil {
		return errors.Invalid(err.Error())
	}
	return nil
}

// Policy and not-found conditions are converted to a rejection event for the
// requesting session only; nothing propagates to other sessions.
func (g *Gateway) reject(sessionID, eventType string, err error) {
	g.hub.SendToSession(sessionID, events.Event{
		Type: events.OperationRejected,
		Payload: events.Rejection{
			Reason: string(errors.CodeOf(err)),
			Detail: err.Error(),
		},
	})

	g.logger.Debug("operation rejected",
		zap.String("session_id", sessionID),
		zap.String("event_type", eventType),
		zap.String("reason", string(errors.CodeOf(err))),
	)
}
