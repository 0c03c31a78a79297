package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "tableside/internal/errors"
	"tableside/internal/ratelimit"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

const (
	ActionJoinStaff = "join_staff"
	ActionJoinTable = "join_table"
	ActionLeave     = "leave"
)

type inboundMessage struct {
	Action  string `json:"action"`
	Token   string `json:"token,omitempty"`
	TableID int64  `json:"tableId,omitempty"`
	Group   string `json:"group,omitempty"`
}

type controlMessage struct {
	Type    string `json:"type"`
	Group   string `json:"group,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// WebSocketHandler upgrades HTTP connections and lets each connection join
// notification groups with explicit join messages.
type WebSocketHandler struct {
	bus      *Bus
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWebSocketHandler(bus *Bus, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return &WebSocketHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if allowAll || origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		logger: logger.Named("ws"),
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.bus.NewSubscriber(ratelimit.ClientIP(r))
	logger := h.logger.With(zap.String("subscriberId", sub.ID()), zap.String("remoteAddr", sub.RemoteAddr()))
	logger.Debug("subscriber connected")

	go h.writePump(conn, sub, logger)
	h.readPump(conn, sub, logger)
}

func (h *WebSocketHandler) writePump(conn *websocket.Conn, sub *Subscriber, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) readPump(conn *websocket.Conn, sub *Subscriber, logger *zap.Logger) {
	defer func() {
		h.bus.Disconnect(sub)
		conn.Close()
		logger.Debug("subscriber disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("unexpected close", zap.Error(err))
			}
			return
		}

		var in inboundMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			h.reply(sub, controlMessage{Type: "error", Code: "BAD_MESSAGE", Message: "message must be valid JSON"})
			continue
		}

		h.handle(sub, in, logger)
	}
}

func (h *WebSocketHandler) handle(sub *Subscriber, in inboundMessage, logger *zap.Logger) {
	switch in.Action {
	case ActionJoinStaff:
		if err := h.bus.JoinStaff(sub, in.Token); err != nil {
			logger.Info("staff join rejected", zap.Error(err))
			h.replyError(sub, GroupStaff, err)
			return
		}
		h.reply(sub, controlMessage{Type: "joined", Group: GroupStaff})
	case ActionJoinTable:
		group := TableGroup(in.TableID)
		if err := h.bus.JoinTable(sub, in.TableID, in.Token); err != nil {
			logger.Info("table join rejected", zap.Int64("tableId", in.TableID), zap.Error(err))
			h.replyError(sub, group, err)
			return
		}
		h.reply(sub, controlMessage{Type: "joined", Group: group})
	case ActionLeave:
		h.bus.Leave(sub, in.Group)
		h.reply(sub, controlMessage{Type: "left", Group: in.Group})
	default:
		h.reply(sub, controlMessage{Type: "error", Code: "UNKNOWN_ACTION", Message: "unknown action"})
	}
}

func (h *WebSocketHandler) replyError(sub *Subscriber, group string, err error) {
	msg := controlMessage{Type: "error", Group: group, Code: "JOIN_REJECTED", Message: err.Error()}
	switch {
	case errors.Is(err, ErrRateLimited):
		msg.Code = "RATE_LIMITED"
	default:
		if _, ok := apperrors.IsUnauthorizedError(err); ok {
			msg.Code = "UNAUTHORIZED"
		} else if _, ok := apperrors.IsForbiddenError(err); ok {
			msg.Code = "FORBIDDEN"
		} else if _, ok := apperrors.IsValidationError(err); ok {
			msg.Code = "VALIDATION_ERROR"
		}
	}
	h.reply(sub, msg)
}

func (h *WebSocketHandler) reply(sub *Subscriber, msg controlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if !h.bus.Send(sub, data) {
		h.logger.Debug("control message dropped", zap.String("subscriberId", sub.ID()), zap.String("type", msg.Type))
	}
}
