package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/analysis"
	"mchatbot.io/support-backend/internal/core"
	"mchatbot.io/support-backend/internal/ratelimit"
	"mchatbot.io/support-backend/internal/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 16 << 10
	sendBufferSize = 16

	genericSocketError = "Sorry, I encountered an error processing your message. Please try again."
)

// Frame types.
const (
	FrameMessage         = "message"
	FrameTypingStatus    = "typing_status"
	FrameTypingIndicator = "typing_indicator"
	FrameSystemMessage   = "system_message"
	FrameError           = "error"
)

// InboundFrame is a client to server WebSocket message. Type defaults to
// "message" when absent.
type InboundFrame struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	IsTyping bool   `json:"is_typing"`
}

// OutboundFrame is a server to client WebSocket message. Only the fields
// relevant to Type are set.
type OutboundFrame struct {
	Type            string           `json:"type"`
	ID              string           `json:"id,omitempty"`
	Content         string           `json:"content,omitempty"`
	IsUser          *bool            `json:"is_user,omitempty"`
	IsTyping        *bool            `json:"is_typing,omitempty"`
	UserID          int64            `json:"user_id,omitempty"`
	Timestamp       *time.Time       `json:"timestamp,omitempty"`
	ResponseType    *response.Tier   `json:"response_type,omitempty"`
	EmotionAnalysis *analysis.Result `json:"emotion_analysis,omitempty"`
}

// Hub tracks one live connection per user.
type Hub struct {
	mu      sync.Mutex
	clients map[int64]*wsClient
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]*wsClient)}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[c.userID]; ok {
		old.closeSend()
	}
	h.clients[c.userID] = c
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
	}
	c.closeSend()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client. http.Server.Shutdown does not track
// hijacked connections.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.closeSend()
		delete(h.clients, id)
	}
}

type wsClient struct {
	userID int64
	conn   *websocket.Conn
	send   chan OutboundFrame

	once sync.Once
	done chan struct{}
}

func (c *wsClient) closeSend() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsClient) trySend(f OutboundFrame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// writePump owns all writes to the connection.
func (c *wsClient) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				logger.Debug("websocket write failed", zap.Int64("user_id", c.userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ChatSocket serves /ws/chat.
type ChatSocket struct {
	users    *core.UserService
	chat     *core.ChatService
	limiter  *ratelimit.Limiter
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
	now      func() time.Time
}

// NewChatSocket accepts upgrades from allowedOrigins. Requests without an
// Origin header, or whose origin matches the request host, are always
// accepted.
func NewChatSocket(users *core.UserService, chat *core.ChatService, limiter *ratelimit.Limiter, hub *Hub,
	allowedOrigins []string, logger *zap.Logger) *ChatSocket {
	s := &ChatSocket{users: users, chat: chat, limiter: limiter, hub: hub, logger: logger, now: time.Now}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowedOrigins, origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
	return s
}

func (s *ChatSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Authenticate(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Detail: "Could not validate credentials", ErrorCode: "INVALID_TOKEN", Timestamp: s.now().UTC(),
		})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Warn("websocket upgrade failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}

	c := &wsClient{
		userID: user.ID,
		conn:   conn,
		send:   make(chan OutboundFrame, sendBufferSize),
		done:   make(chan struct{}),
	}
	s.hub.register(c)
	s.logger.Info("websocket connected", zap.Int64("user_id", user.ID))
	go c.writePump(s.logger)

	now := s.now().UTC()
	c.trySend(OutboundFrame{Type: FrameSystemMessage, Content: "Connected to real-time chat!", Timestamp: &now})

	s.readLoop(r.Context(), c)
	s.hub.unregister(c)
	s.logger.Info("websocket disconnected", zap.Int64("user_id", user.ID))
}

func (s *ChatSocket) readLoop(ctx context.Context, c *wsClient) {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}
		var in InboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			c.trySend(OutboundFrame{Type: FrameError, Content: "Invalid message format."})
			continue
		}

		switch in.Type {
		case "", FrameMessage:
			s.handleMessage(ctx, c, in.Content)
		case FrameTypingStatus:
			// Echoed to the sender only.
			typing := in.IsTyping
			c.trySend(OutboundFrame{Type: FrameTypingStatus, UserID: c.userID, IsTyping: &typing})
		default:
			c.trySend(OutboundFrame{Type: FrameError, Content: "Unknown message type: " + in.Type})
		}
	}
}

func (s *ChatSocket) handleMessage(ctx context.Context, c *wsClient, content string) {
	key := ratelimit.SubjectKey(c.userID, "chat", "message")
	if d := s.limiter.Admit(ctx, key); !d.Allowed {
		c.trySend(OutboundFrame{Type: FrameError, Content: "Rate limit exceeded. Please wait before sending another message."})
		return
	}

	on, off := true, false
	c.trySend(OutboundFrame{Type: FrameTypingIndicator, IsTyping: &on})
	reply, err := s.chat.SendMessage(ctx, c.userID, content)
	c.trySend(OutboundFrame{Type: FrameTypingIndicator, IsTyping: &off})

	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			c.trySend(OutboundFrame{Type: FrameError, Content: verr.Message})
			return
		}
		s.logger.Error("websocket chat message failed", zap.Int64("user_id", c.userID), zap.Error(err))
		c.trySend(OutboundFrame{Type: FrameError, Content: genericSocketError})
		return
	}

	c.trySend(OutboundFrame{
		Type:            FrameMessage,
		ID:              reply.ID,
		Content:         reply.Content,
		IsUser:          &off,
		Timestamp:       &reply.Timestamp,
		ResponseType:    &reply.ResponseType,
		EmotionAnalysis: &reply.EmotionAnalysis,
	})
}
