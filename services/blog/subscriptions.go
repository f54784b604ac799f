package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/events"
	"github.com/pavitra93/go-multi-tenant-blog/shared/middleware"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// Subscription protocol message types, client and server
const (
	msgConnectionInit  = "connection_init"
	msgConnectionAck   = "connection_ack"
	msgConnectionError = "connection_error"
	msgSubscribe       = "subscribe"
	msgNext            = "next"
	msgComplete        = "complete"
	msgError           = "error"
	msgPing            = "ping"
	msgPong            = "pong"
)

const (
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second
)

// wsMessage is one frame of the subscription protocol
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribePayload selects event types; empty means comment events
type subscribePayload struct {
	Events []string `json:"events"`
}

// subscriptionHandler serves live comment events over a websocket
type subscriptionHandler struct {
	hub            *events.Hub
	resolver       middleware.TenantResolver
	observer       middleware.TenantObserver
	allowedOrigins []string
	initTimeout    time.Duration
}

func (h *subscriptionHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.allowedOrigins) == 0 {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" || origin == allowed {
					return true
				}
			}
			logrus.WithField("origin", origin).Warn("Websocket origin rejected")
			return false
		},
	}
}

// serve upgrades the request, resolves the tenant from the connection params
// and streams events until either side goes away
func (h *subscriptionHandler) serve(c *gin.Context) {
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	s := &wsSession{conn: conn, subs: make(map[string]*events.Subscription)}

	state, err := h.handshake(c.Request, s)
	if h.observer != nil {
		h.observer.ObserveTenant("ws", tenancy.Outcome(err))
	}
	if err != nil {
		_, message := utils.StatusOf(err)
		_ = s.write(wsMessage{Type: msgConnectionError, Payload: mustJSON(gin.H{"message": message})})
		_ = s.close(websocket.ClosePolicyViolation, message)
		return
	}
	if err := s.write(wsMessage{Type: msgConnectionAck}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	s.run(ctx, h.hub, state.TenantID())
}

// handshake waits for connection_init. The x-api-key header wins over the
// key sent in the init payload.
func (h *subscriptionHandler) handshake(r *http.Request, s *wsSession) (*tenancy.State, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(h.initTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	var msg wsMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		return nil, utils.BadRequest("Expected connection_init")
	}
	if msg.Type != msgConnectionInit {
		return nil, utils.BadRequest("Expected connection_init")
	}

	raw := r.Header.Get(tenancy.APIKeyHeader)
	if raw == "" {
		raw = connectionParam(msg.Payload, tenancy.APIKeyHeader)
	}
	return h.resolver.Resolve(r.Context(), raw)
}

// connectionParam reads a string param, matching the key case-insensitively
func connectionParam(payload json.RawMessage, key string) string {
	if len(payload) == 0 {
		return ""
	}
	var params map[string]interface{}
	if err := json.Unmarshal(payload, &params); err != nil {
		return ""
	}
	for k, v := range params {
		if strings.EqualFold(k, key) {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	mu      sync.Mutex
	subs    map[string]*events.Subscription
	wg      sync.WaitGroup
}

func (s *wsSession) write(msg wsMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *wsSession) close(code int, text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeTimeout))
}

// run reads client frames until the connection closes
func (s *wsSession) run(ctx context.Context, hub *events.Hub, tenant string) {
	defer s.wg.Wait()
	defer s.unsubscribeAll()

	go s.keepAlive(ctx)

	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithField("tenant", tenant).WithError(err).Debug("Websocket closed")
			}
			return
		}

		switch msg.Type {
		case msgSubscribe:
			s.subscribe(hub, tenant, msg)
		case msgComplete:
			s.unsubscribe(msg.ID)
		case msgPing:
			_ = s.write(wsMessage{Type: msgPong})
		case msgPong:
		default:
			_ = s.write(wsMessage{Type: msgError, ID: msg.ID, Payload: mustJSON(gin.H{"message": "Unknown message type " + msg.Type})})
		}
	}
}

func (s *wsSession) subscribe(hub *events.Hub, tenant string, msg wsMessage) {
	if msg.ID == "" {
		_ = s.write(wsMessage{Type: msgError, Payload: mustJSON(gin.H{"message": "Subscription id is required"})})
		return
	}

	var payload subscribePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			_ = s.write(wsMessage{Type: msgError, ID: msg.ID, Payload: mustJSON(gin.H{"message": "Invalid subscribe payload"})})
			return
		}
	}
	types := payload.Events
	if len(types) == 0 {
		types = []string{events.CommentCreated, events.CommentRated}
	}

	s.mu.Lock()
	if _, exists := s.subs[msg.ID]; exists {
		s.mu.Unlock()
		_ = s.write(wsMessage{Type: msgError, ID: msg.ID, Payload: mustJSON(gin.H{"message": "Subscription id already in use"})})
		return
	}
	sub := hub.Subscribe(tenant, types...)
	s.subs[msg.ID] = sub
	s.mu.Unlock()

	s.wg.Add(1)
	go func(id string) {
		defer s.wg.Done()
		for event := range sub.Events() {
			if err := s.write(wsMessage{Type: msgNext, ID: id, Payload: mustJSON(event)}); err != nil {
				return
			}
		}
	}(msg.ID)
}

func (s *wsSession) unsubscribe(id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (s *wsSession) unsubscribeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]*events.Subscription)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func (s *wsSession) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return raw
}
