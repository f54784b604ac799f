package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/go-multi-tenant-blog/shared/events"
	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
)

func dialSubscriptions(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/blog/comments/subscribe"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// connect performs the handshake with the key in the init payload and
// subscribes with id "1"
func connect(t *testing.T, f *fixture, srv *httptest.Server, apiKey string) *websocket.Conn {
	t.Helper()
	conn := dialSubscriptions(t, srv, nil)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit, Payload: mustJSON(map[string]string{"X-Api-Key": apiKey})}))
	require.Equal(t, msgConnectionAck, readMessage(t, conn).Type)

	schema := tenancy.SchemaFor(uuid.MustParse(apiKey)).String()
	before := f.hub.Count(schema)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgSubscribe, ID: "1"}))
	require.Eventually(t, func() bool { return f.hub.Count(schema) == before+1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestSubscriptions_DeliverOnlyOwnTenantEvents(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	connA := connect(t, f, srv, f.tenantA)
	connB := connect(t, f, srv, f.tenantB)

	jane := f.user(t, f.tenantA)
	article := f.createArticle(t, jane, "Live article", true)
	w := f.do(http.MethodPost, "/api/blog/comments", CreateCommentRequest{ArticleID: article.ID, Text: "Hello live"}, jane)
	require.Equal(t, http.StatusCreated, w.Code)

	msg := readMessage(t, connA)
	assert.Equal(t, msgNext, msg.Type)
	assert.Equal(t, "1", msg.ID)

	var event struct {
		Type    string         `json:"type"`
		Tenant  string         `json:"tenant"`
		Payload models.Comment `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, events.CommentCreated, event.Type)
	assert.Equal(t, "Hello live", event.Payload.Text)

	require.NoError(t, connB.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var leaked wsMessage
	err := connB.ReadJSON(&leaked)
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if assert.ErrorAs(t, err, &netErr) {
		assert.True(t, netErr.Timeout())
	}
}

func TestSubscriptions_HeaderKeyAndPing(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Set(tenancy.APIKeyHeader, f.tenantA)
	conn := dialSubscriptions(t, srv, header)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit}))
	require.Equal(t, msgConnectionAck, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgPing}))
	assert.Equal(t, msgPong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "bogus", ID: "x"}))
	msg := readMessage(t, conn)
	assert.Equal(t, msgError, msg.Type)
	assert.Equal(t, "x", msg.ID)
}

func TestSubscriptions_RejectsUnknownTenant(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	tests := []struct {
		name    string
		payload json.RawMessage
		message string
	}{
		{name: "missing key", payload: nil, message: "no tenant id provided"},
		{name: "unknown tenant", payload: mustJSON(map[string]string{"x-api-key": uuid.NewString()}), message: "Tenant not exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dialSubscriptions(t, srv, nil)
			require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit, Payload: tt.payload}))

			msg := readMessage(t, conn)
			require.Equal(t, msgConnectionError, msg.Type)
			assert.Contains(t, string(msg.Payload), tt.message)

			var next wsMessage
			err := conn.ReadJSON(&next)
			assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
		})
	}
}

func TestSubscriptions_CompleteStopsDelivery(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	conn := connect(t, f, srv, f.tenantA)
	schema := tenancy.SchemaFor(uuid.MustParse(f.tenantA)).String()

	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgComplete, ID: "1"}))
	assert.Eventually(t, func() bool { return f.hub.Count(schema) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConnectionParam(t *testing.T) {
	assert.Equal(t, "abc", connectionParam(json.RawMessage(`{"X-API-KEY":"abc"}`), tenancy.APIKeyHeader))
	assert.Equal(t, "", connectionParam(json.RawMessage(`{"x-api-key":42}`), tenancy.APIKeyHeader))
	assert.Equal(t, "", connectionParam(json.RawMessage(`not json`), tenancy.APIKeyHeader))
	assert.Equal(t, "", connectionParam(nil, tenancy.APIKeyHeader))
}
