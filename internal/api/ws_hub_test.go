package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"progitek/server/internal/models"
)

type pushed struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPush(t *testing.T, conn *websocket.Conn) pushed {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg pushed
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketDeliversNotifications(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	dg := s.users[models.RoleDG]
	conn := dialWS(t, srv, s.tokens[models.RoleDG])

	first := readPush(t, conn)
	assert.Equal(t, "unread_count", first.Type)
	assert.Equal(t, "0", string(first.Data))
	require.Eventually(t, func() bool { return s.hub.UserClientsCount(dg.ID) == 1 }, time.Second, 10*time.Millisecond)

	var q models.Quote
	decode(t, s.do(http.MethodPost, "/api/v1/devis", models.RoleCommercial, scenarioQuote(s.clientID)), http.StatusCreated, &q)
	decode(t, s.do(http.MethodPost, fmt.Sprintf("/api/v1/devis/%d/submit", q.ID), models.RoleCommercial, nil), http.StatusOK, nil)

	msg := readPush(t, conn)
	require.Equal(t, "notification", msg.Type)
	var n models.Notification
	require.NoError(t, json.Unmarshal(msg.Data, &n))
	assert.Equal(t, dg.ID, n.UserID)
	assert.Equal(t, models.NotificationQuoteSubmitted, n.Type)
	assert.Contains(t, n.Message, q.Number)

	conn.Close()
	require.Eventually(t, func() bool { return s.hub.UserClientsCount(dg.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketRequiresToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubBroadcastAndShutdown(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.hub.Run(ctx)
		close(done)
	}()

	a := dialWS(t, srv, s.tokens[models.RoleAdmin])
	b := dialWS(t, srv, s.tokens[models.RoleComptable])
	readPush(t, a)
	readPush(t, b)
	require.Eventually(t, func() bool { return s.hub.GetClientsCount() == 2 }, time.Second, 10*time.Millisecond)

	s.hub.BroadcastMessage([]byte(`{"type":"maintenance","data":null}`))
	assert.Equal(t, "maintenance", readPush(t, a).Type)
	assert.Equal(t, "maintenance", readPush(t, b).Type)

	// sending to a user without sockets is a no-op
	s.hub.SendToUser(9999, []byte(`{}`))

	cancel()
	<-done
	assert.Zero(t, s.hub.GetClientsCount())

	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.ReadMessage()
	assert.Error(t, err)
}

func TestWebsocketChecksOrigin(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?token=" + s.tokens[models.RoleDG]

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost:3000"}})
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	assert.Equal(t, "unread_count", readPush(t, conn).Type)

	same, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {srv.URL}})
	require.NoError(t, err)
	resp.Body.Close()
	defer same.Close()
	assert.Equal(t, "unread_count", readPush(t, same).Type)
}

func TestUnreadCountOnlyGoesToNewSocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	dg := s.users[models.RoleDG]
	first := dialWS(t, srv, s.tokens[models.RoleDG])
	assert.Equal(t, "unread_count", readPush(t, first).Type)
	require.Eventually(t, func() bool { return s.hub.UserClientsCount(dg.ID) == 1 }, time.Second, 10*time.Millisecond)

	second := dialWS(t, srv, s.tokens[models.RoleDG])
	assert.Equal(t, "unread_count", readPush(t, second).Type)
	require.Eventually(t, func() bool { return s.hub.UserClientsCount(dg.ID) == 2 }, time.Second, 10*time.Millisecond)

	var q models.Quote
	decode(t, s.do(http.MethodPost, "/api/v1/devis", models.RoleCommercial, scenarioQuote(s.clientID)), http.StatusCreated, &q)
	decode(t, s.do(http.MethodPost, fmt.Sprintf("/api/v1/devis/%d/submit", q.ID), models.RoleCommercial, nil), http.StatusOK, nil)

	// the first socket sees the notification next, not a second counter
	assert.Equal(t, "notification", readPush(t, first).Type)
	assert.Equal(t, "notification", readPush(t, second).Type)
}

func TestHubDeliversShutdownNoticeBeforeClosing(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.hub.Run(ctx)
		close(done)
	}()

	conn := dialWS(t, srv, s.tokens[models.RoleComptable])
	readPush(t, conn)
	require.Eventually(t, func() bool { return s.hub.GetClientsCount() == 1 }, time.Second, 10*time.Millisecond)

	s.hub.AnnounceShutdown()
	cancel()
	<-done

	assert.Equal(t, "server_shutdown", readPush(t, conn).Type)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
