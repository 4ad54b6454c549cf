package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorby/backend/internal/events"
)

func dialHub(t *testing.T, server *httptest.Server, subject string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?subject=" + subject
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForClient blocks until the hub has registered a client for the
// subject. Registration happens just after the upgrade handshake, so a
// publish racing the dial could otherwise miss the client.
func waitForClient(t *testing.T, hub *Hub, subject string) {
	t.Helper()
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients[subject]) > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn) *events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var event events.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	return &event
}

func TestHubDeliversSubjectEvents(t *testing.T) {
	bus := events.NewLocalBus()
	hub := NewHub(bus, nil)
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn := dialHub(t, server, "int-1")
	waitForClient(t, hub, "int-1")

	err := bus.Publish(context.Background(), &events.Event{
		Type:    events.TypeAnalysisCompleted,
		Subject: "int-1",
	})
	require.NoError(t, err)

	event := readEvent(t, conn)
	assert.Equal(t, events.TypeAnalysisCompleted, event.Type)
	assert.Equal(t, "int-1", event.Subject)
}

func TestHubFiltersOtherSubjects(t *testing.T) {
	bus := events.NewLocalBus()
	hub := NewHub(bus, nil)
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn := dialHub(t, server, "int-1")
	waitForClient(t, hub, "int-1")

	require.NoError(t, bus.Publish(context.Background(), &events.Event{
		Type:    events.TypeAnalysisCompleted,
		Subject: "int-other",
	}))
	require.NoError(t, bus.Publish(context.Background(), &events.Event{
		Type:    events.TypeAnalysisCompleted,
		Subject: "int-1",
	}))

	// Only the matching event arrives.
	event := readEvent(t, conn)
	assert.Equal(t, "int-1", event.Subject)
}

func TestHubWildcardSubject(t *testing.T) {
	bus := events.NewLocalBus()
	hub := NewHub(bus, nil)
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn := dialHub(t, server, "*")
	waitForClient(t, hub, "*")

	require.NoError(t, bus.Publish(context.Background(), &events.Event{
		Type:    events.TypeQuestionEdited,
		Subject: "q-42",
	}))

	event := readEvent(t, conn)
	assert.Equal(t, events.TypeQuestionEdited, event.Type)
}

func TestHubRejectsMissingSubject(t *testing.T) {
	bus := events.NewLocalBus()
	hub := NewHub(bus, nil)
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
