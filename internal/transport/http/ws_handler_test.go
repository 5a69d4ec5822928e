package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvmail/internal/operations"
	ws "csvmail/internal/websocket"
)

func dialValidation(t *testing.T, server *httptest.Server, token string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/validation/" + token
	return websocket.DefaultDialer.Dial(url, header)
}

// readUntil reads frames until one of type want arrives and returns it.
func readUntil(t *testing.T, conn *websocket.Conn, want string) ws.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg ws.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == want {
			return msg
		}
	}
}

func TestWebSocketHandler_SnapshotAndEvents(t *testing.T) {
	f := newHandlerFixture(t, false)
	server := httptest.NewServer(f.router)
	defer server.Close()

	token := f.process(t)
	rec := f.validate(t, token, `{"emailColumnIndex": "1"}`, "wait=false")
	require.Equal(t, http.StatusAccepted, rec.Code)

	conn, _, err := dialValidation(t, server, token, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The connection frame is sent once the hub has registered the client.
	readUntil(t, conn, ws.TypeConnection)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	f.checker.open()
	done := readUntil(t, conn, operations.EventJobComplete)
	assert.Equal(t, token, done.Topic)
	job, ok := done.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "completed", job["status"])
}

func TestWebSocketHandler_SnapshotOfFinishedJob(t *testing.T) {
	f := newHandlerFixture(t, true)
	server := httptest.NewServer(f.router)
	defer server.Close()

	token := f.process(t)
	require.Equal(t, http.StatusOK, f.validate(t, token, `{"emailColumnIndex": "1"}`, "").Code)

	conn, _, err := dialValidation(t, server, token, nil)
	require.NoError(t, err)
	defer conn.Close()

	snapshot := readUntil(t, conn, ws.TypeSnapshot)
	job, ok := snapshot.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "completed", job["status"])
	assert.NotNil(t, job["summary"])
}

func TestWebSocketHandler_Rejections(t *testing.T) {
	f := newHandlerFixture(t, true)
	server := httptest.NewServer(f.router)
	defer server.Close()

	_, resp, err := dialValidation(t, server, "not_a_token", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	token := f.process(t)
	_, resp, err = dialValidation(t, server, token, http.Header{"Origin": []string{"http://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.True(t, f.logs.ContainsMessage("websocket upgrade rejected"))

	conn, _, err := dialValidation(t, server, token, http.Header{"Origin": []string{"http://app.example.com"}})
	require.NoError(t, err)
	conn.Close()
}
