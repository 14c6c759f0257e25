package webui

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipd-simulator/pkg/model"
	"github.com/ipd-simulator/pkg/utils"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	s := NewServer("127.0.0.1:0", &utils.NullLogger{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_Index(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}

func TestServer_PublishReachesClient(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dialWS(t, ts)

	// Give the server a moment to register the client.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.clients) == 1
	}, time.Second, 10*time.Millisecond)

	s.Publish(&model.StepStats{Step: 9, Active: 12, CoopCount: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got model.StepStats
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, int64(9), got.Step)
	assert.Equal(t, int64(12), got.Active)
}

func TestServer_LateClientSeesLatest(t *testing.T) {
	s, ts := newTestServer(t)

	s.Publish(&model.StepStats{Step: 4, Active: 7})

	conn := dialWS(t, ts)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got model.StepStats
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, int64(4), got.Step)
}
