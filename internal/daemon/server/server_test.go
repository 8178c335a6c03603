package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/causes/internal/daemon/store"
	"github.com/grovetools/causes/pkg/daemon"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, token string) (*httptest.Server, *store.Store) {
	t.Helper()
	st := store.New()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := New(st, logrus.NewEntry(logger))
	srv.SetToken(token)
	srv.SetHeartbeat(50 * time.Millisecond)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func request(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeFrame(t *testing.T, resp *http.Response) daemon.Frame {
	t.Helper()
	var f daemon.Frame
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
	return f
}

func TestHealthNeedsNoToken(t *testing.T) {
	ts, _ := newTestServer(t, "secret")
	resp := request(t, http.MethodGet, ts.URL+daemon.PathHealth, "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerToken(t *testing.T) {
	ts, _ := newTestServer(t, "secret")
	url := ts.URL + daemon.CollectionPath("ngos")

	resp := request(t, http.MethodGet, url, "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	var ef daemon.ErrorFrame
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ef))
	assert.Equal(t, "PERMISSION_DENIED", ef.Code)

	resp = request(t, http.MethodGet, url, "wrong", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = request(t, http.MethodGet, url, "secret", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDocumentLifecycle(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := request(t, http.MethodGet, ts.URL+daemon.CollectionPath("ngos"), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	empty := decodeFrame(t, resp)
	assert.Zero(t, empty.Seq)
	assert.NotNil(t, empty.Documents)
	assert.Empty(t, empty.Documents)

	resp = request(t, http.MethodPut, ts.URL+daemon.DocumentPath("ngos", "1"), "", `{"name":"Red Cross","category":"Health"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f := decodeFrame(t, resp)
	assert.Equal(t, uint64(1), f.Seq)
	require.Len(t, f.Documents, 1)
	assert.JSONEq(t, `{"id":"1","name":"Red Cross","category":"Health"}`, string(f.Documents[0]))

	resp = request(t, http.MethodPut, ts.URL+daemon.DocumentPath("ngos", "2"), "", `{"name":"Oxfam"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = request(t, http.MethodGet, ts.URL+daemon.DocumentPath("ngos", "2"), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"id":"2","name":"Oxfam"}`, string(body))

	resp = request(t, http.MethodGet, ts.URL+daemon.PathCollections, "", "")
	var infos []daemon.CollectionInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	assert.Equal(t, []daemon.CollectionInfo{{Name: "ngos", Seq: 2, Count: 2}}, infos)

	resp = request(t, http.MethodDelete, ts.URL+daemon.DocumentPath("ngos", "1"), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f = decodeFrame(t, resp)
	assert.Equal(t, uint64(3), f.Seq)
	require.Len(t, f.Documents, 1)

	resp = request(t, http.MethodDelete, ts.URL+daemon.DocumentPath("ngos", "1"), "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = request(t, http.MethodGet, ts.URL+daemon.DocumentPath("ngos", "1"), "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorStatuses(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := request(t, http.MethodPut, ts.URL+daemon.DocumentPath("ngos", "1"), "", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = request(t, http.MethodPut, ts.URL+daemon.CollectionPath("ngos"), "", `[{"id":"a"},{"id":"a"}]`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = request(t, http.MethodPut, ts.URL+daemon.CollectionPath("ngos"), "", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = request(t, http.MethodPut, ts.URL+daemon.CollectionPath("ngos"), "", `[{"id":"a"},{"id":"b"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f := decodeFrame(t, resp)
	assert.Len(t, f.Documents, 2)
}

func TestRunningConfig(t *testing.T) {
	st := store.New()
	srv := New(st, logrus.NewEntry(logrus.New()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := request(t, http.MethodGet, ts.URL+"/api/config", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	srv.SetRunningConfig(&RunningConfig{Addr: ":8420", AuthRequired: true})
	resp = request(t, http.MethodGet, ts.URL+"/api/config", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rc RunningConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rc))
	assert.Equal(t, ":8420", rc.Addr)
	assert.True(t, rc.AuthRequired)
}

func TestSSEStream(t *testing.T) {
	ts, st := newTestServer(t, "")
	_, err := st.Put("ngos", "1", json.RawMessage(`{"name":"Red Cross"}`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+daemon.StreamPath("ngos"), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := make(chan daemon.Frame, 8)
	go daemon.ReadEvents(resp.Body, func(event, data string) {
		var f daemon.Frame
		if json.Unmarshal([]byte(data), &f) == nil {
			frames <- f
		}
	})

	first := nextFrame(t, frames)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Len(t, first.Documents, 1)

	// Other collections are not streamed here.
	_, err = st.Put("events", "e1", json.RawMessage(`{"name":"Meetup"}`))
	require.NoError(t, err)
	_, err = st.Put("ngos", "2", json.RawMessage(`{"name":"Oxfam"}`))
	require.NoError(t, err)

	second := nextFrame(t, frames)
	assert.Equal(t, "ngos", second.Collection)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Len(t, second.Documents, 2)
}

func TestWebSocketStream(t *testing.T) {
	ts, st := newTestServer(t, "secret")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + daemon.WebSocketPath("ngos")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"Authorization": []string{"Bearer secret"}}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer ws.Close()

	var f daemon.Frame
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, ws.ReadJSON(&f))
	assert.Equal(t, daemon.FrameSnapshot, f.Type)
	assert.Zero(t, f.Seq)
	assert.Empty(t, f.Documents)

	_, err = st.Replace("ngos", []json.RawMessage{json.RawMessage(`{"id":"a"}`), json.RawMessage(`{"id":"b"}`)})
	require.NoError(t, err)

	require.NoError(t, ws.ReadJSON(&f))
	assert.Equal(t, uint64(1), f.Seq)
	assert.Len(t, f.Documents, 2)
}

func TestListenUnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "causesd.sock")
	l, err := Listen("unix://" + path)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, "unix", l.Addr().Network())
}

func TestStatusFor(t *testing.T) {
	st := store.New()
	_, err := st.Delete("ngos", "missing")
	assert.Equal(t, http.StatusNotFound, statusFor(err))
	_, err = st.Replace("ngos", []json.RawMessage{json.RawMessage(`{}`)})
	assert.Equal(t, http.StatusBadRequest, statusFor(err))
	assert.Equal(t, http.StatusInternalServerError, statusFor(bytes.ErrTooLarge))
}

func nextFrame(t *testing.T, frames <-chan daemon.Frame) daemon.Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return daemon.Frame{}
	}
}
