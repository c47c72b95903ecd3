package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	harbor "github.com/testharbor/testharbor"
	"github.com/testharbor/testharbor/runner"
	"github.com/testharbor/testharbor/storage"
	"github.com/testharbor/testharbor/stream"
	"github.com/testharbor/testharbor/types"
)

// fakeSubmitter returns a canned result or error per call.
type fakeSubmitter struct {
	result *types.ExecutionResult
	err    error
}

func (f *fakeSubmitter) SubmitExecution(_ context.Context, _ types.TestDefinition, sessionID string) (*types.ExecutionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	result := *f.result
	result.SessionID = sessionID
	return &result, nil
}

type fakeStatus struct {
	active, queued int
}

func (f fakeStatus) ActiveCount() int { return f.active }
func (f fakeStatus) QueueDepth() int  { return f.queued }

type apiHarness struct {
	server    *httptest.Server
	store     *storage.Store
	hub       *stream.Hub
	submitter *fakeSubmitter
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	staticDir := t.TempDir()
	store, err := storage.NewStore(zerolog.Nop(), staticDir)
	require.NoError(t, err)

	hub := stream.NewHub(stream.Config{Log: zerolog.Nop()})
	t.Cleanup(hub.Stop)

	submitter := &fakeSubmitter{
		result: &types.ExecutionResult{Status: types.StatusPassed, ExitCode: 0},
	}
	api := NewAPIServer(APIConfig{
		Log:       zerolog.Nop(),
		Submitter: submitter,
		Store:     store,
		Hub:       hub,
		Status:    fakeStatus{active: 1, queued: 2},
		StaticDir: staticDir,
	})

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return &apiHarness{server: server, store: store, hub: hub, submitter: submitter}
}

func (h *apiHarness) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *apiHarness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandleSubmit(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/api/executions", map[string]any{
		"sessionId": "session-1",
		"test":      map[string]any{"id": "checkout", "code": "test code"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[types.ExecutionResult](t, resp)
	assert.Equal(t, "session-1", result.SessionID)
	assert.Equal(t, types.StatusPassed, result.Status)
}

func TestHandleSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{
			name:   "admission errors are the caller's fault",
			err:    harbor.NewAdmissionError(errors.New("session id is required")),
			status: http.StatusBadRequest,
		},
		{
			name:   "environment errors are upstream failures",
			err:    &runner.EnvironmentError{Err: errors.New("npm install failed")},
			status: http.StatusBadGateway,
		},
		{
			name:   "spawn errors are upstream failures",
			err:    &runner.SpawnError{Err: errors.New("executable not found")},
			status: http.StatusBadGateway,
		},
		{
			name:   "anything else is internal",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAPIHarness(t)
			h.submitter.err = tt.err

			resp := h.post(t, "/api/executions", map[string]any{
				"sessionId": "session-1",
				"test":      map[string]any{"id": "t", "code": "c"},
			})
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decode[map[string]string](t, resp)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleSubmit_MalformedBody(t *testing.T) {
	h := newAPIHarness(t)

	resp, err := http.Post(h.server.URL+"/api/executions", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleResults(t *testing.T) {
	h := newAPIHarness(t)

	// Empty store serves an empty list, not null.
	resp := h.get(t, "/api/results")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]types.ExecutionResult](t, resp)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	require.NoError(t, h.store.SaveResult(&types.ExecutionResult{SessionID: "session-1", Status: types.StatusFailed}))

	resp = h.get(t, "/api/results/session-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[types.ExecutionResult](t, resp)
	assert.Equal(t, types.StatusFailed, result.Status)

	resp = h.get(t, "/api/results/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleStatus(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.get(t, "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[map[string]int](t, resp)
	assert.Equal(t, 1, status["active"])
	assert.Equal(t, 2, status["queued"])
}

// TestStaticBuckets verifies stored artifacts are served under their
// bucket paths.
func TestStaticBuckets(t *testing.T) {
	h := newAPIHarness(t)

	path := filepath.Join(h.store.BucketPath(types.ArtifactScreenshot), "session-1-shot.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))

	resp := h.get(t, "/screenshots/session-1-shot.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.get(t, "/screenshots/missing.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestStreamEndpoint verifies the websocket upgrade hands the connection
// to the hub and events flow end to end.
func TestStreamEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return h.hub.ConnectionCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"action":"subscribe","channel":"session-1"}`)))
	time.Sleep(20 * time.Millisecond)

	h.hub.Emit("session-1", stream.Event{Type: stream.EventTestOutput, Data: map[string]any{"chunk": "hello"}})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := ws.ReadMessage()
	require.NoError(t, err)

	var event stream.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, stream.EventTestOutput, event.Type)
	assert.Equal(t, "session-1", event.SessionID)
	assert.Equal(t, "hello", event.Data["chunk"])
}
