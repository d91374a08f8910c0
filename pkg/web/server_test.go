package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Layr-Labs/farbook-go/pkg/connectFlow"
	"github.com/Layr-Labs/farbook-go/pkg/logger"
	"github.com/Layr-Labs/farbook-go/pkg/metrics"
	"github.com/Layr-Labs/farbook-go/pkg/persistence"
	"github.com/Layr-Labs/farbook-go/pkg/persistence/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlow struct {
	mu          sync.Mutex
	snap        connectFlow.Snapshot
	connectErr  error
	submitErr   error
	connects    int
	submissions int
}

func (f *fakeFlow) Connect(context.Context) (connectFlow.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.snap, f.connectErr
	}
	f.snap = connectFlow.Snapshot{
		State:      connectFlow.StateAwaitingApproval,
		AttemptID:  "attempt-1",
		PublicKey:  "0x" + strings.Repeat("ab", 32),
		Token:      "abc",
		QRPayload:  "farcaster://signer-add?token=abc",
		CanConnect: true,
	}
	return f.snap, nil
}

func (f *fakeFlow) Submit(context.Context) (connectFlow.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions++
	if f.submitErr != nil {
		return f.snap, f.submitErr
	}
	f.snap.State = connectFlow.StateSubmitted
	return f.snap, nil
}

func (f *fakeFlow) Snapshot() connectFlow.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type fakeStore struct {
	*memory.MemoryPersistence
	err error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryPersistence: memory.NewMemoryPersistence()}
}

func (f *fakeStore) HealthCheck() error {
	return f.err
}

func newTestServer(t *testing.T, flow *fakeFlow, mutate func(*ServerConfig)) http.Handler {
	t.Helper()

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	cfg := &ServerConfig{
		Port:    0,
		AppName: "Farbook",
		Flow:    flow,
		Store:   newFakeStore(),
		Logger:  l,
	}
	if mutate != nil {
		mutate(cfg)
	}

	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s.GetHandler()
}

func idleFlow() *fakeFlow {
	return &fakeFlow{snap: connectFlow.Snapshot{State: connectFlow.StateIdle, CanConnect: true}}
}

func approvedFlow() *fakeFlow {
	return &fakeFlow{snap: connectFlow.Snapshot{
		State:      connectFlow.StateApproved,
		PublicKey:  "0x" + strings.Repeat("cd", 32),
		Token:      "abc",
		QRPayload:  "farcaster://signer-add?token=abc",
		Approved:   true,
		Fid:        123,
		CanConnect: true,
		CanSubmit:  true,
	}}
}

func do(t *testing.T, h http.Handler, method, path string, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil)
	require.Error(t, err)

	_, err = NewServer(&ServerConfig{AppName: "Farbook"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect flow is required")
}

func TestPage_IdleShowsHeadingAndConnectOnly(t *testing.T) {
	h := newTestServer(t, idleFlow(), func(c *ServerConfig) { c.AppName = "My App" })

	w := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, "<h1>My App</h1>")
	assert.Contains(t, body, `id="connect-button"`)
	assert.NotContains(t, body, `id="connect-button" disabled`)
	assert.NotContains(t, body, `id="public-key"`)
	assert.NotContains(t, body, `id="qr-code"`)
	assert.NotContains(t, body, `id="submit-button"`)
	assert.NotContains(t, body, `http-equiv="refresh"`)
}

func TestPage_AwaitingApprovalShowsKeyAndQRCode(t *testing.T) {
	flow := idleFlow()
	_, err := flow.Connect(context.Background())
	require.NoError(t, err)
	h := newTestServer(t, flow, nil)

	w := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, "0x"+strings.Repeat("ab", 32))
	assert.Contains(t, body, `<img src="/qr.png"`)
	assert.Contains(t, body, `href="farcaster://signer-add?token=abc"`)
	assert.Contains(t, body, `http-equiv="refresh"`)
	assert.NotContains(t, body, `id="submit-button"`)
}

func TestPage_ApprovedShowsSubmit(t *testing.T) {
	h := newTestServer(t, approvedFlow(), nil)

	body := do(t, h, http.MethodGet, "/", "").Body.String()
	assert.Contains(t, body, `id="submit-button"`)
	assert.Contains(t, body, "Approved for fid 123")
	assert.NotContains(t, body, `http-equiv="refresh"`)
}

func TestPage_ConnectDisabledWhileRequesting(t *testing.T) {
	flow := &fakeFlow{snap: connectFlow.Snapshot{State: connectFlow.StateRequesting}}
	h := newTestServer(t, flow, nil)

	body := do(t, h, http.MethodGet, "/", "").Body.String()
	assert.Contains(t, body, `id="connect-button" disabled`)
}

func TestConnect_FormPostRedirects(t *testing.T) {
	flow := idleFlow()
	h := newTestServer(t, flow, nil)

	w := do(t, h, http.MethodPost, "/connect", "")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, 1, flow.connects)
}

func TestConnect_JSON(t *testing.T) {
	flow := idleFlow()
	h := newTestServer(t, flow, nil)

	w := do(t, h, http.MethodPost, "/connect", "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "awaiting_approval", snap["state"])
	assert.Equal(t, "farcaster://signer-add?token=abc", snap["qrPayload"])
	assert.NotContains(t, snap, "base64SignedMessage")
}

func TestConnect_ErrorStatusCodes(t *testing.T) {
	flow := idleFlow()
	flow.connectErr = fmt.Errorf("failed to create signer request: boom")
	h := newTestServer(t, flow, nil)

	w := do(t, h, http.MethodPost, "/connect", "application/json")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	flow.connectErr = fmt.Errorf("%w: requesting -> requesting", connectFlow.ErrInvalidTransition)
	h = newTestServer(t, flow, nil)
	w = do(t, h, http.MethodPost, "/connect", "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestConnect_RateLimited(t *testing.T) {
	flow := idleFlow()
	h := newTestServer(t, flow, func(c *ServerConfig) { c.ConnectRateLimit = 0.001 })

	w := do(t, h, http.MethodPost, "/connect", "application/json")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/connect", "application/json")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 1, flow.connects)
}

func TestConnect_MethodNotAllowed(t *testing.T) {
	h := newTestServer(t, idleFlow(), nil)
	w := do(t, h, http.MethodGet, "/connect", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSubmit(t *testing.T) {
	flow := approvedFlow()
	h := newTestServer(t, flow, nil)

	w := do(t, h, http.MethodPost, "/submit", "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"submitted"`)
	assert.Equal(t, 1, flow.submissions)

	flow.submitErr = connectFlow.ErrNotApproved
	w = do(t, h, http.MethodPost, "/submit", "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)

	flow.submitErr = fmt.Errorf("rpc error: code = Unavailable")
	w = do(t, h, http.MethodPost, "/submit", "")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, 3, flow.submissions)
}

func TestState(t *testing.T) {
	h := newTestServer(t, approvedFlow(), nil)

	w := do(t, h, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var snap connectFlow.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.True(t, snap.Approved)
	assert.Equal(t, uint64(123), snap.Fid)
	assert.True(t, snap.CanSubmit)
}

func TestQRCode(t *testing.T) {
	h := newTestServer(t, idleFlow(), nil)
	w := do(t, h, http.MethodGet, "/qr.png", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	h = newTestServer(t, approvedFlow(), nil)
	w = do(t, h, http.MethodGet, "/qr.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, QRCodeSize, img.Bounds().Dx())
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, idleFlow(), nil)
	w := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	h = newTestServer(t, idleFlow(), func(c *ServerConfig) {
		c.Store = &fakeStore{MemoryPersistence: memory.NewMemoryPersistence(), err: fmt.Errorf("persistence layer is closed")}
	})
	w = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "persistence layer is closed")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)
	m.ConnectAttempt(metrics.ResultSuccess)

	h := newTestServer(t, idleFlow(), func(c *ServerConfig) { c.Gatherer = reg })
	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `farbook_connect_attempts_total{result="success"} 1`)

	h = newTestServer(t, idleFlow(), nil)
	w = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, idleFlow(), func(c *ServerConfig) {
		c.CORSOrigins = []string{"https://farbook.example"}
	})

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Origin", "https://farbook.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "https://farbook.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAttempts(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.SaveAttempt(&persistence.AttemptRecord{AttemptID: "a1", State: "idle", LastError: "unexpected status 500", CreatedAt: 1}))
	require.NoError(t, store.SaveAttempt(&persistence.AttemptRecord{AttemptID: "a2", State: "approved", Fid: 123, CreatedAt: 2}))
	h := newTestServer(t, idleFlow(), func(c *ServerConfig) { c.Store = store })

	w := do(t, h, http.MethodGet, "/attempts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var records []*persistence.AttemptRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "a1", records[0].AttemptID)
	assert.Equal(t, "unexpected status 500", records[0].LastError)
	assert.Equal(t, uint64(123), records[1].Fid)

	w = do(t, h, http.MethodGet, "/attempts/a2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var record persistence.AttemptRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, "approved", record.State)

	w = do(t, h, http.MethodGet, "/attempts/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodDelete, "/attempts/a1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	loaded, err := store.LoadAttempt("a1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.Close())
	w = do(t, h, http.MethodGet, "/attempts", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAttempts_NotRoutedWithoutStore(t *testing.T) {
	h := newTestServer(t, idleFlow(), func(c *ServerConfig) { c.Store = nil })

	w := do(t, h, http.MethodGet, "/attempts", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
