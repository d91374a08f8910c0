package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Layr-Labs/farbook-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/farbook-go/pkg/connectFlow"
	"github.com/Layr-Labs/farbook-go/pkg/hubMessage"
	"github.com/Layr-Labs/farbook-go/pkg/metrics"
	"github.com/Layr-Labs/farbook-go/pkg/persistence/badger"
	"github.com/Layr-Labs/farbook-go/pkg/testutil"
	"github.com/Layr-Labs/farbook-go/pkg/web"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	stack   *testutil.TestStack
	flow    *connectFlow.Flow
	store   *badger.BadgerPersistence
	handler http.Handler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	l := testutil.NewTestLogger(t)
	stack := testutil.NewTestStack(t)

	store, err := badger.NewBadgerPersistence(t.TempDir(), l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(registry)
	require.NoError(t, err)

	flow, err := connectFlow.NewFlow(&connectFlow.Config{
		AppName:        "Farbook",
		KeyGenerator:   localKeyGenerator.NewLocalKeyGenerator(l),
		SignerRequests: stack.Warpcast,
		Approvals:      stack.Warpcast,
		Hub:            stack.Hub,
		Store:          store,
		Metrics:        m,
		PollPolicy:     connectFlow.PollPolicy{Interval: 10 * time.Millisecond},
		Logger:         l,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = flow.Close() })

	server, err := web.NewServer(&web.ServerConfig{
		AppName:  "Farbook",
		Flow:     flow,
		Store:    store,
		Gatherer: registry,
		Logger:   l,
	})
	require.NoError(t, err)

	return &testApp{stack: stack, flow: flow, store: store, handler: server.GetHandler()}
}

func (a *testApp) post(t *testing.T, path string) (int, connectFlow.Snapshot) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	var snap connectFlow.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return w.Code, snap
}

func Test_ConnectApproveSubmit(t *testing.T) {
	app := newTestApp(t)

	code, snap := app.post(t, "/connect")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, connectFlow.StateAwaitingApproval, snap.State)

	tokens := app.stack.Tokens()
	require.Len(t, tokens, 1)
	assert.Equal(t, "farcaster://signer-add?token="+tokens[0], snap.QRPayload)
	assert.Equal(t, snap.PublicKey, app.stack.PublicKey(tokens[0]))

	// the user has not approved yet: polling keeps going without a transition
	require.Eventually(t, func() bool { return app.stack.Polls(tokens[0]) >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, connectFlow.StateAwaitingApproval, app.flow.Snapshot().State)

	code, _ = app.post(t, "/submit")
	assert.Equal(t, http.StatusConflict, code)

	require.NoError(t, app.stack.Approve(tokens[0], 4242))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := app.flow.WaitForState(ctx, connectFlow.StateApproved)
	require.NoError(t, err)
	assert.Equal(t, uint64(4242), snap.Fid)

	code, snap = app.post(t, "/submit")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, connectFlow.StateSubmitted, snap.State)

	submitted := app.stack.Submitted()
	require.Len(t, submitted, 1)
	msg, err := hubMessage.Decode(submitted[0])
	require.NoError(t, err)
	assert.Equal(t, hubMessage.MessageTypeSignerAdd, msg.Data.Type)
	assert.Equal(t, uint64(4242), msg.Fid())

	// the hub received the signer key this attempt generated
	key, err := hexutil.Decode(snap.PublicKey)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Data.Body), string(key))

	app.flow.Flush()
	record, err := app.store.LoadAttempt(snap.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "submitted", record.State)
	assert.Equal(t, uint64(4242), record.Fid)
	assert.Equal(t, 1, record.SubmitCount)

	req := httptest.NewRequest(http.MethodGet, "/attempts/"+snap.AttemptID, nil)
	w := httptest.NewRecorder()
	app.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"submitted"`)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	app.handler.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `farbook_hub_submissions_total{result="success"} 1`)
	assert.Contains(t, w.Body.String(), `farbook_approval_polls_total{result="approved"} 1`)
}

func Test_ReconnectDiscardsFirstAttempt(t *testing.T) {
	app := newTestApp(t)

	_, first := app.post(t, "/connect")
	require.Equal(t, connectFlow.StateAwaitingApproval, first.State)

	_, second := app.post(t, "/connect")
	require.Equal(t, connectFlow.StateAwaitingApproval, second.State)
	require.NotEqual(t, first.PublicKey, second.PublicKey)

	tokens := app.stack.Tokens()
	require.Len(t, tokens, 2)

	// approving the abandoned request must not move the flow
	require.NoError(t, app.stack.Approve(tokens[0], 1))
	pollsBefore := app.stack.Polls(tokens[0])
	require.Eventually(t, func() bool { return app.stack.Polls(tokens[1]) >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, app.stack.Polls(tokens[0]), pollsBefore+1)

	snap := app.flow.Snapshot()
	assert.Equal(t, connectFlow.StateAwaitingApproval, snap.State)
	assert.Equal(t, tokens[1], snap.Token)
	assert.False(t, snap.Approved)

	require.NoError(t, app.stack.Approve(tokens[1], 2))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := app.flow.WaitForState(ctx, connectFlow.StateApproved)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Fid)

	app.flow.Flush()
	records, err := app.store.ListAttempts()
	require.NoError(t, err)
	require.Len(t, records, 2)

	abandoned, err := app.store.LoadAttempt(first.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, abandoned)
	assert.Equal(t, "awaiting_approval", abandoned.State)
	assert.Zero(t, abandoned.Fid)
}
