package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Layr-Labs/farbook-go/pkg/clients/hubClient"
	"github.com/Layr-Labs/farbook-go/pkg/clients/warpcast"
	"github.com/Layr-Labs/farbook-go/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// TestStack is an in-process Warpcast API plus hub for end-to-end connect flow tests
type TestStack struct {
	WarpcastServer *httptest.Server
	Warpcast       *warpcast.Client
	Hub            *hubClient.HubClient

	mu        sync.Mutex
	requests  map[string]*pendingRequest
	tokens    []string
	polls     map[string]int
	submitted [][]byte

	logger *zap.Logger
}

type pendingRequest struct {
	publicKey string
	name      string
	approval  *types.SignerApproval
}

// NewTestStack starts the fake Warpcast API and hub and connects real clients to them.
// Everything is torn down with t.
func NewTestStack(t *testing.T) *TestStack {
	t.Helper()

	s := &TestStack{
		requests: make(map[string]*pendingRequest),
		polls:    make(map[string]int),
		logger:   NewTestLogger(t),
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/signer-request", s.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/v2/signer-request", s.handleStatus).Methods(http.MethodGet)
	s.WarpcastServer = httptest.NewServer(router)
	t.Cleanup(s.WarpcastServer.Close)

	client, err := warpcast.NewClient(&warpcast.ClientConfig{
		SignerRequestURL: s.WarpcastServer.URL + "/api/signer-request",
		APIBaseURL:       s.WarpcastServer.URL,
		Logger:           s.logger,
	})
	if err != nil {
		t.Fatalf("Failed to create Warpcast client: %v", err)
	}
	s.Warpcast = client

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(frameCodec{}),
		grpc.UnknownServiceHandler(s.handleHubStream),
	)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	hub, err := hubClient.NewHubClient(&hubClient.HubClientConfig{
		Address:  "passthrough:///testhub",
		Insecure: true,
		Logger:   s.logger,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	if err != nil {
		t.Fatalf("Failed to create hub client: %v", err)
	}
	t.Cleanup(func() { _ = hub.Close() })
	s.Hub = hub

	return s
}

// Tokens returns the signer request tokens issued so far, oldest first
func (s *TestStack) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// PublicKey returns the public key registered under token
func (s *TestStack) PublicKey(token string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.requests[token]; ok {
		return r.publicKey
	}
	return ""
}

// Approve marks the request approved for fid, as the companion app would
func (s *TestStack) Approve(token string, fid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[token]
	if !ok {
		return fmt.Errorf("unknown token %s", token)
	}
	key, err := hexutil.Decode(r.publicKey)
	if err != nil {
		return fmt.Errorf("registered public key is not hex: %w", err)
	}
	r.approval = &types.SignerApproval{
		Fid:                 fid,
		Base64SignedMessage: SignerAddMessage(fid, key).Base64(),
	}
	return nil
}

// Polls returns how often the status of token was polled
func (s *TestStack) Polls(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[token]
}

// Submitted returns the raw messages the hub received
func (s *TestStack) Submitted() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.submitted...)
}

func (s *TestStack) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.SignerRequestCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if req.PublicKey == "" {
		http.Error(w, "publicKey is required", http.StatusBadRequest)
		return
	}

	token := uuid.New().String()
	s.mu.Lock()
	s.requests[token] = &pendingRequest{publicKey: req.PublicKey, name: req.Name}
	s.tokens = append(s.tokens, token)
	s.mu.Unlock()

	writeJSON(w, &types.SignerRequestCreateResponse{
		Result: &types.SignerRequestCreateResult{Token: token},
	})
}

func (s *TestStack) handleStatus(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	s.mu.Lock()
	s.polls[token]++
	req, ok := s.requests[token]
	var status types.SignerRequestStatus
	if ok {
		status = types.SignerRequestStatus{Token: token, PublicKey: req.publicKey}
		if req.approval != nil {
			status.Fid = req.approval.Fid
			status.Base64SignedMessage = req.approval.Base64SignedMessage
		}
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "Signer request not found", http.StatusNotFound)
		return
	}
	writeJSON(w, &types.SignerRequestStatusResponse{
		Result: &types.SignerRequestStatusResult{SignerRequest: &status},
	})
}

func (s *TestStack) handleHubStream(_ interface{}, stream grpc.ServerStream) error {
	var in frame
	if err := stream.RecvMsg(&in); err != nil {
		return err
	}
	s.mu.Lock()
	s.submitted = append(s.submitted, in.data)
	s.mu.Unlock()
	return stream.SendMsg(&frame{data: in.data})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type frame struct {
	data []byte
}

// frameCodec hands the hub handler the raw message bytes
type frameCodec struct{}

func (frameCodec) Marshal(v interface{}) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("frame codec cannot marshal %T", v)
	}
	return f.data, nil
}

func (frameCodec) Unmarshal(data []byte, v interface{}) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("frame codec cannot unmarshal into %T", v)
	}
	f.data = append([]byte(nil), data...)
	return nil
}

func (frameCodec) Name() string {
	return "proto"
}
