package hubClient

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/Layr-Labs/farbook-go/pkg/hubMessage"
	"github.com/Layr-Labs/farbook-go/pkg/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// fakeHub records every SubmitMessage frame and echoes it back
type fakeHub struct {
	mu       sync.Mutex
	methods  []string
	received [][]byte
	failWith error
}

func (f *fakeHub) handle(_ interface{}, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)

	var in rawFrame
	if err := stream.RecvMsg(&in); err != nil {
		return err
	}

	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.received = append(f.received, in.data)
	failWith := f.failWith
	f.mu.Unlock()

	if failWith != nil {
		return failWith
	}
	return stream.SendMsg(&rawFrame{data: in.data})
}

func startFakeHub(t *testing.T, hub *fakeHub) *HubClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(rawCodec{}),
		grpc.UnknownServiceHandler(hub.handle),
	)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	client, err := NewHubClient(&HubClientConfig{
		Address:  "passthrough:///bufnet",
		Insecure: true,
		Logger:   l,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testMessage() *hubMessage.Message {
	return &hubMessage.Message{
		Data: &hubMessage.MessageData{
			Type:    hubMessage.MessageTypeSignerAdd,
			Fid:     123,
			Network: hubMessage.FarcasterNetworkMainnet,
		},
		Hash:            []byte{1, 2, 3},
		HashScheme:      hubMessage.HashSchemeBlake3,
		Signature:       []byte{4, 5, 6},
		SignatureScheme: hubMessage.SignatureSchemeEIP712,
		Signer:          []byte{7, 8, 9},
	}
}

func TestHubClient_SubmitMessage(t *testing.T) {
	hub := &fakeHub{}
	client := startFakeHub(t, hub)

	decoded, err := hubMessage.Decode(testMessage().Marshal())
	require.NoError(t, err)

	merged, err := client.SubmitMessage(context.Background(), decoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), merged.Fid())

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.Len(t, hub.received, 1)
	assert.Equal(t, SubmitMessageMethod, hub.methods[0])
	assert.Equal(t, decoded.Bytes(), hub.received[0])
}

func TestHubClient_SubmitMessage_HubRejects(t *testing.T) {
	hub := &fakeHub{failWith: status.Error(codes.InvalidArgument, "bad signature")}
	client := startFakeHub(t, hub)

	_, err := client.SubmitMessage(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad signature")
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Cause(err)))
}

func TestHubClient_SubmitMessage_Nil(t *testing.T) {
	client := startFakeHub(t, &fakeHub{})
	_, err := client.SubmitMessage(context.Background(), nil)
	assert.ErrorContains(t, err, "cannot submit nil message")
}

func TestNewHubClient_Validation(t *testing.T) {
	_, err := NewHubClient(nil)
	assert.Error(t, err)

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	_, err = NewHubClient(&HubClientConfig{Logger: l})
	assert.ErrorContains(t, err, "hub address is required")

	_, err = NewHubClient(&HubClientConfig{Address: "localhost:2283"})
	assert.ErrorContains(t, err, "logger is required")
}
