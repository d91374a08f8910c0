package hubClient

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/Layr-Labs/farbook-go/pkg/hubMessage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// SubmitMessageMethod is the fully qualified hub RPC; the hub protos declare no package
const SubmitMessageMethod = "/HubService/SubmitMessage"

// IHubClient submits signed messages to a hub
type IHubClient interface {
	SubmitMessage(ctx context.Context, msg *hubMessage.Message) (*hubMessage.Message, error)
}

// HubClientConfig holds the configuration for connecting to a hub
type HubClientConfig struct {
	// Address is the hub gRPC endpoint (host:port or a gRPC target URI)
	Address string
	// Insecure disables TLS, for local hubs
	Insecure bool
	// Timeout bounds each RPC when the caller's context has no deadline. Zero disables it.
	Timeout time.Duration
	Logger  *zap.Logger
	// DialOptions are appended after the transport credentials
	DialOptions []grpc.DialOption
}

// HubClient is a thin gRPC client for the hub's SubmitMessage RPC
type HubClient struct {
	address string
	timeout time.Duration
	conn    *grpc.ClientConn
	logger  *zap.Logger
}

// NewHubClient creates the gRPC channel. Connection happens lazily on the first RPC.
func NewHubClient(cfg *HubClientConfig) (*HubClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("hub address is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	var creds credentials.TransportCredentials
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	} else {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, cfg.DialOptions...)
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create hub client for %s", cfg.Address)
	}

	cfg.Logger.Sugar().Infow("Hub client created", "address", cfg.Address, "insecure", cfg.Insecure)

	return &HubClient{
		address: cfg.Address,
		timeout: cfg.Timeout,
		conn:    conn,
		logger:  cfg.Logger,
	}, nil
}

// SubmitMessage sends the message's original wire bytes to the hub and decodes the
// hub's echo of the merged message
func (h *HubClient) SubmitMessage(ctx context.Context, msg *hubMessage.Message) (*hubMessage.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("cannot submit nil message")
	}

	if _, ok := ctx.Deadline(); !ok && h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	in := &rawFrame{data: msg.Bytes()}
	out := &rawFrame{}
	if err := h.conn.Invoke(ctx, SubmitMessageMethod, in, out, grpc.ForceCodec(rawCodec{})); err != nil {
		return nil, errors.Wrapf(err, "failed to submit message to hub %s", h.address)
	}

	h.logger.Sugar().Debugw("Hub accepted message", "address", h.address, "fid", msg.Fid(), "response_len", len(out.data))

	if len(out.data) == 0 {
		return msg, nil
	}
	merged, err := hubMessage.Decode(out.data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hub response: %w", err)
	}
	return merged, nil
}

// Close tears down the gRPC channel
func (h *HubClient) Close() error {
	return h.conn.Close()
}
