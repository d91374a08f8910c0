package testutil

import (
	"bytes"
	"testing"
	"time"

	"github.com/Layr-Labs/farbook-go/pkg/hubMessage"
	"github.com/Layr-Labs/farbook-go/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"
)

// NewTestLogger returns the production logger config used across tests
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return l
}

// SignerAddMessage builds a signed SIGNER_ADD hub message for fid that adds signerKey
func SignerAddMessage(fid uint64, signerKey []byte) *hubMessage.Message {
	// signer_add_body is field 11 of MessageData, its key field 1
	body := protowire.AppendBytes(protowire.AppendTag(nil, 1, protowire.BytesType), signerKey)
	dataBody := protowire.AppendBytes(protowire.AppendTag(nil, 11, protowire.BytesType), body)

	return &hubMessage.Message{
		Data: &hubMessage.MessageData{
			Type:      hubMessage.MessageTypeSignerAdd,
			Fid:       fid,
			Timestamp: uint32(time.Since(hubMessage.FarcasterEpoch) / time.Second),
			Network:   hubMessage.FarcasterNetworkMainnet,
			Body:      dataBody,
		},
		Hash:            bytes.Repeat([]byte{0x11}, 20),
		HashScheme:      hubMessage.HashSchemeBlake3,
		Signature:       bytes.Repeat([]byte{0x22}, 65),
		SignatureScheme: hubMessage.SignatureSchemeEIP712,
		Signer:          bytes.Repeat([]byte{0x33}, 20),
	}
}
