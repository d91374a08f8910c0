package keyGenerator

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/farbook-go/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Ed25519 sizes for signer keys
const (
	SeedSize      = 32
	PublicKeySize = 32
)

// GeneratedSignerKey is a freshly derived signer key pair plus the id it was issued under
type GeneratedSignerKey struct {
	KeyPair *types.KeyPair
	KeyId   string
}

func (gsk *GeneratedSignerKey) GetPublicKeyBytes() ([]byte, error) {
	if gsk.KeyPair == nil || len(gsk.KeyPair.PublicKey) == 0 {
		return nil, fmt.Errorf("public key is nil")
	}
	if len(gsk.KeyPair.PublicKey) != PublicKeySize {
		return nil, fmt.Errorf("unexpected public key length: %d", len(gsk.KeyPair.PublicKey))
	}
	return gsk.KeyPair.PublicKey, nil
}

// GetPublicKeyHex returns the 0x-prefixed hex public key sent to the signer request API
func (gsk *GeneratedSignerKey) GetPublicKeyHex() (string, error) {
	pubKeyBytes, err := gsk.GetPublicKeyBytes()
	if err != nil {
		return "", fmt.Errorf("failed to get public key bytes: %w", err)
	}
	return hexutil.Encode(pubKeyBytes), nil
}

type IKeyGenerator interface {
	GenerateKeyPair(ctx context.Context) (*GeneratedSignerKey, error)
}
