package localKeyGenerator

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/Layr-Labs/farbook-go/internal/keyGenerator"
	"github.com/Layr-Labs/farbook-go/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalKeyGenerator derives Ed25519 signer keys from locally drawn random seeds.
// Nothing is retained: the caller owns the returned key pair.
type LocalKeyGenerator struct {
	logger *zap.Logger
	rand   io.Reader
}

func NewLocalKeyGenerator(logger *zap.Logger) *LocalKeyGenerator {
	return &LocalKeyGenerator{
		logger: logger,
		rand:   rand.Reader,
	}
}

// NewLocalKeyGeneratorWithReader uses the supplied entropy source. Used by tests to get
// deterministic keys.
func NewLocalKeyGeneratorWithReader(logger *zap.Logger, r io.Reader) *LocalKeyGenerator {
	return &LocalKeyGenerator{
		logger: logger,
		rand:   r,
	}
}

func (l *LocalKeyGenerator) GenerateKeyPair(ctx context.Context) (*keyGenerator.GeneratedSignerKey, error) {
	seed := make([]byte, keyGenerator.SeedSize)
	if _, err := io.ReadFull(l.rand, seed); err != nil {
		return nil, fmt.Errorf("failed to read random seed: %w", err)
	}

	kp, err := KeyPairFromSeed(seed)
	if err != nil {
		return nil, err
	}

	keyId := fmt.Sprintf("local-signer-%s", uuid.New().String())

	l.logger.Debug("Generated local signer key",
		zap.String("keyId", keyId),
		zap.Int("publicKeyLen", len(kp.PublicKey)),
	)

	return &keyGenerator.GeneratedSignerKey{
		KeyPair: kp,
		KeyId:   keyId,
	}, nil
}

// KeyPairFromSeed deterministically derives the Ed25519 key pair for a 32 byte seed
func KeyPairFromSeed(seed []byte) (*types.KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	privateKey := make([]byte, ed25519.SeedSize)
	copy(privateKey, seed)

	return &types.KeyPair{
		PublicKey:  []byte(pub),
		PrivateKey: privateKey,
	}, nil
}
