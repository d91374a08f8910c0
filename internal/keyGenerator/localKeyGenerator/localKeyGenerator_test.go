package localKeyGenerator

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/Layr-Labs/farbook-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup() (*LocalKeyGenerator, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{
		Debug: true,
	})
	if err != nil {
		return nil, err
	}

	generator := NewLocalKeyGenerator(l)
	return generator, nil
}

func Test_LocalKeyGenerator(t *testing.T) {
	generator, err := setup()
	if err != nil {
		t.Fatalf("Failed to setup test: %v", err)
	}

	t.Run("Should generate a 32 byte key pair", func(t *testing.T) {
		result, err := generator.GenerateKeyPair(context.Background())
		require.NoError(t, err)
		require.NotNil(t, result)
		require.NotNil(t, result.KeyPair)

		assert.Len(t, result.KeyPair.PublicKey, 32)
		assert.Len(t, result.KeyPair.PrivateKey, 32)
		assert.True(t, strings.HasPrefix(result.KeyId, "local-signer-"))
	})

	t.Run("Should generate distinct key pairs across calls", func(t *testing.T) {
		seenPub := make(map[string]bool)
		seenPriv := make(map[string]bool)
		for i := 0; i < 10; i++ {
			result, err := generator.GenerateKeyPair(context.Background())
			require.NoError(t, err)

			pub := string(result.KeyPair.PublicKey)
			priv := string(result.KeyPair.PrivateKey)
			assert.False(t, seenPub[pub], "duplicate public key generated")
			assert.False(t, seenPriv[priv], "duplicate seed generated")
			seenPub[pub] = true
			seenPriv[priv] = true
		}
	})

	t.Run("Should derive a public key that verifies signatures from the seed", func(t *testing.T) {
		result, err := generator.GenerateKeyPair(context.Background())
		require.NoError(t, err)

		priv := ed25519.NewKeyFromSeed(result.KeyPair.PrivateKey)
		msg := []byte("signer check")
		sig := ed25519.Sign(priv, msg)
		assert.True(t, ed25519.Verify(result.KeyPair.PublicKey, msg, sig))
	})

	t.Run("Should hex encode the public key with 0x prefix", func(t *testing.T) {
		result, err := generator.GenerateKeyPair(context.Background())
		require.NoError(t, err)

		hexKey, err := result.GetPublicKeyHex()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hexKey, "0x"))
		assert.Len(t, hexKey, 66)
	})

	t.Run("Should zero the seed", func(t *testing.T) {
		result, err := generator.GenerateKeyPair(context.Background())
		require.NoError(t, err)

		result.KeyPair.Zero()
		assert.Equal(t, make([]byte, 32), result.KeyPair.PrivateKey)
		assert.Len(t, result.KeyPair.PublicKey, 32)
	})
}

func Test_KeyPairFromSeed(t *testing.T) {
	t.Run("Should be deterministic for the same seed", func(t *testing.T) {
		seed := bytes.Repeat([]byte{7}, 32)
		a, err := KeyPairFromSeed(seed)
		require.NoError(t, err)
		b, err := KeyPairFromSeed(seed)
		require.NoError(t, err)
		assert.Equal(t, a.PublicKey, b.PublicKey)
		assert.Equal(t, seed, a.PrivateKey)
	})

	t.Run("Should reject short seeds", func(t *testing.T) {
		_, err := KeyPairFromSeed([]byte{1, 2, 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "seed must be 32 bytes")
	})

	t.Run("Should surface entropy failures", func(t *testing.T) {
		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
		require.NoError(t, err)

		gen := NewLocalKeyGeneratorWithReader(l, bytes.NewReader([]byte{1, 2}))
		_, err = gen.GenerateKeyPair(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read random seed")
	})

	t.Run("Should derive the same key as the injected entropy", func(t *testing.T) {
		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
		require.NoError(t, err)

		seed := bytes.Repeat([]byte{9}, 32)
		gen := NewLocalKeyGeneratorWithReader(l, bytes.NewReader(seed))
		result, err := gen.GenerateKeyPair(context.Background())
		require.NoError(t, err)

		expected, err := KeyPairFromSeed(seed)
		require.NoError(t, err)
		assert.Equal(t, expected.PublicKey, result.KeyPair.PublicKey)
	})
}
