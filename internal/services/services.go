package services

import (
	"fmt"

	"github.com/Layr-Labs/farbook-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/farbook-go/pkg/clients/hubClient"
	"github.com/Layr-Labs/farbook-go/pkg/clients/warpcast"
	"github.com/Layr-Labs/farbook-go/pkg/config"
	"github.com/Layr-Labs/farbook-go/pkg/connectFlow"
	"github.com/Layr-Labs/farbook-go/pkg/metrics"
	"github.com/Layr-Labs/farbook-go/pkg/persistence"
	"github.com/Layr-Labs/farbook-go/pkg/persistence/badger"
	"github.com/Layr-Labs/farbook-go/pkg/persistence/memory"
	"github.com/Layr-Labs/farbook-go/pkg/persistence/redis"
	"go.uber.org/zap"
)

// Services is everything a connect flow front-end needs, built from one ServerConfig
type Services struct {
	Store persistence.IAttemptPersistence
	Hub   *hubClient.HubClient
	Flow  *connectFlow.Flow

	logger *zap.Logger
}

// NewAttemptStore opens the attempt store selected by cfg.PersistenceType
func NewAttemptStore(cfg *config.ServerConfig, l *zap.Logger) (persistence.IAttemptPersistence, error) {
	switch cfg.PersistenceType {
	case config.PersistenceTypeMemory, "":
		l.Sugar().Infow("Using in-memory attempt store")
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceTypeBadger:
		store, err := badger.NewBadgerPersistence(cfg.BadgerPath, l)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.PersistenceTypeRedis:
		store, err := redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported persistence type %q, expected one of: %s",
			cfg.PersistenceType, config.GetSupportedPersistenceTypesString())
	}
}

// NewServices opens the attempt store, the Warpcast and hub clients and the connect
// flow. m may be nil.
func NewServices(cfg *config.ServerConfig, m *metrics.Metrics, l *zap.Logger) (*Services, error) {
	store, err := NewAttemptStore(cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to open attempt store: %w", err)
	}

	warpcastClient, err := warpcast.NewClient(&warpcast.ClientConfig{
		SignerRequestURL: cfg.SignerRequestURL,
		APIBaseURL:       cfg.WarpcastAPIURL,
		Timeout:          cfg.HTTPTimeout,
		Logger:           l,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create Warpcast client: %w", err)
	}

	hub, err := hubClient.NewHubClient(&hubClient.HubClientConfig{
		Address:  cfg.HubAddress,
		Insecure: cfg.HubInsecure,
		Timeout:  cfg.HTTPTimeout,
		Logger:   l,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create hub client: %w", err)
	}

	flow, err := connectFlow.NewFlow(&connectFlow.Config{
		AppName:        cfg.AppName,
		KeyGenerator:   localKeyGenerator.NewLocalKeyGenerator(l),
		SignerRequests: warpcastClient,
		Approvals:      warpcastClient,
		Hub:            hub,
		Store:          store,
		Metrics:        m,
		PollPolicy:     connectFlow.PollPolicyFromConfig(cfg.Poll),
		Logger:         l,
	})
	if err != nil {
		_ = hub.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to create connect flow: %w", err)
	}

	return &Services{
		Store:  store,
		Hub:    hub,
		Flow:   flow,
		logger: l,
	}, nil
}

// Close stops the flow's poller, then closes the hub connection and the store
func (s *Services) Close() error {
	var firstErr error
	if err := s.Flow.Close(); err != nil {
		firstErr = err
	}
	if err := s.Hub.Close(); err != nil {
		s.logger.Sugar().Warnw("Failed to close hub client", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := s.Store.Close(); err != nil {
		s.logger.Sugar().Warnw("Failed to close attempt store", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
