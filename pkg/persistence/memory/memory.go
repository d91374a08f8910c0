package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/farbook-go/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of IAttemptPersistence.
//
// All data is lost when the process exits, which is fine for the attempt audit
// trail of a single-user front-end. Copies on the way in and out prevent external
// mutation.
type MemoryPersistence struct {
	mu       sync.RWMutex
	attempts map[string]*persistence.AttemptRecord
	closed   bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		attempts: make(map[string]*persistence.AttemptRecord),
	}
}

// SaveAttempt upserts an attempt record.
func (m *MemoryPersistence) SaveAttempt(record *persistence.AttemptRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil AttemptRecord")
	}
	if record.AttemptID == "" {
		return fmt.Errorf("attempt record is missing attemptId")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	m.attempts[record.AttemptID] = record.Copy()
	return nil
}

// LoadAttempt retrieves an attempt record by id.
func (m *MemoryPersistence) LoadAttempt(attemptID string) (*persistence.AttemptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	record, exists := m.attempts[attemptID]
	if !exists {
		return nil, nil // Not found is not an error
	}
	return record.Copy(), nil
}

// ListAttempts returns all attempts sorted by creation time.
func (m *MemoryPersistence) ListAttempts() ([]*persistence.AttemptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	result := make([]*persistence.AttemptRecord, 0, len(m.attempts))
	for _, record := range m.attempts {
		result = append(result, record.Copy())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}

// DeleteAttempt removes an attempt record.
func (m *MemoryPersistence) DeleteAttempt(attemptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.attempts, attemptID)
	return nil
}

// Close marks the store closed and drops its contents.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.attempts = nil
	return nil
}

// HealthCheck verifies the store has not been closed.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return nil
}
