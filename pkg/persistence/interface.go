package persistence

// IAttemptPersistence stores the audit trail of connect attempts.
// All implementations must be thread-safe: the flow, its polling goroutine and HTTP
// handlers write concurrently.
//
// Records never contain private key material.
type IAttemptPersistence interface {
	// SaveAttempt upserts a record keyed by AttemptID.
	SaveAttempt(record *AttemptRecord) error

	// LoadAttempt returns nil when the attempt doesn't exist, error only on storage failure.
	LoadAttempt(attemptID string) (*AttemptRecord, error)

	// ListAttempts returns all records sorted by CreatedAt (ascending).
	// Returns empty slice if none exist.
	ListAttempts() ([]*AttemptRecord, error)

	// DeleteAttempt is idempotent.
	DeleteAttempt(attemptID string) error

	// Close is idempotent. After Close(), all other operations return errors.
	Close() error

	// HealthCheck returns nil if the store is operational.
	HealthCheck() error
}
