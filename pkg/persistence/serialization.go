package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalAttemptRecord serializes an AttemptRecord to JSON bytes.
func MarshalAttemptRecord(record *AttemptRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil AttemptRecord")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal AttemptRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalAttemptRecord deserializes an AttemptRecord from JSON bytes.
func UnmarshalAttemptRecord(data []byte) (*AttemptRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record AttemptRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to AttemptRecord: %w", err)
	}
	if record.AttemptID == "" {
		return nil, fmt.Errorf("attempt record is missing attemptId")
	}

	return &record, nil
}
