package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalAttemptRecord_Nil(t *testing.T) {
	_, err := MarshalAttemptRecord(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil AttemptRecord")
}

func TestUnmarshalAttemptRecord_Errors(t *testing.T) {
	_, err := UnmarshalAttemptRecord(nil)
	assert.ErrorContains(t, err, "cannot unmarshal empty data")

	_, err = UnmarshalAttemptRecord([]byte("{"))
	assert.ErrorContains(t, err, "failed to unmarshal JSON")

	_, err = UnmarshalAttemptRecord([]byte(`{"state":"idle"}`))
	assert.ErrorContains(t, err, "missing attemptId")
}

func TestMarshalAttemptRecord_OmitsEmptyFields(t *testing.T) {
	data, err := MarshalAttemptRecord(&AttemptRecord{AttemptID: "a1", State: "requesting", CreatedAt: 1})
	require.NoError(t, err)

	s := string(data)
	assert.NotContains(t, s, "token")
	assert.NotContains(t, s, "fid")
	assert.NotContains(t, s, "lastError")

	restored, err := UnmarshalAttemptRecord(data)
	require.NoError(t, err)
	assert.Equal(t, "a1", restored.AttemptID)
	assert.Equal(t, "requesting", restored.State)
}

func TestAttemptRecord_Copy(t *testing.T) {
	var nilRecord *AttemptRecord
	assert.Nil(t, nilRecord.Copy())

	r := &AttemptRecord{AttemptID: "a1", Token: "abc"}
	c := r.Copy()
	c.Token = "changed"
	assert.Equal(t, "abc", r.Token)
}
