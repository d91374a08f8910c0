package persistence

// AttemptRecord captures one connect attempt as the flow moves through its states.
type AttemptRecord struct {
	// AttemptID is the correlation id logged with every event of the attempt
	AttemptID string `json:"attemptId"`

	// State is the flow state name ("requesting", "awaiting_approval", ...)
	State string `json:"state"`

	PublicKeyHex string `json:"publicKeyHex,omitempty"`
	Token        string `json:"token,omitempty"`
	Fid          uint64 `json:"fid,omitempty"`

	// PollCount is the number of approval polls issued so far
	PollCount int `json:"pollCount"`

	// SubmitCount counts submit calls, successful or not
	SubmitCount int `json:"submitCount"`

	LastError string `json:"lastError,omitempty"`

	// Unix milliseconds
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Copy returns a detached copy of the record
func (r *AttemptRecord) Copy() *AttemptRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
