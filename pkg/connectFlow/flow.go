package connectFlow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/farbook-go/internal/keyGenerator"
	"github.com/Layr-Labs/farbook-go/pkg/clients/hubClient"
	"github.com/Layr-Labs/farbook-go/pkg/clients/warpcast"
	"github.com/Layr-Labs/farbook-go/pkg/hubMessage"
	"github.com/Layr-Labs/farbook-go/pkg/metrics"
	"github.com/Layr-Labs/farbook-go/pkg/persistence"
	"github.com/Layr-Labs/farbook-go/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

/*
Flow drives one signer connect widget.

	Idle --Connect--> Requesting --token--> AwaitingApproval --poll--> Approved --Submit--> Submitted
	                      |                                                 |
	                      +--error--> Idle                       error: stays Approved

Every Connect starts a new attempt with its own key pair, signer request token and
polling goroutine. Starting an attempt cancels the previous attempt's poller, and
results that arrive for a replaced attempt are dropped, so only the current attempt
ever writes state.
*/

// Config wires a Flow to its collaborators
type Config struct {
	// AppName is sent as the signer request name
	AppName string

	KeyGenerator   keyGenerator.IKeyGenerator
	SignerRequests warpcast.ISignerRequestClient
	Approvals      warpcast.IApprovalClient
	Hub            hubClient.IHubClient

	// Store records attempts for diagnostics. Optional.
	Store persistence.IAttemptPersistence
	// Metrics is optional
	Metrics *metrics.Metrics

	PollPolicy PollPolicy
	Logger     *zap.Logger
}

// Snapshot is a point-in-time copy of the flow's UI state
type Snapshot struct {
	State     State  `json:"state"`
	AttemptID string `json:"attemptId,omitempty"`

	PublicKey string `json:"publicKey,omitempty"`
	Token     string `json:"token,omitempty"`
	QRPayload string `json:"qrPayload,omitempty"`

	Approved            bool   `json:"approved"`
	Fid                 uint64 `json:"fid,omitempty"`
	Base64SignedMessage string `json:"-"`

	PollCount int `json:"pollCount"`

	CanConnect bool `json:"canConnect"`
	CanSubmit  bool `json:"canSubmit"`
}

// attempt is everything owned by a single connect attempt
type attempt struct {
	id           string
	keyPair      *types.KeyPair
	publicKeyHex string
	request      *types.SignerRequest
	approval     *types.SignerApproval
	pollCount    int
	submitCount  int
	lastError    string
	createdAt    time.Time

	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

// Flow is the connect/poll/submit state machine. Safe for concurrent use.
type Flow struct {
	appName        string
	keyGenerator   keyGenerator.IKeyGenerator
	signerRequests warpcast.ISignerRequestClient
	approvals      warpcast.IApprovalClient
	hub            hubClient.IHubClient
	records        *recordWriter
	metrics        *metrics.Metrics
	pollPolicy     PollPolicy
	logger         *zap.Logger

	mu      sync.Mutex
	state   State
	current *attempt
	changed chan struct{}
	closed  bool

	// pollers outlive the request that started them
	baseCtx    context.Context
	baseCancel context.CancelFunc
	pollers    sync.WaitGroup
}

// NewFlow creates an idle flow
func NewFlow(cfg *Config) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.AppName == "" {
		return nil, fmt.Errorf("app name is required")
	}
	if cfg.KeyGenerator == nil {
		return nil, fmt.Errorf("key generator is required")
	}
	if cfg.SignerRequests == nil {
		return nil, fmt.Errorf("signer request client is required")
	}
	if cfg.Approvals == nil {
		return nil, fmt.Errorf("approval client is required")
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("hub client is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	var records *recordWriter
	if cfg.Store != nil {
		records = newRecordWriter(cfg.Store, cfg.Logger)
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Flow{
		appName:        cfg.AppName,
		keyGenerator:   cfg.KeyGenerator,
		signerRequests: cfg.SignerRequests,
		approvals:      cfg.Approvals,
		hub:            cfg.Hub,
		records:        records,
		metrics:        cfg.Metrics,
		pollPolicy:     cfg.PollPolicy.withDefaults(),
		logger:         cfg.Logger,
		state:          StateIdle,
		changed:        make(chan struct{}),
		baseCtx:        baseCtx,
		baseCancel:     baseCancel,
	}, nil
}

// Snapshot returns the current UI state
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      f.state,
		CanConnect: !f.closed && CanTransition(f.state, StateRequesting),
		CanSubmit:  !f.closed && (f.state == StateApproved || f.state == StateSubmitted),
	}
	a := f.current
	if a == nil {
		return s
	}
	s.AttemptID = a.id
	s.PublicKey = a.publicKeyHex
	s.PollCount = a.pollCount
	if a.request != nil {
		s.Token = a.request.Token
		s.QRPayload = a.request.QRPayload()
	}
	if a.approval != nil {
		s.Approved = true
		s.Fid = a.approval.Fid
		s.Base64SignedMessage = a.approval.Base64SignedMessage
	}
	return s
}

// Changed returns a channel that is closed on the next state change
func (f *Flow) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

// WaitForState blocks until the flow reaches one of states or ctx is done
func (f *Flow) WaitForState(ctx context.Context, states ...State) (Snapshot, error) {
	for {
		f.mu.Lock()
		snap := f.snapshotLocked()
		changed := f.changed
		f.mu.Unlock()

		for _, s := range states {
			if snap.State == s {
				return snap, nil
			}
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// setStateLocked moves the flow to next and wakes waiters. Caller holds f.mu.
func (f *Flow) setStateLocked(next State) error {
	if err := checkTransition(f.state, next); err != nil {
		return err
	}
	f.state = next
	close(f.changed)
	f.changed = make(chan struct{})
	return nil
}

// Connect starts a new attempt: generate a key pair, create a signer request and
// start polling for approval. Any previous attempt is discarded. On failure the flow
// returns to Idle and the error is returned after being logged.
func (f *Flow) Connect(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: flow is closed", ErrInvalidTransition)
	}
	if err := f.setStateLocked(StateRequesting); err != nil {
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, err
	}

	if prev := f.current; prev != nil {
		f.discardLocked(prev)
	}

	id := uuid.New().String()
	a := &attempt{
		id:        id,
		createdAt: time.Now(),
		logger:    f.logger.With(zap.String("attempt_id", id)),
	}
	f.current = a
	f.persistLocked(a)
	f.mu.Unlock()

	a.logger.Sugar().Infow("Starting connect attempt")

	publicKeyHex, keyPair, err := f.generateKey(ctx)
	if err != nil {
		return f.failRequest(a, fmt.Errorf("failed to generate signer key: %w", err))
	}

	f.mu.Lock()
	if f.current != a || f.closed {
		f.mu.Unlock()
		keyPair.Zero()
		return f.Snapshot(), ErrAttemptSuperseded
	}
	a.keyPair = keyPair
	a.publicKeyHex = publicKeyHex
	f.persistLocked(a)
	f.mu.Unlock()

	request, err := f.signerRequests.CreateSignerRequest(ctx, publicKeyHex, f.appName)
	if err != nil {
		return f.failRequest(a, fmt.Errorf("failed to create signer request: %w", err))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != a || f.closed {
		return f.snapshotLocked(), ErrAttemptSuperseded
	}

	a.request = request
	if err := f.setStateLocked(StateAwaitingApproval); err != nil {
		return f.snapshotLocked(), err
	}
	f.persistLocked(a)
	f.metrics.ConnectAttempt(metrics.ResultSuccess)

	a.logger.Sugar().Infow("Signer request created",
		"public_key", publicKeyHex,
		"qr_payload", request.QRPayload(),
	)

	f.startPollerLocked(a)
	return f.snapshotLocked(), nil
}

func (f *Flow) generateKey(ctx context.Context) (string, *types.KeyPair, error) {
	key, err := f.keyGenerator.GenerateKeyPair(ctx)
	if err != nil {
		return "", nil, err
	}
	publicKeyHex, err := key.GetPublicKeyHex()
	if err != nil {
		key.KeyPair.Zero()
		return "", nil, err
	}
	return publicKeyHex, key.KeyPair, nil
}

// failRequest returns a Requesting attempt to Idle
func (f *Flow) failRequest(a *attempt, err error) (Snapshot, error) {
	a.logger.Sugar().Errorw("Error connecting with Warpcast", "error", err)
	f.metrics.ConnectAttempt(metrics.ResultFailure)

	f.mu.Lock()
	defer f.mu.Unlock()

	a.lastError = err.Error()
	if f.current != a {
		return f.snapshotLocked(), ErrAttemptSuperseded
	}
	if setErr := f.setStateLocked(StateIdle); setErr != nil {
		return f.snapshotLocked(), setErr
	}
	f.persistLocked(a)
	a.keyPair.Zero()
	return f.snapshotLocked(), err
}

// discardLocked cancels an attempt's poller and wipes its key. Caller holds f.mu.
func (f *Flow) discardLocked(a *attempt) {
	if a.cancel != nil {
		a.cancel()
	}
	a.keyPair.Zero()
	a.logger.Sugar().Infow("Discarded connect attempt")
}

func (f *Flow) startPollerLocked(a *attempt) {
	ctx, cancel := context.WithCancel(f.baseCtx)
	a.cancel = cancel
	a.done = make(chan struct{})

	f.pollers.Add(1)
	f.metrics.PollerStarted()
	go func() {
		defer f.pollers.Done()
		defer f.metrics.PollerStopped()
		defer close(a.done)
		f.pollForApproval(ctx, a, a.request.Token)
	}()
}

// pollForApproval waits the poll interval, then asks for the request status, until the
// request is approved, the policy gives up, or ctx is cancelled. Poll errors are logged
// and retried.
func (f *Flow) pollForApproval(ctx context.Context, a *attempt, token string) {
	interval := f.pollPolicy.Interval
	polls := 0

	for {
		if f.pollPolicy.exhausted(polls) {
			f.pollExhausted(a, polls)
			return
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Sugar().Debugw("Approval polling stopped", "polls", polls)
			return
		case <-timer.C:
		}

		res, err := f.approvals.GetSignerRequestStatus(ctx, token)
		polls++
		f.recordPoll(a, polls)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.metrics.Poll(metrics.ResultError)
			a.logger.Sugar().Warnw("Polling error", "error", err, "poll", polls)
			interval = f.pollPolicy.next(interval)
			continue
		}

		approval := res.Approval()
		if approval == nil {
			f.metrics.Poll(metrics.ResultPending)
			a.logger.Sugar().Debugw("Polling response", "poll", polls, "approved", false)
			interval = f.pollPolicy.next(interval)
			continue
		}

		f.metrics.Poll(metrics.ResultApproved)
		f.approve(a, approval)
		return
	}
}

func (f *Flow) recordPoll(a *attempt, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != a {
		return
	}
	a.pollCount = polls
	f.persistLocked(a)
}

// approve moves the current attempt to Approved. Results for replaced attempts are
// dropped.
func (f *Flow) approve(a *attempt, approval *types.SignerApproval) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current != a || f.state != StateAwaitingApproval {
		a.logger.Sugar().Warnw("Dropping approval for stale attempt", "fid", approval.Fid)
		return
	}

	a.approval = approval
	if err := f.setStateLocked(StateApproved); err != nil {
		a.logger.Sugar().Errorw("Failed to mark signer approved", "error", err)
		return
	}
	f.persistLocked(a)
	a.logger.Sugar().Infow("Signer is approved", "fid", approval.Fid)
}

func (f *Flow) pollExhausted(a *attempt, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a.lastError = ErrPollAttemptsExhausted.Error()
	a.logger.Sugar().Warnw("Giving up on signer approval", "polls", polls)
	if f.current != a || f.state != StateAwaitingApproval {
		return
	}
	if err := f.setStateLocked(StateIdle); err != nil {
		a.logger.Sugar().Errorw("Failed to reset flow", "error", err)
		return
	}
	f.persistLocked(a)
	a.keyPair.Zero()
}

// Submit decodes the approved signed message and submits it to the hub. It may be
// called repeatedly; every call submits once. A failed submit leaves the flow Approved.
func (f *Flow) Submit(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	if f.closed || f.current == nil || f.current.approval == nil ||
		(f.state != StateApproved && f.state != StateSubmitted) {
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, ErrNotApproved
	}
	a := f.current
	approval := *a.approval
	a.submitCount++
	f.persistLocked(a)
	f.mu.Unlock()

	msg, err := hubMessage.DecodeBase64(approval.Base64SignedMessage)
	if err != nil {
		return f.failSubmit(a, fmt.Errorf("failed to decode signed message: %w", err))
	}

	if _, err := f.hub.SubmitMessage(ctx, msg); err != nil {
		return f.failSubmit(a, err)
	}

	f.metrics.Submission(metrics.ResultSuccess)
	a.logger.Sugar().Infow("Message submitted to Hub",
		"fid", approval.Fid,
		"message_fid", msg.Fid(),
		"hash_len", len(msg.Hash),
	)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != a {
		return f.snapshotLocked(), ErrAttemptSuperseded
	}
	a.lastError = ""
	if err := f.setStateLocked(StateSubmitted); err != nil {
		return f.snapshotLocked(), err
	}
	f.persistLocked(a)
	return f.snapshotLocked(), nil
}

func (f *Flow) failSubmit(a *attempt, err error) (Snapshot, error) {
	f.metrics.Submission(metrics.ResultFailure)
	a.logger.Sugar().Errorw("Error submitting message to Hub", "error", err)

	f.mu.Lock()
	defer f.mu.Unlock()
	a.lastError = err.Error()
	if f.current == a {
		f.persistLocked(a)
	}
	return f.snapshotLocked(), err
}

// persistLocked queues the attempt record for the writer. Store failures are only
// logged.
func (f *Flow) persistLocked(a *attempt) {
	if f.records == nil {
		return
	}
	record := &persistence.AttemptRecord{
		AttemptID:    a.id,
		State:        f.state.String(),
		PublicKeyHex: a.publicKeyHex,
		PollCount:    a.pollCount,
		SubmitCount:  a.submitCount,
		LastError:    a.lastError,
		CreatedAt:    a.createdAt.UnixMilli(),
		UpdatedAt:    time.Now().UnixMilli(),
	}
	if a.request != nil {
		record.Token = a.request.Token
	}
	if a.approval != nil {
		record.Fid = a.approval.Fid
	}
	f.records.enqueue(record)
}

// Flush blocks until every attempt record queued so far has reached the store
func (f *Flow) Flush() {
	f.records.flush()
}

// PollerRunning reports whether the current attempt's poller is still running
func (f *Flow) PollerRunning() bool {
	f.mu.Lock()
	a := f.current
	f.mu.Unlock()
	if a == nil || a.done == nil {
		return false
	}
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// Close cancels any running poller, wipes key material, waits for pollers to exit and
// writes the attempt records still queued
func (f *Flow) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	if f.current != nil {
		f.discardLocked(f.current)
	}
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()

	f.baseCancel()
	f.pollers.Wait()
	f.records.close()
	return nil
}

// IsSuperseded reports whether err means the attempt was replaced mid-flight
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrAttemptSuperseded)
}
