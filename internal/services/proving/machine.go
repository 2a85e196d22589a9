// Package proving drives a user through binding one social account to an address.
//
// A Machine walks the platform's ordered steps, signs the claim, checks the
// platform for the published claim text and persists the resulting binding.
// State is exposed as immutable Snapshots; observers subscribe to changes
// instead of reading shared fields.
package proving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

const tracerName = "github.com/keymesh/socialproof/internal/services/proving"

// ErrClosed is returned by operations on a machine that has been closed.
var ErrClosed = errors.New("proving machine closed")

// Phase is the coarse position of a proving attempt.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseStep     Phase = "step"
	PhaseChecking Phase = "checking"
	PhaseDone     Phase = "done"
)

// BindingRecorder persists a checked binding for an address.
type BindingRecorder interface {
	CompleteBinding(ctx context.Context, key entity.RecordKey, social entity.BoundSocial) (*entity.VerificationsRecord, error)
}

// Config holds configuration for a Machine.
type Config struct {
	// NetworkID scopes the persisted binding.
	NetworkID entity.NetworkID

	// Logger is the structured logger.
	Logger *slog.Logger

	// Metrics records proof check outcomes (optional).
	Metrics outbound.MetricsRecorder

	// Events receives a BindingEvent when an attempt completes (optional).
	Events outbound.EventSink

	// Now is the clock used for event timestamps (optional).
	Now func() time.Time
}

// ConfigDefaults returns default configuration.
func ConfigDefaults() Config {
	return Config{
		NetworkID: entity.NetworkMainnet,
		Logger:    slog.Default(),
		Metrics:   outbound.NopMetrics{},
		Now:       time.Now,
	}
}

// Snapshot is an immutable view of a Machine's state.
type Snapshot struct {
	Platform    entity.Platform
	Phase       Phase
	Step        int
	Steps       []string
	Username    string
	Proving     bool
	Claim       *entity.SignedClaim
	LastResult  entity.VerifyResult
	BoundSocial *entity.BoundSocial
}

// Machine is the proving state machine for one platform and one attempt.
// It is safe for concurrent use; platform and storage I/O run without holding the lock.
type Machine struct {
	config   Config
	adapter  outbound.PlatformAdapter
	signer   outbound.Signer
	verifier outbound.SignatureVerifier
	bindings BindingRecorder
	logger   *slog.Logger

	// checks joins concurrent CheckProof calls onto one platform fetch.
	checks singleflight.Group

	mu         sync.Mutex
	phase      Phase
	step       int
	steps      []string
	identity   *entity.PlatformIdentity
	username   string
	claim      *entity.SignedClaim
	proving    bool
	lastResult entity.VerifyResult
	bound      *entity.BoundSocial
	closed     bool

	nextID      uint64
	callbacks   map[uint64]func(Snapshot)
	subscribers map[uint64]chan Snapshot
}

// NewMachine creates a machine in PhaseInit.
func NewMachine(config Config, adapter outbound.PlatformAdapter, signer outbound.Signer, verifier outbound.SignatureVerifier, bindings BindingRecorder) (*Machine, error) {
	if adapter == nil {
		return nil, fmt.Errorf("platform adapter is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("signature verifier is required")
	}
	if bindings == nil {
		return nil, fmt.Errorf("binding recorder is required")
	}

	defaults := ConfigDefaults()
	if config.NetworkID <= 0 {
		config.NetworkID = defaults.NetworkID
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Metrics == nil {
		config.Metrics = defaults.Metrics
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}

	steps := adapter.Steps()
	return &Machine{
		config:   config,
		adapter:  adapter,
		signer:   signer,
		verifier: verifier,
		bindings: bindings,
		logger: config.Logger.With(
			"component", "proving-machine",
			"platform", adapter.Platform(),
			"network", config.NetworkID,
		),
		phase:       PhaseInit,
		steps:       append([]string(nil), steps...),
		lastResult:  entity.VerifyUnknown,
		callbacks:   make(map[uint64]func(Snapshot)),
		subscribers: make(map[uint64]chan Snapshot),
	}, nil
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		Platform:   m.adapter.Platform(),
		Phase:      m.phase,
		Step:       m.step,
		Steps:      append([]string(nil), m.steps...),
		Username:   m.username,
		Proving:    m.proving,
		LastResult: m.lastResult,
	}
	if m.claim != nil {
		c := *m.claim
		s.Claim = &c
	}
	if m.bound != nil {
		b := *m.bound
		s.BoundSocial = &b
	}
	return s
}

// Continue advances one step. It is a no-op on the last step and after completion.
func (m *Machine) Continue() {
	m.mu.Lock()
	lastStep := m.step >= len(m.steps)-1
	if m.closed || m.phase == PhaseDone || (lastStep && m.phase != PhaseInit) {
		m.mu.Unlock()
		return
	}
	m.advanceLocked()
	m.mu.Unlock()
	m.notify()
}

// advanceLocked enters step 0 from PhaseInit, otherwise moves to the next step.
func (m *Machine) advanceLocked() {
	if m.phase == PhaseInit {
		m.phase = PhaseStep
		return
	}
	if m.step < len(m.steps)-1 {
		m.step++
	}
}

// Authorize records the platform identity obtained from the platform's login flow
// and advances past the authorization step, which is always step 0.
func (m *Machine) Authorize(identity entity.PlatformIdentity) error {
	if err := identity.Validate(m.adapter.Platform()); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	id := identity
	m.identity = &id
	if identity.Username != "" {
		m.username = identity.Username
	}
	if m.phase == PhaseInit {
		m.phase = PhaseStep
	}
	if m.step == 0 && len(m.steps) > 1 {
		m.step = 1
	}
	m.mu.Unlock()

	m.logger.Debug("platform identity authorized", "username", identity.Username)
	m.notify()
	return nil
}

// SetClaim builds and signs the claim for userAddress and publicKey.
// An empty username keeps the one obtained during authorization.
func (m *Machine) SetClaim(ctx context.Context, username, userAddress, publicKey string) error {
	claim, err := entity.NewClaim(userAddress, publicKey)
	if err != nil {
		return err
	}
	payload, err := claim.Payload()
	if err != nil {
		return err
	}

	signature, err := m.signer.Sign(ctx, payload)
	if err != nil {
		return fmt.Errorf("signing claim: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.claim = &entity.SignedClaim{Claim: claim, Signature: signature}
	m.proving = true
	if username != "" {
		m.username = username
	}
	m.mu.Unlock()

	m.notify()
	return nil
}

// ClaimText returns the exact text the user must publish.
func (m *Machine) ClaimText() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claim == nil {
		return "", fmt.Errorf("%w: claim has not been set", entity.ErrInvalidInput)
	}
	return m.adapter.BuildClaimText(*m.claim), nil
}

// CheckProof looks for the claim text among the user's published content.
//
// A match carrying a valid signature is persisted and completes the attempt
// with VerifyValid. A match whose signature does not verify returns
// VerifyInvalid. No match returns VerifyNotFound. Both leave the machine in
// PhaseChecking so the user can retry. Concurrent calls share one check. Fetch and persistence failures are returned and also leave the machine
// in PhaseChecking; rejected credentials send it back to the authorization step.
func (m *Machine) CheckProof(ctx context.Context) (entity.VerifyResult, error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return entity.VerifyUnknown, ErrClosed
	case m.phase == PhaseDone:
		result := m.lastResult
		m.mu.Unlock()
		return result, nil
	case m.claim == nil:
		m.mu.Unlock()
		return entity.VerifyUnknown, fmt.Errorf("%w: claim has not been set", entity.ErrInvalidInput)
	case m.identity == nil:
		m.mu.Unlock()
		return entity.VerifyUnknown, fmt.Errorf("%w: platform identity has not been authorized", entity.ErrInvalidInput)
	}
	m.phase = PhaseChecking
	claim := *m.claim
	identity := *m.identity
	username := m.username
	m.mu.Unlock()
	m.notify()

	v, err, _ := m.checks.Do("proof", func() (any, error) {
		return m.runCheck(ctx, claim, identity, username)
	})
	result, _ := v.(entity.VerifyResult)
	if result == "" {
		result = entity.VerifyUnknown
	}
	return result, err
}

func (m *Machine) runCheck(ctx context.Context, claim entity.SignedClaim, identity entity.PlatformIdentity, username string) (entity.VerifyResult, error) {
	m.mu.Lock()
	if m.phase == PhaseDone {
		result := m.lastResult
		m.mu.Unlock()
		return result, nil
	}
	m.mu.Unlock()

	platform := m.adapter.Platform()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "proving.checkProof",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("platform", string(platform)),
			attribute.Int("network", int(m.config.NetworkID)),
		),
	)
	defer span.End()

	start := time.Now()
	result, social, err := m.check(ctx, claim, identity, username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "proof check failed")
		m.handleCheckError(err)
		return entity.VerifyUnknown, err
	}
	span.SetAttributes(attribute.String("result", string(result)))
	m.config.Metrics.RecordProofCheck(ctx, platform, result, time.Since(start))

	if result != entity.VerifyValid {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return result, ErrClosed
		}
		m.lastResult = result
		m.mu.Unlock()
		m.notify()
		return result, nil
	}

	key := entity.NewRecordKey(m.config.NetworkID, claim.Claim.UserAddress)
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return result, ErrClosed
	}
	if _, err := m.bindings.CompleteBinding(ctx, key, *social); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persisting binding failed")
		return entity.VerifyUnknown, fmt.Errorf("persisting %s binding: %w", platform, err)
	}

	m.complete(ctx, key, *social)
	return entity.VerifyValid, nil
}

// check fetches candidates and matches them against the claim text. It holds no lock.
func (m *Machine) check(ctx context.Context, claim entity.SignedClaim, identity entity.PlatformIdentity, username string) (entity.VerifyResult, *entity.BoundSocial, error) {
	text := m.adapter.BuildClaimText(claim)

	candidates, err := m.adapter.FetchCandidates(ctx, identity)
	if err != nil {
		return entity.VerifyUnknown, nil, fmt.Errorf("fetching %s content: %w", m.adapter.Platform(), err)
	}

	for _, c := range candidates {
		if c.Text != text {
			continue
		}
		proofURL, err := m.adapter.ProofURL(c.ID, identity)
		if err != nil {
			m.logger.Warn("matching content has no usable proof url", "candidate", c.ID, "error", err)
			return entity.VerifyInvalid, nil, nil
		}
		if !m.signatureValid(claim) {
			return entity.VerifyInvalid, nil, nil
		}
		return entity.VerifyValid, &entity.BoundSocial{
			Platform:    m.adapter.Platform(),
			Status:      entity.BindingChecked,
			SignedClaim: claim,
			ProofURL:    proofURL,
			Username:    username,
		}, nil
	}

	m.logger.Info("claim not found in published content", "candidates", len(candidates))
	return entity.VerifyNotFound, nil, nil
}

// signatureValid reports whether the claim is signed by its own public key.
func (m *Machine) signatureValid(claim entity.SignedClaim) bool {
	payload, err := claim.Claim.Payload()
	if err != nil {
		m.logger.Warn("encoding claim payload", "error", err)
		return false
	}
	ok, err := m.verifier.Verify(payload, claim.Signature, claim.Claim.PublicKey)
	if err != nil {
		m.logger.Warn("claim signature is malformed", "error", err)
		return false
	}
	if !ok {
		m.logger.Warn("claim signature does not match public key")
	}
	return ok
}

func (m *Machine) handleCheckError(err error) {
	if !errors.Is(err, entity.ErrUnauthorized) {
		m.logger.Warn("proof check failed", "error", err)
		return
	}

	m.logger.Warn("platform rejected credentials, returning to authorization", "error", err)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.identity = nil
	m.phase = PhaseStep
	m.step = 0
	m.mu.Unlock()
	m.notify()
}

func (m *Machine) complete(ctx context.Context, key entity.RecordKey, social entity.BoundSocial) {
	m.mu.Lock()
	if m.closed || m.phase == PhaseDone {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseDone
	m.step = len(m.steps) - 1
	m.lastResult = entity.VerifyValid
	m.proving = false
	m.bound = &social
	callbacks := m.callbacks
	m.callbacks = make(map[uint64]func(Snapshot))
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("binding completed", "address", key.UserAddress, "proofURL", social.ProofURL)
	m.notify()
	for _, cb := range callbacks {
		cb(snap)
	}

	if m.config.Events != nil {
		event := outbound.BindingEvent{
			ID:          uuid.NewString(),
			NetworkID:   key.NetworkID,
			UserAddress: key.UserAddress,
			Social:      social,
			CompletedAt: m.config.Now().UTC(),
		}
		if err := m.config.Events.Publish(ctx, event); err != nil {
			m.logger.Warn("failed to publish binding event", "error", err)
		}
	}
}

// OnCompleted registers a one-shot callback fired when the attempt reaches PhaseDone.
// If the attempt is already done the callback fires immediately. The returned
// function unregisters the callback; it does not interrupt in-flight checks.
func (m *Machine) OnCompleted(fn func(Snapshot)) (unregister func()) {
	m.mu.Lock()
	if m.phase == PhaseDone {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		fn(snap)
		return func() {}
	}
	if m.closed {
		m.mu.Unlock()
		return func() {}
	}
	id := m.nextID
	m.nextID++
	m.callbacks[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.callbacks, id)
		m.mu.Unlock()
	}
}

// Subscribe returns a channel that receives a Snapshot after every state change.
// Slow subscribers miss intermediate snapshots; Snapshot() always has the latest.
func (m *Machine) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextID
	m.nextID++
	m.subscribers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			if _, ok := m.subscribers[id]; ok {
				delete(m.subscribers, id)
				close(ch)
			}
			m.mu.Unlock()
		})
	}
}

func (m *Machine) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	snap := m.snapshotLocked()
	for _, ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Close drops every callback and subscriber. Checks still in flight finish
// without touching state or persisting anything.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.callbacks = nil
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
}
