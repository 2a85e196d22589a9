// Package identity serves chain identities and avatar fingerprints for one network.
//
// Lookups for the same address share one in-flight fetch. Settled fetches are
// evicted from the in-flight set immediately; successes are then served from a
// TTL cache, and failures are either retried on the next call (FailureRetry)
// or replayed for a short window (FailureBackoff).
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/pkg/hexutil"
	"github.com/keymesh/socialproof/internal/pkg/ttlcache"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

const tracerName = "github.com/keymesh/socialproof/internal/services/identity"

// FailurePolicy decides what later callers see after a lookup fails.
type FailurePolicy int

const (
	// FailureRetry lets the next call fetch again.
	FailureRetry FailurePolicy = iota
	// FailureBackoff replays the failure until Config.FailureBackoff elapses.
	FailureBackoff
)

// ParseFailurePolicy converts "retry" or "backoff" into a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "retry":
		return FailureRetry, nil
	case "backoff":
		return FailureBackoff, nil
	default:
		return 0, fmt.Errorf("%w: unknown failure policy %q", entity.ErrInvalidInput, s)
	}
}

// Config holds configuration for a Cache.
type Config struct {
	// NetworkID scopes every key of the cache.
	NetworkID entity.NetworkID

	// TTL is how long a successful lookup is served from memory.
	TTL time.Duration

	// FailurePolicy selects retry-on-next-call or replay-for-a-while.
	FailurePolicy FailurePolicy

	// FailureBackoff is the replay window for FailureBackoff.
	FailureBackoff time.Duration

	Logger  *slog.Logger
	Metrics outbound.MetricsRecorder
	Now     ttlcache.Clock
}

// ConfigDefaults returns default configuration.
func ConfigDefaults() Config {
	return Config{
		NetworkID:      entity.NetworkMainnet,
		TTL:            10 * time.Minute,
		FailurePolicy:  FailureRetry,
		FailureBackoff: 30 * time.Second,
		Logger:         slog.Default(),
		Metrics:        outbound.NopMetrics{},
		Now:            time.Now,
	}
}

// Cache serves identities, avatar hashes and cached verifications for one network.
type Cache struct {
	config   Config
	store    outbound.UserCacheRepository
	resolver outbound.IdentityResolver
	logger   *slog.Logger

	group      singleflight.Group
	identities *ttlcache.Cache[string, entity.Identity]
	avatars    *ttlcache.Cache[string, string]
	failures   *ttlcache.Cache[string, error]
}

// NewCache creates a Cache backed by store and resolver.
func NewCache(config Config, store outbound.UserCacheRepository, resolver outbound.IdentityResolver) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("user cache repository is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}

	defaults := ConfigDefaults()
	if config.NetworkID <= 0 {
		config.NetworkID = defaults.NetworkID
	}
	if config.TTL == 0 {
		config.TTL = defaults.TTL
	}
	if config.FailureBackoff <= 0 {
		config.FailureBackoff = defaults.FailureBackoff
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

	return &Cache{
		config:     config,
		store:      store,
		resolver:   resolver,
		logger:     config.Logger.With("component", "identity-cache", "network", config.NetworkID),
		identities: ttlcache.New[string, entity.Identity](config.TTL, config.Now),
		avatars:    ttlcache.New[string, string](config.TTL, config.Now),
		failures:   ttlcache.New[string, error](config.FailureBackoff, config.Now),
	}, nil
}

// NetworkID returns the network this cache is scoped to.
func (c *Cache) NetworkID() entity.NetworkID {
	return c.config.NetworkID
}

func (c *Cache) recordKey(addr string) entity.RecordKey {
	return entity.NewRecordKey(c.config.NetworkID, addr)
}

func validateAddress(addr string) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("%w: empty address", entity.ErrInvalidInput)
	}
	if !entity.IsAddress(addr) {
		return "", fmt.Errorf("%w: invalid ethereum address %q", entity.ErrInvalidInput, addr)
	}
	return entity.NormalizeAddress(addr), nil
}

// GetIdentity returns the identity registered for userAddress.
// Returns entity.ErrNotFound when the address never registered a public key.
func (c *Cache) GetIdentity(ctx context.Context, userAddress string) (*entity.Identity, error) {
	addr, err := validateAddress(userAddress)
	if err != nil {
		return nil, err
	}

	if id, ok := c.identities.Get(addr); ok {
		c.config.Metrics.RecordCacheLookup(ctx, "identity", true)
		return &id, nil
	}
	c.config.Metrics.RecordCacheLookup(ctx, "identity", false)

	id, err := flight(ctx, c, "identity:"+addr, func(ctx context.Context) (entity.Identity, error) {
		return c.loadIdentity(ctx, addr)
	})
	if err != nil {
		return nil, err
	}
	c.identities.Set(addr, id)
	return &id, nil
}

func (c *Cache) loadIdentity(ctx context.Context, addr string) (entity.Identity, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "identity.load",
		trace.WithAttributes(
			attribute.Int("network", int(c.config.NetworkID)),
			attribute.String("address", addr),
		),
	)
	defer span.End()

	key := c.recordKey(addr)
	cached, err := c.store.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		return entity.Identity{}, fmt.Errorf("loading user cache %s: %w", key, err)
	}
	if cached != nil && !cached.Identity.IsEmpty() {
		span.SetAttributes(attribute.Bool("identity.persisted", true))
		return *cached.Identity, nil
	}

	chain, err := c.resolver.GetIdentity(ctx, addr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolving identity failed")
		return entity.Identity{}, fmt.Errorf("resolving identity of %s: %w", addr, err)
	}
	if hexutil.IsZero(chain.PublicKey) {
		return entity.Identity{}, fmt.Errorf("cannot find user %s: %w", addr, entity.ErrNotFound)
	}

	blockHash, err := c.resolver.BlockHash(ctx, chain.BlockNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolving block hash failed")
		return entity.Identity{}, fmt.Errorf("resolving block hash %d: %w", chain.BlockNumber, err)
	}

	id := entity.Identity{
		PublicKey:   chain.PublicKey,
		BlockNumber: chain.BlockNumber,
		BlockHash:   blockHash,
	}

	if cached == nil {
		record := entity.NewUserCache(key)
		record.Identity = &id
		if _, err := c.store.Create(ctx, record); err != nil {
			if errors.Is(err, entity.ErrAlreadyExists) {
				return entity.Identity{}, fmt.Errorf("user cache %s created concurrently: %w", key, entity.ErrConflict)
			}
			return entity.Identity{}, fmt.Errorf("creating user cache %s: %w", key, err)
		}
	} else if _, err := c.store.Update(ctx, key, entity.UserCacheUpdate{Identity: &id}); err != nil {
		return entity.Identity{}, fmt.Errorf("updating user cache %s: %w", key, err)
	}

	c.logger.Debug("identity resolved", "address", addr, "blockNumber", id.BlockNumber)
	return id, nil
}

// GetAvatarHash returns keccak256(address + blockHash) of the identity, as 0x-prefixed hex.
// The address is the lowercase form.
func (c *Cache) GetAvatarHash(ctx context.Context, userAddress string) (string, error) {
	addr, err := validateAddress(userAddress)
	if err != nil {
		return "", err
	}

	if hash, ok := c.avatars.Get(addr); ok {
		c.config.Metrics.RecordCacheLookup(ctx, "avatar", true)
		return hash, nil
	}
	c.config.Metrics.RecordCacheLookup(ctx, "avatar", false)

	hash, err := flight(ctx, c, "avatar:"+addr, func(ctx context.Context) (string, error) {
		id, err := c.GetIdentity(ctx, addr)
		if err != nil {
			return "", err
		}
		return AvatarHash(addr, id.BlockHash), nil
	})
	if err != nil {
		return "", err
	}
	c.avatars.Set(addr, hash)
	return hash, nil
}

// AvatarHash derives the avatar fingerprint of an address from its registration block hash.
func AvatarHash(userAddress, blockHash string) string {
	return crypto.Keccak256Hash([]byte(userAddress + blockHash)).Hex()
}

// GetVerifications returns the cached verification state, with an empty entry
// for every platform that has none.
func (c *Cache) GetVerifications(ctx context.Context, userAddress string) (entity.CachedVerifications, error) {
	addr, err := validateAddress(userAddress)
	if err != nil {
		return nil, err
	}
	cached, err := c.store.Get(ctx, c.recordKey(addr))
	if err != nil {
		return nil, fmt.Errorf("loading user cache: %w", err)
	}

	verifications := entity.NewCachedVerifications()
	if cached != nil {
		for p, v := range cached.Verifications.Clone() {
			verifications[p] = v
		}
	}
	return verifications, nil
}

// SetVerifications replaces the cached verification state of userAddress.
func (c *Cache) SetVerifications(ctx context.Context, userAddress string, verifications entity.CachedVerifications) error {
	addr, err := validateAddress(userAddress)
	if err != nil {
		return err
	}
	key := c.recordKey(addr)
	update := entity.UserCacheUpdate{Verifications: verifications.Clone()}
	if update.Verifications == nil {
		update.Verifications = entity.NewCachedVerifications()
	}

	cached, err := c.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("loading user cache %s: %w", key, err)
	}
	if cached == nil {
		record := entity.NewUserCache(key)
		update.Apply(record)
		_, err = c.store.Create(ctx, record)
		if !errors.Is(err, entity.ErrAlreadyExists) {
			if err != nil {
				return fmt.Errorf("creating user cache %s: %w", key, err)
			}
			return nil
		}
	}
	if _, err := c.store.Update(ctx, key, update); err != nil {
		return fmt.Errorf("updating user cache %s: %w", key, err)
	}
	return nil
}

// ValidateReceiver checks that receiver is a well-formed address other than
// self that has a registered identity. Malformed input fails without any I/O.
func (c *Cache) ValidateReceiver(ctx context.Context, receiver, self string) error {
	if err := entity.ValidateReceiver(receiver, self); err != nil {
		return err
	}
	if _, err := c.GetIdentity(ctx, receiver); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return fmt.Errorf("%w: user %s had not registered", entity.ErrUnverified, receiver)
		}
		return err
	}
	return nil
}

// Invalidate drops every in-memory entry for userAddress.
func (c *Cache) Invalidate(userAddress string) {
	addr := entity.NormalizeAddress(userAddress)
	c.identities.Delete(addr)
	c.avatars.Delete(addr)
	c.failures.Delete("identity:" + addr)
	c.failures.Delete("avatar:" + addr)
}

// Reset drops every in-memory entry. Persisted identities are kept.
func (c *Cache) Reset() {
	c.identities.Purge()
	c.avatars.Purge()
	c.failures.Purge()
}

// flight runs fn at most once concurrently per key. The fetch runs detached from
// the caller's cancellation so other callers attached to it are unaffected; each
// caller still returns as soon as its own context is done.
func flight[T any](ctx context.Context, c *Cache, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.config.FailurePolicy == FailureBackoff {
		if err, ok := c.failures.Get(key); ok {
			return zero, err
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil && c.config.FailurePolicy == FailureBackoff && !errors.Is(err, entity.ErrInvalidInput) {
			c.failures.Set(key, err)
		}
		return v, err
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
