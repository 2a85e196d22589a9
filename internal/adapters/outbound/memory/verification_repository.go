// verification_repository.go provides an in-memory implementation of VerificationRepository.
//
// Records are keyed by the canonical RecordKey encoding and deep-copied on the
// way in and out, so callers never share map storage with the store.
//
// All operations are thread-safe using sync.RWMutex. Data is lost on process restart.
// For production use, see the postgres adapter.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that VerificationRepository implements outbound.VerificationRepository
var _ outbound.VerificationRepository = (*VerificationRepository)(nil)

// VerificationRepository is an in-memory VerificationRepository.
type VerificationRepository struct {
	mu      sync.RWMutex
	records map[string]*entity.VerificationsRecord
}

// NewVerificationRepository creates an empty repository.
func NewVerificationRepository() *VerificationRepository {
	return &VerificationRepository{
		records: make(map[string]*entity.VerificationsRecord),
	}
}

// Create inserts an empty record for key.
func (r *VerificationRepository) Create(ctx context.Context, key entity.RecordKey) (*entity.VerificationsRecord, error) {
	key = entity.NewRecordKey(key.NetworkID, key.UserAddress)
	if err := key.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[key.String()]; ok {
		return nil, fmt.Errorf("verifications %s: %w", key, entity.ErrAlreadyExists)
	}
	record := entity.NewVerificationsRecord(key)
	r.records[key.String()] = record
	return record.Clone(), nil
}

// Get returns the record for key, or nil if absent.
func (r *VerificationRepository) Get(ctx context.Context, key entity.RecordKey) (*entity.VerificationsRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[key.String()].Clone(), nil
}

// Update merges the provided fields into the stored record.
func (r *VerificationRepository) Update(ctx context.Context, key entity.RecordKey, update entity.VerificationsUpdate) (*entity.VerificationsRecord, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key.String()]
	if !ok {
		return nil, fmt.Errorf("verifications %s: %w", key, entity.ErrNotFound)
	}
	update.Apply(record)
	return record.Clone(), nil
}

// Delete removes the record for key.
func (r *VerificationRepository) Delete(ctx context.Context, key entity.RecordKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key.String())
	return nil
}

// Len returns the number of stored records.
func (r *VerificationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
