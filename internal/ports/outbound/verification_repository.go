// Package outbound contains the secondary/outbound ports.
// These interfaces define what the application needs from infrastructure.
package outbound

import (
	"context"

	"github.com/keymesh/socialproof/internal/domain/entity"
)

// VerificationRepository is the durable store of per-(network, address) social bindings.
// Every write is durable before the call returns. Implementations do not retry.
type VerificationRepository interface {
	// Create inserts an empty record for key.
	// Returns entity.ErrAlreadyExists if the key is taken.
	Create(ctx context.Context, key entity.RecordKey) (*entity.VerificationsRecord, error)

	// Get returns the record for key, or nil (with no error) if absent.
	Get(ctx context.Context, key entity.RecordKey) (*entity.VerificationsRecord, error)

	// Update merges the provided top-level fields and returns the post-update record.
	// Returns entity.ErrNotFound if no record exists for key.
	Update(ctx context.Context, key entity.RecordKey, update entity.VerificationsUpdate) (*entity.VerificationsRecord, error)

	// Delete removes the record. Deleting a missing key is not an error.
	Delete(ctx context.Context, key entity.RecordKey) error
}
