package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that VerificationRepository implements outbound.VerificationRepository
var _ outbound.VerificationRepository = (*VerificationRepository)(nil)

const verificationColumns = `network_id, user_address, binding_socials, bound_socials, last_fetch_block`

// VerificationRepository stores VerificationsRecords in the verifications table.
// The social maps are JSONB columns.
type VerificationRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewVerificationRepository creates a new PostgreSQL verification repository.
func NewVerificationRepository(pool *pgxpool.Pool, logger *slog.Logger) (*VerificationRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationRepository{
		pool:   pool,
		logger: logger.With("component", "postgres-verifications"),
	}, nil
}

// Create inserts an empty record for key.
func (r *VerificationRepository) Create(ctx context.Context, key entity.RecordKey) (*entity.VerificationsRecord, error) {
	key = entity.NewRecordKey(key.NetworkID, key.UserAddress)
	if err := key.Validate(); err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO verifications (network_id, user_address)
		VALUES ($1, $2)
		RETURNING `+verificationColumns,
		int(key.NetworkID), key.UserAddress)

	record, err := scanVerifications(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("verifications %s: %w", key, entity.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create verifications %s: %w", key, err)
	}
	return record, nil
}

// Get returns the record for key, or nil if none exists.
func (r *VerificationRepository) Get(ctx context.Context, key entity.RecordKey) (*entity.VerificationsRecord, error) {
	key = entity.NewRecordKey(key.NetworkID, key.UserAddress)
	row := r.pool.QueryRow(ctx, `
		SELECT `+verificationColumns+`
		FROM verifications
		WHERE network_id = $1 AND user_address = $2`,
		int(key.NetworkID), key.UserAddress)

	record, err := scanVerifications(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verifications %s: %w", key, err)
	}
	return record, nil
}

// Update merges the provided fields. NULL parameters leave their column untouched.
func (r *VerificationRepository) Update(ctx context.Context, key entity.RecordKey, update entity.VerificationsUpdate) (*entity.VerificationsRecord, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	key = entity.NewRecordKey(key.NetworkID, key.UserAddress)

	binding, err := marshalSocials(update.BindingSocials)
	if err != nil {
		return nil, err
	}
	bound, err := marshalSocials(update.BoundSocials)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE verifications SET
			binding_socials  = COALESCE($3::jsonb, binding_socials),
			bound_socials    = COALESCE($4::jsonb, bound_socials),
			last_fetch_block = COALESCE($5, last_fetch_block),
			updated_at       = NOW()
		WHERE network_id = $1 AND user_address = $2
		RETURNING `+verificationColumns,
		int(key.NetworkID), key.UserAddress, binding, bound, update.LastFetchBlock)

	record, err := scanVerifications(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("verifications %s: %w", key, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update verifications %s: %w", key, err)
	}
	return record, nil
}

// Delete removes the record for key. Deleting a missing record is not an error.
func (r *VerificationRepository) Delete(ctx context.Context, key entity.RecordKey) error {
	key = entity.NewRecordKey(key.NetworkID, key.UserAddress)
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM verifications WHERE network_id = $1 AND user_address = $2`,
		int(key.NetworkID), key.UserAddress)
	if err != nil {
		return fmt.Errorf("failed to delete verifications %s: %w", key, err)
	}
	r.logger.Debug("verifications deleted", "key", key.String(), "rows", tag.RowsAffected())
	return nil
}

func scanVerifications(row pgx.Row) (*entity.VerificationsRecord, error) {
	var (
		networkID      int
		record         entity.VerificationsRecord
		binding, bound []byte
	)
	if err := row.Scan(&networkID, &record.UserAddress, &binding, &bound, &record.LastFetchBlock); err != nil {
		return nil, err
	}
	record.NetworkID = entity.NetworkID(networkID)

	if err := json.Unmarshal(binding, &record.BindingSocials); err != nil {
		return nil, fmt.Errorf("decoding binding socials: %w", err)
	}
	if err := json.Unmarshal(bound, &record.BoundSocials); err != nil {
		return nil, fmt.Errorf("decoding bound socials: %w", err)
	}
	if record.BindingSocials == nil {
		record.BindingSocials = entity.SocialMap{}
	}
	if record.BoundSocials == nil {
		record.BoundSocials = entity.SocialMap{}
	}
	return &record, nil
}

// marshalSocials encodes m for a JSONB parameter. A nil map encodes as SQL NULL.
func marshalSocials(m entity.SocialMap) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding socials: %w", err)
	}
	return data, nil
}
