package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

const identityColumns = `id, unique_id, display_name, embedding, fingerprint, created_at, updated_at`

type IdentityRepository struct {
	pool PgxPool
}

func NewIdentityRepository(pool PgxPool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) InsertIfAbsent(ctx context.Context, identity *domain.Identity) error {
	query := `
		INSERT INTO identities (id, unique_id, display_name, embedding, fingerprint, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (unique_id) DO NOTHING
		RETURNING created_at, updated_at
	`

	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		identity.ID,
		identity.Key,
		identity.DisplayName,
		toVector(identity.Embedding),
		fingerprintArg(identity.Fingerprint),
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrKeyConflict
	}
	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == fingerprintConstraint {
				return domain.ErrDuplicateImage.WithError(err)
			}
			return domain.ErrKeyConflict.WithError(err)
		}
		return storeError("insert identity", err)
	}

	return nil
}

func (r *IdentityRepository) GetByKey(ctx context.Context, key string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE unique_id = $1`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, storeError("get identity by unique_id", err)
	}

	return identity, nil
}

func (r *IdentityRepository) GetByFingerprint(ctx context.Context, fingerprint domain.Fingerprint) (*domain.Identity, error) {
	if fingerprint == "" {
		return nil, domain.ErrIdentityNotFound
	}

	query := `SELECT ` + identityColumns + ` FROM identities WHERE fingerprint = $1`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, string(fingerprint)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, storeError("get identity by fingerprint", err)
	}

	return identity, nil
}

// Iterate streams identities in unique_id order so scans are reproducible
func (r *IdentityRepository) Iterate(ctx context.Context, fn func(*domain.Identity) error) error {
	query := `SELECT ` + identityColumns + ` FROM identities ORDER BY unique_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return storeError("iterate identities", err)
	}
	defer rows.Close()

	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return storeError("scan identity", err)
		}
		if err := fn(identity); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return storeError("iterate identities", err)
	}

	return nil
}

func (r *IdentityRepository) DeleteByKey(ctx context.Context, key string) error {
	query := `
		DELETE FROM identities
		WHERE unique_id = $1
	`

	result, err := r.pool.Exec(ctx, query, key)
	if err != nil {
		return storeError("delete identity", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}

	return nil
}

func (r *IdentityRepository) UpdateDisplayName(ctx context.Context, key, displayName string) (*domain.Identity, error) {
	query := `
		UPDATE identities
		SET display_name = $2, updated_at = NOW()
		WHERE unique_id = $1
		RETURNING ` + identityColumns

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, key, displayName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, storeError("update identity name", err)
	}

	return identity, nil
}

func (r *IdentityRepository) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE embedding IS NULL)
		FROM identities
	`

	var stats domain.RegistryStats
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.Identities, &stats.Placeholders); err != nil {
		return nil, storeError("count identities", err)
	}

	return &stats, nil
}

func (r *IdentityRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var identity domain.Identity
	var embedding *pgvector.Vector
	var fingerprint *string

	err := row.Scan(
		&identity.ID,
		&identity.Key,
		&identity.DisplayName,
		&embedding,
		&fingerprint,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	identity.Embedding = fromVector(embedding)
	if fingerprint != nil {
		fp := domain.Fingerprint(*fingerprint)
		identity.Fingerprint = &fp
	}

	return &identity, nil
}

func fingerprintArg(fp *domain.Fingerprint) *string {
	if fp == nil || *fp == "" {
		return nil
	}
	s := string(*fp)
	return &s
}
