package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool used by the repositories.
// pgxmock.PgxPoolIface satisfies it as well.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// IdentityRepositoryInterface defines operations for identity data access.
// Implementations must enforce unique_id uniqueness atomically on insert and
// give read-after-write visibility to the inserting caller.
type IdentityRepositoryInterface interface {
	// GetByKey returns domain.ErrIdentityNotFound when no identity has the key
	GetByKey(ctx context.Context, key string) (*domain.Identity, error)
	// GetByFingerprint is an exact match; identities without fingerprint never match
	GetByFingerprint(ctx context.Context, fingerprint domain.Fingerprint) (*domain.Identity, error)
	// Iterate calls fn for every stored identity until fn returns an error
	Iterate(ctx context.Context, fn func(*domain.Identity) error) error
	// InsertIfAbsent returns domain.ErrKeyConflict when the key is taken and
	// domain.ErrDuplicateImage when the fingerprint is taken
	InsertIfAbsent(ctx context.Context, identity *domain.Identity) error
	DeleteByKey(ctx context.Context, key string) error
	UpdateDisplayName(ctx context.Context, key, displayName string) (*domain.Identity, error)
	Stats(ctx context.Context) (*domain.RegistryStats, error)
	Ping(ctx context.Context) error
}

var (
	_ IdentityRepositoryInterface = (*IdentityRepository)(nil)
	_ IdentityRepositoryInterface = (*MemoryIdentityRepository)(nil)
)
