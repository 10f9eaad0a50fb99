package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

const fingerprintConstraint = "identities_fingerprint_unique"

// isUniqueViolation checks if the error is a unique constraint violation
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "23505") ||
		strings.Contains(errMsg, "unique") ||
		strings.Contains(errMsg, "duplicate key")
}

// violatedConstraint returns the constraint name of a postgres error, or the
// fingerprint constraint when only the message mentions it
func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	if err != nil && strings.Contains(err.Error(), fingerprintConstraint) {
		return fingerprintConstraint
	}
	return ""
}

// storeError classifies a driver failure as a timeout or an unavailable store
func storeError(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout.WithError(wrapped)
	}
	return domain.ErrStoreUnavailable.WithError(wrapped)
}

func toVector(e domain.Embedding) *pgvector.Vector {
	if e.IsEmpty() {
		return nil
	}
	floats := make([]float32, len(e))
	for i, v := range e {
		floats[i] = float32(v)
	}
	vec := pgvector.NewVector(floats)
	return &vec
}

func fromVector(vec *pgvector.Vector) domain.Embedding {
	if vec == nil || vec.Slice() == nil {
		return nil
	}
	e := make(domain.Embedding, len(vec.Slice()))
	for i, v := range vec.Slice() {
		e[i] = float64(v)
	}
	return e
}
