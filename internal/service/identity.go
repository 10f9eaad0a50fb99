package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/saturnino-fabrica-de-software/faceid/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/fingerprint"
	"github.com/saturnino-fabrica-de-software/faceid/internal/lock"
	"github.com/saturnino-fabrica-de-software/faceid/internal/matching"
	"github.com/saturnino-fabrica-de-software/faceid/internal/metrics"
)

// enrollmentLock serialises classify+insert across every writer sharing the locker
const enrollmentLock = "enrollment"

type IdentityStore interface {
	GetByKey(ctx context.Context, key string) (*domain.Identity, error)
	GetByFingerprint(ctx context.Context, fingerprint domain.Fingerprint) (*domain.Identity, error)
	Iterate(ctx context.Context, fn func(*domain.Identity) error) error
	InsertIfAbsent(ctx context.Context, identity *domain.Identity) error
	DeleteByKey(ctx context.Context, key string) error
	UpdateDisplayName(ctx context.Context, key, displayName string) (*domain.Identity, error)
	Stats(ctx context.Context) (*domain.RegistryStats, error)
}

// EmbeddingPipeline turns a photo into the embedding of its first face
type EmbeddingPipeline interface {
	FirstFaceEmbedding(ctx context.Context, image []byte) (domain.Embedding, error)
}

type IdentityService struct {
	store    IdentityStore
	engine   *matching.Engine
	locker   lock.Locker
	pipeline EmbeddingPipeline
	audit    audit.Logger
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewIdentityService(store IdentityStore, engine *matching.Engine, logger *slog.Logger) *IdentityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityService{
		store:  store,
		engine: engine,
		locker: lock.NewMemoryLocker(),
		audit:  &audit.NoOpLogger{},
		logger: logger,
	}
}

// WithLocker replaces the process-local enrollment lock, e.g. with a Redis lock
// shared by every API instance
func (s *IdentityService) WithLocker(locker lock.Locker) *IdentityService {
	s.locker = locker
	return s
}

func (s *IdentityService) WithPipeline(pipeline EmbeddingPipeline) *IdentityService {
	s.pipeline = pipeline
	return s
}

func (s *IdentityService) WithAudit(logger audit.Logger) *IdentityService {
	if logger != nil {
		s.audit = logger
	}
	return s
}

func (s *IdentityService) WithMetrics(m *metrics.Metrics) *IdentityService {
	s.metrics = m
	return s
}

// Enroll registers a new identity. An empty fingerprint marks an enrollment
// without a source photo and skips the exact-duplicate check.
func (s *IdentityService) Enroll(ctx context.Context, key, displayName string, embedding domain.Embedding, fp domain.Fingerprint) (*domain.Identity, error) {
	identity, err := s.enroll(ctx, key, displayName, embedding, fp)
	s.recordEnrollment(ctx, key, err)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *IdentityService) enroll(ctx context.Context, key, displayName string, embedding domain.Embedding, fp domain.Fingerprint) (*domain.Identity, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateName(displayName); err != nil {
		return nil, err
	}
	if err := embedding.Validate(); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, enrollmentLock)
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithError(fmt.Errorf("enroll %s: %w", key, err))
	}
	defer release()

	if err := s.ensureKeyFree(ctx, key); err != nil {
		return nil, err
	}

	outcome, err := s.engine.Classify(ctx, embedding, fp, s.store)
	if err != nil {
		return nil, err
	}

	switch outcome.Kind {
	case matching.ExactDuplicate:
		return nil, domain.NewDuplicateImageError(outcome.Existing.Key, outcome.Existing.DisplayName)
	case matching.FaceAlreadyEnrolled:
		return nil, domain.NewDuplicateFaceError(outcome.Existing.Key, outcome.Existing.DisplayName, outcome.Distance)
	}

	identity := &domain.Identity{
		Key:         key,
		DisplayName: displayName,
		Embedding:   append(domain.Embedding(nil), embedding...),
	}
	if fp != "" {
		identity.Fingerprint = &fp
	}

	if err := s.store.InsertIfAbsent(ctx, identity); err != nil {
		if errors.Is(err, domain.ErrDuplicateImage) {
			return nil, s.describeDuplicateImage(ctx, fp, err)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "identity enrolled",
		"unique_id", identity.Key,
		"fingerprint", identity.HasFingerprint(),
	)
	return identity, nil
}

// ensureKeyFree is the optimistic pre-check; InsertIfAbsent stays the authority
func (s *IdentityService) ensureKeyFree(ctx context.Context, key string) error {
	_, err := s.store.GetByKey(ctx, key)
	switch {
	case err == nil:
		return domain.ErrKeyConflict
	case errors.Is(err, domain.ErrIdentityNotFound):
		return nil
	default:
		return err
	}
}

// describeDuplicateImage adds the colliding identity to a fingerprint
// violation raised by the store after a concurrent insert
func (s *IdentityService) describeDuplicateImage(ctx context.Context, fp domain.Fingerprint, cause error) error {
	existing, err := s.store.GetByFingerprint(ctx, fp)
	if err != nil {
		return cause
	}
	return domain.NewDuplicateImageError(existing.Key, existing.DisplayName)
}

// EnrollImage fingerprints the photo, extracts the first face and enrolls it.
// Key and exact-photo collisions are reported before the provider is called.
func (s *IdentityService) EnrollImage(ctx context.Context, key, displayName string, image []byte) (*domain.Identity, error) {
	embedding, fp, err := s.prepareImage(ctx, key, image)
	if err != nil {
		s.recordEnrollment(ctx, key, err)
		return nil, err
	}
	return s.Enroll(ctx, key, displayName, embedding, fp)
}

func (s *IdentityService) prepareImage(ctx context.Context, key string, image []byte) (domain.Embedding, domain.Fingerprint, error) {
	if err := validateKey(key); err != nil {
		return nil, "", err
	}

	fp, err := fingerprint.FromBytes(image)
	if err != nil {
		return nil, "", domain.ErrInvalidImage.WithError(err)
	}

	if err := s.ensureKeyFree(ctx, key); err != nil {
		return nil, "", err
	}

	existing, err := s.store.GetByFingerprint(ctx, fp)
	switch {
	case err == nil:
		return nil, "", domain.NewDuplicateImageError(existing.Key, existing.DisplayName)
	case !errors.Is(err, domain.ErrIdentityNotFound):
		return nil, "", err
	}

	embedding, err := s.extract(ctx, image)
	if err != nil {
		return nil, "", err
	}
	return embedding, fp, nil
}

// Authenticate returns the closest enrolled identity, or nil when nobody is
// within tolerance
func (s *IdentityService) Authenticate(ctx context.Context, probe domain.Embedding) (*domain.MatchResult, error) {
	match, err := s.engine.Authenticate(ctx, probe, s.store)
	s.recordAuthentication(ctx, match, err)
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (s *IdentityService) AuthenticateImage(ctx context.Context, image []byte) (*domain.MatchResult, error) {
	if _, _, err := fingerprint.Decode(image); err != nil {
		s.recordAuthentication(ctx, nil, domain.ErrInvalidImage)
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	probe, err := s.extract(ctx, image)
	if err != nil {
		s.recordAuthentication(ctx, nil, err)
		return nil, err
	}

	return s.Authenticate(ctx, probe)
}

func (s *IdentityService) extract(ctx context.Context, image []byte) (domain.Embedding, error) {
	if s.pipeline == nil {
		return nil, domain.ErrProviderUnavailable.WithError(errors.New("no face pipeline configured"))
	}
	return s.pipeline.FirstFaceEmbedding(ctx, image)
}

// Delete removes an identity. Deleting a missing key returns
// domain.ErrIdentityNotFound and changes nothing.
func (s *IdentityService) Delete(ctx context.Context, key string) error {
	err := s.store.DeleteByKey(ctx, key)

	event := audit.Event{
		EventType:   audit.EventIdentityDeleted,
		IdentityKey: key,
		Success:     err == nil,
	}
	if err != nil {
		event.Reason = errorCode(err)
	}
	_ = s.audit.Log(ctx, event)

	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "identity deleted", "unique_id", key)
	return nil
}

func (s *IdentityService) Get(ctx context.Context, key string) (*domain.Identity, error) {
	return s.store.GetByKey(ctx, key)
}

// Rename changes display_name only; embedding and fingerprint are immutable
func (s *IdentityService) Rename(ctx context.Context, key, displayName string) (*domain.Identity, error) {
	if strings.TrimSpace(displayName) == "" {
		return nil, domain.ErrInvalidInput.WithError(errors.New("name is required"))
	}
	if err := validateName(displayName); err != nil {
		return nil, err
	}

	identity, err := s.store.UpdateDisplayName(ctx, key, displayName)
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, audit.Event{
		EventType:   audit.EventIdentityRenamed,
		IdentityKey: key,
		Success:     true,
	})
	return identity, nil
}

func (s *IdentityService) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	return s.store.Stats(ctx)
}

func (s *IdentityService) Count(ctx context.Context) (int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Identities, nil
}

func (s *IdentityService) recordEnrollment(ctx context.Context, key string, err error) {
	outcome := enrollmentOutcome(err)
	s.metrics.IncrementEnrollment(outcome)

	if err == nil {
		_ = s.audit.Log(ctx, audit.Event{
			EventType:   audit.EventIdentityEnrolled,
			IdentityKey: key,
			Success:     true,
		})
		return
	}

	event := audit.Event{
		EventType:   audit.EventIdentityRejected,
		IdentityKey: key,
		Success:     false,
		Reason:      errorCode(err),
	}

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		if matched, ok := appErr.Details["unique_id"].(string); ok {
			event.MatchedKey = matched
		}
	}
	_ = s.audit.Log(ctx, event)

	if outcome == "error" {
		s.logger.ErrorContext(ctx, "enrollment failed", "unique_id", key, "error", err)
	}
}

func (s *IdentityService) recordAuthentication(ctx context.Context, match *domain.MatchResult, err error) {
	event := audit.Event{EventType: audit.EventIdentityAuthenticated}

	switch {
	case err != nil:
		s.metrics.IncrementAuthentication("error")
		event.Reason = errorCode(err)
	case match == nil:
		s.metrics.IncrementAuthentication("no_match")
		event.Reason = domain.ErrNoMatch.Code
	default:
		s.metrics.IncrementAuthentication("match")
		event.Success = true
		event.MatchedKey = match.IdentityKey
	}

	_ = s.audit.Log(ctx, event)
}

func enrollmentOutcome(err error) string {
	switch {
	case err == nil:
		return "enrolled"
	case errors.Is(err, domain.ErrDuplicateImage):
		return "duplicate_image"
	case errors.Is(err, domain.ErrDuplicateFace):
		return "duplicate_face"
	case errors.Is(err, domain.ErrKeyConflict):
		return "key_conflict"
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidImage),
		errors.Is(err, domain.ErrNoFaceDetected):
		return "invalid_input"
	default:
		return "error"
	}
}

func errorCode(err error) string {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return "CANCELED"
	}
	return domain.ErrInternal.Code
}

// Limits match the unique_id and display_name column widths
const (
	maxKeyLength  = 255
	maxNameLength = 255
)

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrInvalidInput.WithError(errors.New("unique_id is required"))
	}
	if utf8.RuneCountInString(key) > maxKeyLength {
		return domain.ErrInvalidInput.WithError(fmt.Errorf("unique_id exceeds %d characters", maxKeyLength))
	}
	return nil
}

func validateName(displayName string) error {
	if utf8.RuneCountInString(displayName) > maxNameLength {
		return domain.ErrInvalidInput.WithError(fmt.Errorf("name exceeds %d characters", maxNameLength))
	}
	return nil
}
