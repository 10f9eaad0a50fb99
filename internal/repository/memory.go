package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// MemoryIdentityRepository keeps identities in process memory. It backs
// STORE_TYPE=memory and the service tests.
type MemoryIdentityRepository struct {
	mu            sync.RWMutex
	byKey         map[string]*domain.Identity
	byFingerprint map[domain.Fingerprint]string
	now           func() time.Time
}

func NewMemoryIdentityRepository() *MemoryIdentityRepository {
	return &MemoryIdentityRepository{
		byKey:         make(map[string]*domain.Identity),
		byFingerprint: make(map[domain.Fingerprint]string),
		now:           time.Now,
	}
}

func (r *MemoryIdentityRepository) InsertIfAbsent(ctx context.Context, identity *domain.Identity) error {
	if err := ctx.Err(); err != nil {
		return storeError("insert identity", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[identity.Key]; exists {
		return domain.ErrKeyConflict
	}
	if identity.HasFingerprint() {
		if _, taken := r.byFingerprint[*identity.Fingerprint]; taken {
			return domain.ErrDuplicateImage
		}
	}

	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	now := r.now()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	stored := cloneIdentity(identity)
	r.byKey[stored.Key] = stored
	if stored.HasFingerprint() {
		r.byFingerprint[*stored.Fingerprint] = stored.Key
	}

	return nil
}

func (r *MemoryIdentityRepository) GetByKey(ctx context.Context, key string) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("get identity by unique_id", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byKey[key]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return cloneIdentity(identity), nil
}

func (r *MemoryIdentityRepository) GetByFingerprint(ctx context.Context, fingerprint domain.Fingerprint) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("get identity by fingerprint", err)
	}
	if fingerprint == "" {
		return nil, domain.ErrIdentityNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byFingerprint[fingerprint]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return cloneIdentity(r.byKey[key]), nil
}

// Iterate walks a snapshot taken under the read lock, in unique_id order.
// fn runs without the lock held so it may call back into the repository.
func (r *MemoryIdentityRepository) Iterate(ctx context.Context, fn func(*domain.Identity) error) error {
	r.mu.RLock()
	snapshot := make([]*domain.Identity, 0, len(r.byKey))
	for _, identity := range r.byKey {
		snapshot = append(snapshot, cloneIdentity(identity))
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Key < snapshot[j].Key
	})

	for _, identity := range snapshot {
		if err := ctx.Err(); err != nil {
			return storeError("iterate identities", err)
		}
		if err := fn(identity); err != nil {
			return err
		}
	}

	return nil
}

func (r *MemoryIdentityRepository) DeleteByKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return storeError("delete identity", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byKey[key]
	if !ok {
		return domain.ErrIdentityNotFound
	}

	delete(r.byKey, key)
	if identity.HasFingerprint() {
		delete(r.byFingerprint, *identity.Fingerprint)
	}

	return nil
}

func (r *MemoryIdentityRepository) UpdateDisplayName(ctx context.Context, key, displayName string) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("update identity name", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byKey[key]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}

	identity.DisplayName = displayName
	identity.UpdatedAt = r.now()

	return cloneIdentity(identity), nil
}

func (r *MemoryIdentityRepository) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("count identities", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.RegistryStats{Identities: len(r.byKey)}
	for _, identity := range r.byKey {
		if identity.Embedding.IsEmpty() {
			stats.Placeholders++
		}
	}

	return stats, nil
}

func (r *MemoryIdentityRepository) Ping(ctx context.Context) error {
	return nil
}

func cloneIdentity(identity *domain.Identity) *domain.Identity {
	c := *identity
	if identity.Embedding != nil {
		c.Embedding = append(domain.Embedding(nil), identity.Embedding...)
	}
	if identity.Fingerprint != nil {
		fp := *identity.Fingerprint
		c.Fingerprint = &fp
	}
	return &c
}
