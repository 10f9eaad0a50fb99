package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/faceid/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/lock"
	"github.com/saturnino-fabrica-de-software/faceid/internal/matching"
	"github.com/saturnino-fabrica-de-software/faceid/internal/metrics"
	"github.com/saturnino-fabrica-de-software/faceid/internal/repository"
)

type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) GetByKey(ctx context.Context, key string) (*domain.Identity, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockIdentityStore) GetByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Identity, error) {
	args := m.Called(ctx, fp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockIdentityStore) Iterate(ctx context.Context, fn func(*domain.Identity) error) error {
	args := m.Called(ctx, fn)
	if identities, ok := args.Get(0).([]*domain.Identity); ok {
		for _, identity := range identities {
			if err := fn(identity); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

func (m *MockIdentityStore) InsertIfAbsent(ctx context.Context, identity *domain.Identity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *MockIdentityStore) DeleteByKey(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdentityStore) UpdateDisplayName(ctx context.Context, key, displayName string) (*domain.Identity, error) {
	args := m.Called(ctx, key, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockIdentityStore) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegistryStats), args.Error(1)
}

type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) FirstFaceEmbedding(ctx context.Context, image []byte) (domain.Embedding, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Embedding), args.Error(1)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type noLock struct{}

func (noLock) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

type failingLock struct{}

func (failingLock) Acquire(context.Context, string) (func(), error) {
	return nil, errors.New("redis: connection refused")
}

func vec(x float64) domain.Embedding {
	e := make(domain.Embedding, domain.EmbeddingDimension)
	e[0] = x
	return e
}

// withComponent is vec(x) with e[1] set to v
func withComponent(x, v float64) domain.Embedding {
	e := vec(x)
	e[1] = v
	return e
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemoryService() (*IdentityService, *repository.MemoryIdentityRepository) {
	store := repository.NewMemoryIdentityRepository()
	return NewIdentityService(store, matching.NewEngine(quietLogger()), quietLogger()), store
}

func assertAppError(t *testing.T, err error, want *domain.AppError) *domain.AppError {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, want)

	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr
}

func TestIdentityService_Scenario(t *testing.T) {
	svc, _ := newMemoryService()
	ctx := context.Background()

	alice, err := svc.Enroll(ctx, "alice", "Alice", vec(0), "h1")
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Key)

	_, err = svc.Enroll(ctx, "bob", "Bob", vec(0), "h1")
	appErr := assertAppError(t, err, domain.ErrDuplicateImage)
	assert.Equal(t, "alice", appErr.Details["unique_id"])
	assert.Equal(t, "Alice", appErr.Details["name"])

	_, err = svc.Enroll(ctx, "carol", "Carol", vec(0.3), "h2")
	appErr = assertAppError(t, err, domain.ErrDuplicateFace)
	assert.Equal(t, "alice", appErr.Details["unique_id"])
	assert.InDelta(t, 0.3, appErr.Details["distance"], 1e-12)

	match, err := svc.Authenticate(ctx, vec(0))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "alice", match.IdentityKey)
	assert.Equal(t, "Alice", match.IdentityName)
	assert.Equal(t, 0.0, match.Distance)

	require.NoError(t, svc.Delete(ctx, "alice"))

	match, err = svc.Authenticate(ctx, vec(0))
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestIdentityService_Enroll_Tolerance(t *testing.T) {
	tests := []struct {
		name    string
		second  domain.Embedding
		wantErr error
	}{
		{name: "distance at tolerance is a duplicate", second: vec(0.4), wantErr: domain.ErrDuplicateFace},
		{name: "distance above tolerance enrolls", second: vec(0.4 + 1e-9)},
		{name: "far face enrolls", second: vec(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newMemoryService()
			ctx := context.Background()

			_, err := svc.Enroll(ctx, "alice", "Alice", vec(0), "h1")
			require.NoError(t, err)

			_, err = svc.Enroll(ctx, "dave", "Dave", tt.second, "h2")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestIdentityService_Enroll_InputErrors(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		displayName string
		embedding   domain.Embedding
	}{
		{name: "empty key", key: "", embedding: vec(0)},
		{name: "blank key", key: "   ", embedding: vec(0)},
		{name: "key too long", key: strings.Repeat("k", 256), embedding: vec(0)},
		{name: "name too long", key: "alice", displayName: strings.Repeat("n", 256), embedding: vec(0)},
		{name: "short embedding", key: "alice", embedding: make(domain.Embedding, 64)},
		{name: "missing embedding", key: "alice", embedding: nil},
		{name: "NaN component", key: "alice", embedding: withComponent(0, math.NaN())},
		{name: "infinite component", key: "alice", embedding: withComponent(0, math.Inf(1))},
		{name: "negative infinite component", key: "alice", embedding: withComponent(0, math.Inf(-1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockIdentityStore)
			svc := NewIdentityService(store, matching.NewEngine(quietLogger()), quietLogger())

			name := tt.displayName
			if name == "" {
				name = "Alice"
			}
			_, err := svc.Enroll(context.Background(), tt.key, name, tt.embedding, "h1")

			appErr := assertAppError(t, err, domain.ErrInvalidInput)
			assert.Equal(t, 422, appErr.StatusCode)
			store.AssertNotCalled(t, "InsertIfAbsent", mock.Anything, mock.Anything)
		})
	}
}

func TestIdentityService_Enroll_NonFiniteDoesNotBypassFaceCheck(t *testing.T) {
	svc, store := newMemoryService()
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "alice", "Alice", vec(0), "h1")
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, "mallory", "Mallory", withComponent(0, math.NaN()), "h2")
	assertAppError(t, err, domain.ErrInvalidInput)

	_, err = store.GetByKey(ctx, "mallory")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIdentityService_Enroll_StoreInteractions(t *testing.T) {
	alice := &domain.Identity{Key: "alice", DisplayName: "Alice", Embedding: vec(0)}

	tests := []struct {
		name       string
		setupMocks func(*MockIdentityStore)
		wantErr    error
		check      func(*testing.T, error)
	}{
		{
			name: "key already present",
			setupMocks: func(s *MockIdentityStore) {
				s.On("GetByKey", mock.Anything, "bob").Return(alice, nil)
			},
			wantErr: domain.ErrKeyConflict,
		},
		{
			name: "key claimed by concurrent writer",
			setupMocks: func(s *MockIdentityStore) {
				s.On("GetByKey", mock.Anything, "bob").Return(nil, domain.ErrIdentityNotFound)
				s.On("GetByFingerprint", mock.Anything, domain.Fingerprint("h2")).Return(nil, domain.ErrIdentityNotFound)
				s.On("Iterate", mock.Anything, mock.Anything).Return([]*domain.Identity{}, nil)
				s.On("InsertIfAbsent", mock.Anything, mock.Anything).Return(domain.ErrKeyConflict)
			},
			wantErr: domain.ErrKeyConflict,
		},
		{
			name: "fingerprint claimed by concurrent writer",
			setupMocks: func(s *MockIdentityStore) {
				s.On("GetByKey", mock.Anything, "bob").Return(nil, domain.ErrIdentityNotFound)
				s.On("GetByFingerprint", mock.Anything, domain.Fingerprint("h2")).Return(nil, domain.ErrIdentityNotFound).Once()
				s.On("Iterate", mock.Anything, mock.Anything).Return([]*domain.Identity{}, nil)
				s.On("InsertIfAbsent", mock.Anything, mock.Anything).
					Return(domain.ErrDuplicateImage.WithError(errors.New("identities_fingerprint_unique")))
				s.On("GetByFingerprint", mock.Anything, domain.Fingerprint("h2")).Return(alice, nil).Once()
			},
			wantErr: domain.ErrDuplicateImage,
			check: func(t *testing.T, err error) {
				var appErr *domain.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, "alice", appErr.Details["unique_id"])
			},
		},
		{
			name: "store unavailable on pre-check",
			setupMocks: func(s *MockIdentityStore) {
				s.On("GetByKey", mock.Anything, "bob").
					Return(nil, domain.ErrStoreUnavailable.WithError(errors.New("connection refused")))
			},
			wantErr: domain.ErrStoreUnavailable,
		},
		{
			name: "store unavailable during scan",
			setupMocks: func(s *MockIdentityStore) {
				s.On("GetByKey", mock.Anything, "bob").Return(nil, domain.ErrIdentityNotFound)
				s.On("GetByFingerprint", mock.Anything, domain.Fingerprint("h2")).Return(nil, domain.ErrIdentityNotFound)
				s.On("Iterate", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
			},
			wantErr: domain.ErrStoreUnavailable,
		},
		{
			name: "novel face is inserted",
			setupMocks: func(s *MockIdentityStore) {
				s.On("GetByKey", mock.Anything, "bob").Return(nil, domain.ErrIdentityNotFound)
				s.On("GetByFingerprint", mock.Anything, domain.Fingerprint("h2")).Return(nil, domain.ErrIdentityNotFound)
				s.On("Iterate", mock.Anything, mock.Anything).Return([]*domain.Identity{alice}, nil)
				s.On("InsertIfAbsent", mock.Anything, mock.MatchedBy(func(i *domain.Identity) bool {
					return i.Key == "bob" && i.DisplayName == "Bob" && i.HasFingerprint() && *i.Fingerprint == "h2"
				})).Return(nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockIdentityStore)
			tt.setupMocks(store)
			svc := NewIdentityService(store, matching.NewEngine(quietLogger()), quietLogger())

			identity, err := svc.Enroll(context.Background(), "bob", "Bob", vec(2), "h2")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, identity)
				if tt.check != nil {
					tt.check(t, err)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, "bob", identity.Key)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestIdentityService_Enroll_WithoutFingerprint(t *testing.T) {
	svc, store := newMemoryService()
	ctx := context.Background()

	identity, err := svc.Enroll(ctx, "legacy", "Legacy", vec(0), "")
	require.NoError(t, err)
	assert.False(t, identity.HasFingerprint())

	stored, err := store.GetByKey(ctx, "legacy")
	require.NoError(t, err)
	assert.Nil(t, stored.Fingerprint)
}

func TestIdentityService_Enroll_DoesNotAliasCallerEmbedding(t *testing.T) {
	svc, store := newMemoryService()
	ctx := context.Background()

	embedding := vec(0)
	_, err := svc.Enroll(ctx, "alice", "Alice", embedding, "h1")
	require.NoError(t, err)

	embedding[0] = 5

	stored, err := store.GetByKey(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0.0, stored.Embedding[0])
}

func TestIdentityService_Enroll_LockUnavailable(t *testing.T) {
	store := new(MockIdentityStore)
	svc := NewIdentityService(store, matching.NewEngine(quietLogger()), quietLogger()).
		WithLocker(failingLock{})

	_, err := svc.Enroll(context.Background(), "alice", "Alice", vec(0), "h1")

	assertAppError(t, err, domain.ErrStoreUnavailable)
	store.AssertNotCalled(t, "GetByKey", mock.Anything, mock.Anything)
}

func TestIdentityService_Authenticate_BestMatch(t *testing.T) {
	orders := map[string][]string{
		"closer first": {"near", "far"},
		"closer last":  {"far", "near"},
	}
	embeddings := map[string]domain.Embedding{"near": vec(0.30), "far": vec(-0.35)}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			// bypass enrollment dedup to place two identities within tolerance of the probe
			store := repository.NewMemoryIdentityRepository()
			for _, key := range order {
				require.NoError(t, store.InsertIfAbsent(context.Background(),
					&domain.Identity{Key: key, DisplayName: key, Embedding: embeddings[key]}))
			}
			svc := NewIdentityService(store, matching.NewEngine(quietLogger()), quietLogger())

			match, err := svc.Authenticate(context.Background(), vec(0))

			require.NoError(t, err)
			require.NotNil(t, match)
			assert.Equal(t, "near", match.IdentityKey)
			assert.InDelta(t, 0.30, match.Distance, 1e-12)
		})
	}
}

func TestIdentityService_Authenticate_NoMatch(t *testing.T) {
	svc, _ := newMemoryService()
	ctx := context.Background()

	match, err := svc.Authenticate(ctx, vec(0))
	require.NoError(t, err)
	assert.Nil(t, match, "empty store")

	_, err = svc.Enroll(ctx, "alice", "Alice", vec(1), "h1")
	require.NoError(t, err)

	match, err = svc.Authenticate(ctx, vec(0))
	require.NoError(t, err)
	assert.Nil(t, match, "nearest beyond tolerance")
}

func TestIdentityService_Authenticate_NonFiniteProbe(t *testing.T) {
	svc, _ := newMemoryService()
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "alice", "Alice", vec(0), "h1")
	require.NoError(t, err)

	for _, v := range []float64{math.NaN(), math.Inf(1)} {
		match, err := svc.Authenticate(ctx, withComponent(0, v))
		assertAppError(t, err, domain.ErrInvalidInput)
		assert.Nil(t, match)
	}
}

func TestIdentityService_Authenticate_Timeout(t *testing.T) {
	svc, _ := newMemoryService()
	_, err := svc.Enroll(context.Background(), "alice", "Alice", vec(0), "h1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()

	_, err = svc.Authenticate(ctx, vec(0))
	assertAppError(t, err, domain.ErrTimeout)
}

func TestIdentityService_Delete(t *testing.T) {
	svc, store := newMemoryService()
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "alice", "Alice", vec(0), "h1")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "nobody"), domain.ErrIdentityNotFound)
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Identities, "missing key leaves the store unchanged")

	require.NoError(t, svc.Delete(ctx, "alice"))
	assert.ErrorIs(t, svc.Delete(ctx, "alice"), domain.ErrIdentityNotFound)

	_, err = svc.Enroll(ctx, "alice2", "Alice", vec(0), "h1")
	assert.NoError(t, err, "fingerprint is free again after delete")
}

func TestIdentityService_GetRenameStats(t *testing.T) {
	svc, _ := newMemoryService()
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "alice", "Alice", vec(0), "h1")
	require.NoError(t, err)

	renamed, err := svc.Rename(ctx, "alice", "Alice Smith")
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", renamed.DisplayName)
	assert.Equal(t, vec(0), renamed.Embedding)

	got, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", got.DisplayName)

	_, err = svc.Rename(ctx, "alice", " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Rename(ctx, "alice", strings.Repeat("n", 256))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Rename(ctx, "nobody", "Nobody")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	_, err = svc.Get(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIdentityService_ConcurrentSameKey(t *testing.T) {
	for name, locker := range map[string]lock.Locker{
		"with enrollment lock":  nil,
		"store constraint only": noLock{},
	} {
		t.Run(name, func(t *testing.T) {
			svc, store := newMemoryService()
			if locker != nil {
				svc.WithLocker(locker)
			}

			const writers = 16
			errs := make([]error, writers)
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					// embeddings far apart so only the key collides
					_, errs[i] = svc.Enroll(context.Background(), "alice", "Alice", vec(float64(i)*10), "")
				}(i)
			}
			wg.Wait()

			successes := 0
			for _, err := range errs {
				if err == nil {
					successes++
					continue
				}
				assert.ErrorIs(t, err, domain.ErrKeyConflict)
			}
			assert.Equal(t, 1, successes)

			stats, err := store.Stats(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Identities)
		})
	}
}

func TestIdentityService_ConcurrentSameFace(t *testing.T) {
	svc, store := newMemoryService()

	const writers = 16
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			_, errs[i] = svc.Enroll(context.Background(), key, key, vec(0), domain.Fingerprint("fp-"+key))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrDuplicateFace)
	}
	assert.Equal(t, 1, successes)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Identities)
}

// pngImage renders seeded noise so different seeds fingerprint differently
func pngImage(t *testing.T, seed uint64) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed))
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(rng.IntN(256))})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIdentityService_EnrollImage(t *testing.T) {
	svc, store := newMemoryService()
	pipeline := new(MockPipeline)
	svc.WithPipeline(pipeline)
	ctx := context.Background()

	photo := pngImage(t, 1)
	pipeline.On("FirstFaceEmbedding", mock.Anything, photo).Return(vec(0), nil).Once()

	alice, err := svc.EnrollImage(ctx, "alice", "Alice", photo)
	require.NoError(t, err)
	require.True(t, alice.HasFingerprint())
	assert.Len(t, string(*alice.Fingerprint), 16)

	t.Run("same photo is rejected before extraction", func(t *testing.T) {
		_, err := svc.EnrollImage(ctx, "bob", "Bob", photo)
		appErr := assertAppError(t, err, domain.ErrDuplicateImage)
		assert.Equal(t, "alice", appErr.Details["unique_id"])
	})

	t.Run("taken key is rejected before extraction", func(t *testing.T) {
		_, err := svc.EnrollImage(ctx, "alice", "Alice", pngImage(t, 2))
		assert.ErrorIs(t, err, domain.ErrKeyConflict)
	})

	t.Run("other photo of the same face", func(t *testing.T) {
		other := pngImage(t, 2)
		pipeline.On("FirstFaceEmbedding", mock.Anything, other).Return(vec(0.1), nil).Once()

		_, err := svc.EnrollImage(ctx, "carol", "Carol", other)
		assert.ErrorIs(t, err, domain.ErrDuplicateFace)
	})

	t.Run("undecodable image", func(t *testing.T) {
		_, err := svc.EnrollImage(ctx, "dave", "Dave", []byte("not an image"))
		assert.ErrorIs(t, err, domain.ErrInvalidImage)
	})

	pipeline.AssertExpectations(t)
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Identities)
}

func TestIdentityService_ImageErrors(t *testing.T) {
	photo := pngImage(t, 1)

	t.Run("no pipeline configured", func(t *testing.T) {
		svc, _ := newMemoryService()

		_, err := svc.EnrollImage(context.Background(), "alice", "Alice", photo)
		assert.ErrorIs(t, err, domain.ErrProviderUnavailable)

		_, err = svc.AuthenticateImage(context.Background(), photo)
		assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	})

	t.Run("no face detected", func(t *testing.T) {
		svc, _ := newMemoryService()
		pipeline := new(MockPipeline)
		pipeline.On("FirstFaceEmbedding", mock.Anything, photo).Return(nil, domain.ErrNoFaceDetected)
		svc.WithPipeline(pipeline)

		_, err := svc.EnrollImage(context.Background(), "alice", "Alice", photo)
		assert.ErrorIs(t, err, domain.ErrNoFaceDetected)
	})

	t.Run("image dimensions over the limit", func(t *testing.T) {
		svc, _ := newMemoryService()
		pipeline := new(MockPipeline)
		svc.WithPipeline(pipeline)

		huge := append([]byte(nil), photo...)
		binary.BigEndian.PutUint32(huge[16:20], 100_000)
		binary.BigEndian.PutUint32(huge[20:24], 100_000)
		binary.BigEndian.PutUint32(huge[29:33], crc32.ChecksumIEEE(huge[12:29]))

		_, err := svc.EnrollImage(context.Background(), "alice", "Alice", huge)
		assert.ErrorIs(t, err, domain.ErrInvalidImage)

		_, err = svc.AuthenticateImage(context.Background(), huge)
		assert.ErrorIs(t, err, domain.ErrInvalidImage)

		pipeline.AssertNotCalled(t, "FirstFaceEmbedding", mock.Anything, mock.Anything)
	})

	t.Run("authenticate undecodable image", func(t *testing.T) {
		svc, _ := newMemoryService()
		svc.WithPipeline(new(MockPipeline))

		_, err := svc.AuthenticateImage(context.Background(), []byte{0x00, 0x01})
		assert.ErrorIs(t, err, domain.ErrInvalidImage)
	})
}

func TestIdentityService_AuthenticateImage(t *testing.T) {
	svc, _ := newMemoryService()
	pipeline := new(MockPipeline)
	svc.WithPipeline(pipeline)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "alice", "Alice", vec(0), "h1")
	require.NoError(t, err)

	photo := pngImage(t, 2)
	pipeline.On("FirstFaceEmbedding", mock.Anything, photo).Return(vec(0.2), nil)

	match, err := svc.AuthenticateImage(ctx, photo)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "alice", match.IdentityKey)
	assert.InDelta(t, 0.2, match.Distance, 1e-12)
}

func TestIdentityService_AuditAndMetrics(t *testing.T) {
	recorder := &recordingAudit{}
	m := metrics.New(prometheus.NewRegistry())
	svc, _ := newMemoryService()
	svc.WithAudit(recorder).WithMetrics(m)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "alice", "Alice", vec(0), "h1")
	require.NoError(t, err)
	assert.Equal(t, audit.EventIdentityEnrolled, recorder.last().EventType)

	_, err = svc.Enroll(ctx, "carol", "Carol", vec(0.1), "h2")
	require.Error(t, err)
	rejected := recorder.last()
	assert.Equal(t, audit.EventIdentityRejected, rejected.EventType)
	assert.Equal(t, "DUPLICATE_FACE", rejected.Reason)
	assert.Equal(t, "alice", rejected.MatchedKey)

	_, err = svc.Authenticate(ctx, vec(3))
	require.NoError(t, err)
	assert.Equal(t, "NO_MATCH", recorder.last().Reason)

	_, err = svc.Authenticate(ctx, vec(0))
	require.NoError(t, err)
	assert.True(t, recorder.last().Success)

	require.NoError(t, svc.Delete(ctx, "alice"))
	assert.Equal(t, audit.EventIdentityDeleted, recorder.last().EventType)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Enrollments.WithLabelValues("enrolled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Enrollments.WithLabelValues("duplicate_face")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Authentications.WithLabelValues("no_match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Authentications.WithLabelValues("match")))
}
