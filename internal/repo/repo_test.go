package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"go-library-catalog/internal/core/cache"
	"go-library-catalog/internal/domain"
)

func sampleSnapshot() *domain.Snapshot {
	issued := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	returned := issued.AddDate(0, 0, 3)
	return &domain.Snapshot{
		Books: []domain.Book{
			{ISBN: "1111", Title: "Война и мир", Author: "Л. Толстой", Available: false},
			{ISBN: "2222", Title: "Dune", Author: "Herbert", Genre: "SF", Available: true},
		},
		Users: []domain.User{
			{ID: "u1", Name: "Ann", Role: domain.RoleStudent, Email: "ann@example.com"},
		},
		Records: []domain.BorrowRecord{
			{ID: "r1", Seq: 1, UserID: "u1", ISBN: "2222", IssuedAt: issued, DueAt: issued.AddDate(0, 0, 14), ReturnedAt: &returned},
			{ID: "r2", Seq: 2, UserID: "u1", ISBN: "1111", IssuedAt: issued, DueAt: issued.AddDate(0, 0, 14)},
		},
	}
}

func TestModels_KeepOrderAndFields(t *testing.T) {
	in := sampleSnapshot()
	books, users, recs := toModels(in)

	require.Len(t, books, 2)
	assert.Equal(t, 0, books[0].Position)
	assert.Equal(t, 1, books[1].Position)
	assert.Equal(t, "SF", books[1].Genre)
	require.Len(t, users, 1)
	assert.Equal(t, "student", users[0].Role)
	require.Len(t, recs, 2)
	assert.NotNil(t, recs[0].ReturnedAt)
	assert.Nil(t, recs[1].ReturnedAt)

	out := fromModels(books, users, recs)
	assert.Equal(t, in.Users, out.Users)
	assert.Equal(t, in.Records, out.Records)
	// availability is re-derived on restore
	for _, b := range out.Books {
		assert.True(t, b.Available)
	}
	assert.Equal(t, "1111", out.Books[0].ISBN)
}

func TestModels_TableNames(t *testing.T) {
	assert.Equal(t, "books", BookModel{}.TableName())
	assert.Equal(t, "users", UserModel{}.TableName())
	assert.Equal(t, "borrow_records", BorrowRecordModel{}.TableName())
	assert.Len(t, Models(), 3)
}

type memStore struct {
	snap     *domain.Snapshot
	loads    int
	saves    int
	saveErr  error
	replaced bool
}

func (m *memStore) Load(context.Context) (*domain.Snapshot, error) {
	m.loads++
	return m.snap, nil
}

func (m *memStore) Replace(ctx context.Context, s *domain.Snapshot) error {
	m.replaced = true
	return m.Save(ctx, s)
}

func (m *memStore) Save(_ context.Context, s *domain.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.snap = s
	return nil
}

func offlineCache() *cache.Cache {
	return &cache.Cache{
		RDB: redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		}),
		Prefix: "test:",
	}
}

func TestCachedSnapshotStore_FallsBackWhenRedisDown(t *testing.T) {
	next := &memStore{snap: sampleSnapshot()}
	s := NewCachedSnapshotStore(next, offlineCache(), time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Books, 2)
	assert.Equal(t, 1, next.loads)

	require.NoError(t, s.Save(ctx, &domain.Snapshot{}))
	assert.Equal(t, 1, next.saves)
	assert.False(t, next.replaced)

	require.NoError(t, s.Replace(ctx, sampleSnapshot()))
	assert.True(t, next.replaced)
	assert.Equal(t, 2, next.saves)
}

func TestNewStore_WithoutCache(t *testing.T) {
	repo := NewSnapshotRepo(nil)
	assert.Same(t, repo, NewStore(repo, nil, time.Minute, nil))
	_, ok := NewStore(repo, offlineCache(), time.Minute, nil).(*CachedSnapshotStore)
	assert.True(t, ok)
}

func TestCachedSnapshotStore_EmptyStore(t *testing.T) {
	s := NewCachedSnapshotStore(&memStore{}, offlineCache(), time.Minute, nil)
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Books)
}

func TestCachedSnapshotStore_SaveErrorSurfaces(t *testing.T) {
	boom := errors.New("db down")
	s := NewCachedSnapshotStore(&memStore{saveErr: boom}, offlineCache(), time.Minute, nil)
	err := s.Save(context.Background(), sampleSnapshot())
	assert.ErrorIs(t, err, boom)
}
