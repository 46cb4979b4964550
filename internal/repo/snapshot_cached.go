package repo

import (
	"context"
	"time"

	"go.uber.org/zap"

	"go-library-catalog/internal/core/cache"
	"go-library-catalog/internal/domain"
)

const snapshotKey = "snapshot"

type SnapshotStore interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, s *domain.Snapshot) error
}

// ReplaceStore can overwrite stored history, see SnapshotRepo.Replace.
type ReplaceStore interface {
	SnapshotStore
	Replace(ctx context.Context, s *domain.Snapshot) error
}

// CachedSnapshotStore puts redis in front of a SnapshotStore. The backing
// store stays the source of truth: cache errors are logged and ignored.
type CachedSnapshotStore struct {
	next  ReplaceStore
	cache *cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedSnapshotStore(next ReplaceStore, c *cache.Cache, ttl time.Duration, l *zap.Logger) *CachedSnapshotStore {
	if l == nil {
		l = zap.NewNop()
	}
	return &CachedSnapshotStore{next: next, cache: c, ttl: ttl, log: l}
}

func (s *CachedSnapshotStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap, err := cache.GetOrLoadJSON(s.cache, ctx, snapshotKey, s.ttl, s.next.Load)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return &domain.Snapshot{}, nil
	}
	return snap, nil
}

func (s *CachedSnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if err := s.next.Save(ctx, snap); err != nil {
		return err
	}
	s.refresh(ctx, snap)
	return nil
}

func (s *CachedSnapshotStore) Replace(ctx context.Context, snap *domain.Snapshot) error {
	if err := s.next.Replace(ctx, snap); err != nil {
		return err
	}
	s.refresh(ctx, snap)
	return nil
}

// refresh 缓存写失败时删除旧值，避免下次启动读到过期快照
func (s *CachedSnapshotStore) refresh(ctx context.Context, snap *domain.Snapshot) {
	if err := cache.SetJSON(s.cache, ctx, snapshotKey, snap, s.ttl); err != nil {
		s.log.Warn("snapshot cache refresh failed", zap.Error(err))
		if derr := s.cache.Delete(ctx, snapshotKey); derr != nil {
			s.log.Warn("snapshot cache invalidate failed", zap.Error(derr))
		}
	}
}

// NewStore returns snapshots, fronted by c when a cache is configured.
func NewStore(snapshots *SnapshotRepo, c *cache.Cache, ttl time.Duration, l *zap.Logger) ReplaceStore {
	if c == nil {
		return snapshots
	}
	return NewCachedSnapshotStore(snapshots, c, ttl, l)
}
