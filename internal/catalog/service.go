package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nvquang/storefront-core/pkg/localdb"
	"github.com/nvquang/storefront-core/pkg/logger"
	pkgredis "github.com/nvquang/storefront-core/pkg/redis"
	"github.com/nvquang/storefront-core/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type productFetcher interface {
	GetProduct(ctx context.Context, productID int64) (types.ProductSnapshot, error)
}

type snapshotCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SnapshotKey(productID int64) string
}

// Service resolves product snapshots for cart enrichment. Lookups go through
// a short-lived redis cache, then the backend, with successful fetches written
// to the local sqlite cache so a later offline session still has data.
type Service interface {
	Resolve(ctx context.Context, productID int64) (types.ProductSnapshot, error)
	Invalidate(ctx context.Context, productID int64)
}

type Deps struct {
	Backend     productFetcher
	Cache       snapshotCache
	DB          *gorm.DB
	SnapshotTTL time.Duration
	Logger      *logger.Logger
}

type service struct {
	backend productFetcher
	cache   snapshotCache
	db      *gorm.DB
	ttl     time.Duration
	logger  *logger.Logger
	now     func() time.Time
}

func NewService(deps Deps) (Service, error) {
	if deps.Backend == nil {
		return nil, errors.New("catalog backend is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("catalog logger is required")
	}
	ttl := deps.SnapshotTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &service{
		backend: deps.Backend,
		cache:   deps.Cache,
		db:      deps.DB,
		ttl:     ttl,
		logger:  deps.Logger,
		now:     time.Now,
	}, nil
}

func (s *service) Resolve(ctx context.Context, productID int64) (types.ProductSnapshot, error) {
	if snap, ok := s.fromCache(ctx, productID); ok {
		return snap, nil
	}

	snap, err := s.backend.GetProduct(ctx, productID)
	if err != nil {
		if offline, ok := s.fromLocal(ctx, productID); ok {
			s.logger.Warn(s.logger.WithField(ctx, "product_id", productID), "serving offline product snapshot")
			return offline, nil
		}
		return types.ProductSnapshot{}, err
	}

	s.storeCache(ctx, snap)
	s.storeLocal(ctx, snap)
	return snap, nil
}

// Invalidate drops the redis entry so the next Resolve refetches. Mutations
// call it after the server acknowledges a stock-affecting change.
func (s *service) Invalidate(ctx context.Context, productID int64) {
	if s.cache == nil {
		return
	}
	// Overwrite with an immediate-expiry tombstone rather than growing the
	// cache interface with a delete.
	if err := s.cache.Set(ctx, s.cache.SnapshotKey(productID), "", time.Millisecond); err != nil {
		s.logger.Warn(ctx, "snapshot cache invalidation failed")
	}
}

func (s *service) fromCache(ctx context.Context, productID int64) (types.ProductSnapshot, bool) {
	if s.cache == nil {
		return types.ProductSnapshot{}, false
	}
	raw, err := s.cache.Get(ctx, s.cache.SnapshotKey(productID))
	if err != nil {
		if !errors.Is(err, pkgredis.Nil) {
			s.logger.Warn(ctx, "snapshot cache read failed")
		}
		return types.ProductSnapshot{}, false
	}
	var snap types.ProductSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return types.ProductSnapshot{}, false
	}
	if snap.ProductID != productID {
		return types.ProductSnapshot{}, false
	}
	return snap, true
}

func (s *service) storeCache(ctx context.Context, snap types.ProductSnapshot) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.SnapshotKey(snap.ProductID), string(raw), s.ttl); err != nil {
		s.logger.Warn(ctx, "snapshot cache write failed")
	}
}

func (s *service) fromLocal(ctx context.Context, productID int64) (types.ProductSnapshot, bool) {
	if s.db == nil {
		return types.ProductSnapshot{}, false
	}
	var row localdb.CachedSnapshot
	err := s.db.WithContext(ctx).First(&row, "product_id = ?", productID).Error
	if err != nil {
		return types.ProductSnapshot{}, false
	}
	snap, err := row.ToSnapshot()
	if err != nil {
		return types.ProductSnapshot{}, false
	}
	return snap, true
}

func (s *service) storeLocal(ctx context.Context, snap types.ProductSnapshot) {
	if s.db == nil {
		return
	}
	row := localdb.FromSnapshot(snap)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		s.logger.Warn(ctx, "offline snapshot write failed")
	}
}
