package orders

import (
	"context"
	"errors"
	"time"

	"github.com/nvquang/storefront-core/pkg/enums"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
	"github.com/nvquang/storefront-core/pkg/localdb"
	"github.com/nvquang/storefront-core/pkg/logger"
	"github.com/nvquang/storefront-core/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ordersBackend interface {
	ListOrders(ctx context.Context, page, pageSize int) ([]types.Order, error)
	CancelOrder(ctx context.Context, orderID int64) error
}

// Service is the order history surface. Listings come from the backend and
// are written through to sqlite; when the backend is unreachable the cached
// history is served instead so past orders stay visible offline.
type Service interface {
	List(ctx context.Context, userID string, page, pageSize int) ([]types.Order, error)
	Cancel(ctx context.Context, userID string, orderID int64) error
	Record(ctx context.Context, userID string, order types.Order) error
}

type Deps struct {
	Backend ordersBackend
	DB      *gorm.DB
	Logger  *logger.Logger
}

type service struct {
	backend ordersBackend
	db      *gorm.DB
	logger  *logger.Logger
	now     func() time.Time
}

func NewService(deps Deps) (Service, error) {
	if deps.Backend == nil {
		return nil, errors.New("orders backend is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("orders logger is required")
	}
	return &service{
		backend: deps.Backend,
		db:      deps.DB,
		logger:  deps.Logger,
		now:     time.Now,
	}, nil
}

func (s *service) List(ctx context.Context, userID string, page, pageSize int) ([]types.Order, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	orders, err := s.backend.ListOrders(ctx, page, pageSize)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNetwork) {
			if cached, ok := s.fromLocal(ctx, userID, pageSize); ok {
				s.logger.Warn(s.logger.WithUserID(ctx, userID), "serving cached order history")
				return cached, nil
			}
		}
		return nil, err
	}

	for _, order := range orders {
		if err := s.Record(ctx, userID, order); err != nil {
			s.logger.Warn(ctx, "order history write-through failed")
			break
		}
	}
	return orders, nil
}

// Cancel releases an order server-side. Orders the cache already knows to be
// past the cancellable window are rejected locally.
func (s *service) Cancel(ctx context.Context, userID string, orderID int64) error {
	if status, ok := s.cachedStatus(ctx, orderID); ok && !status.Cancellable() {
		return pkgerrors.New(pkgerrors.CodeConflict, "order can no longer be cancelled").
			WithDetails(map[string]any{"order_id": orderID, "status": string(status)})
	}

	if err := s.backend.CancelOrder(ctx, orderID); err != nil {
		return err
	}
	s.markCancelled(ctx, userID, orderID)
	return nil
}

// Record writes one order through to the local cache.
func (s *service) Record(ctx context.Context, userID string, order types.Order) error {
	if s.db == nil {
		return nil
	}
	row := localdb.FromOrder(userID, order, s.now())
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

func (s *service) fromLocal(ctx context.Context, userID string, limit int) ([]types.Order, bool) {
	if s.db == nil {
		return nil, false
	}
	var rows []localdb.CachedOrder
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, false
	}
	orders := make([]types.Order, 0, len(rows))
	for _, row := range rows {
		order, err := row.ToOrder()
		if err != nil {
			continue
		}
		orders = append(orders, order)
	}
	return orders, len(orders) > 0
}

func (s *service) cachedStatus(ctx context.Context, orderID int64) (enums.OrderStatus, bool) {
	if s.db == nil {
		return "", false
	}
	var row localdb.CachedOrder
	if err := s.db.WithContext(ctx).First(&row, "order_id = ?", orderID).Error; err != nil {
		return "", false
	}
	return enums.OrderStatus(row.Status), true
}

func (s *service) markCancelled(ctx context.Context, userID string, orderID int64) {
	if s.db == nil {
		return
	}
	err := s.db.WithContext(ctx).
		Model(&localdb.CachedOrder{}).
		Where("order_id = ? AND user_id = ?", orderID, userID).
		Update("status", string(enums.OrderStatusCancelled)).Error
	if err != nil {
		s.logger.Warn(ctx, "cached order status update failed")
	}
}
