package notifications

import (
	"context"
	"errors"

	"github.com/nvquang/storefront-core/pkg/backend"
	"github.com/nvquang/storefront-core/pkg/logger"
)

type notificationsBackend interface {
	ListNotifications(ctx context.Context) ([]backend.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
}

// Service is a thin passthrough over the backend's notification endpoints.
type Service interface {
	List(ctx context.Context) ([]backend.Notification, error)
	MarkRead(ctx context.Context, id int64) error
	UnreadCount(ctx context.Context) (int, error)
}

type Deps struct {
	Backend notificationsBackend
	Logger  *logger.Logger
}

type service struct {
	backend notificationsBackend
	logger  *logger.Logger
}

func NewService(deps Deps) (Service, error) {
	if deps.Backend == nil {
		return nil, errors.New("notifications backend is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("notifications logger is required")
	}
	return &service{backend: deps.Backend, logger: deps.Logger}, nil
}

func (s *service) List(ctx context.Context) ([]backend.Notification, error) {
	return s.backend.ListNotifications(ctx)
}

func (s *service) MarkRead(ctx context.Context, id int64) error {
	return s.backend.MarkNotificationRead(ctx, id)
}

func (s *service) UnreadCount(ctx context.Context) (int, error) {
	items, err := s.backend.ListNotifications(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, item := range items {
		if !item.Read {
			count++
		}
	}
	return count, nil
}
