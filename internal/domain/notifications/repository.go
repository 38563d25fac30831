package notifications

import "context"

type Repository interface {
	Create(ctx context.Context, n Notification) error
	ListByUser(ctx context.Context, userID string) ([]Notification, error)
	MarkRead(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (Notification, error)
}
