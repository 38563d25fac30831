package postgres

import (
	"context"
	"database/sql"
	"errors"

	"vaccination-clinic/internal/domain/notifications"
	"vaccination-clinic/internal/platform/eventbus"
)

type NotificationsRepo struct {
	db *sql.DB
}

func NewNotificationsRepo(db *sql.DB) *NotificationsRepo {
	return &NotificationsRepo{db: db}
}

func (r *NotificationsRepo) Create(ctx context.Context, n notifications.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, channel, priority, read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		n.ID,
		n.UserID,
		n.Title,
		n.Message,
		string(n.Channel),
		string(n.Priority),
		n.Read,
		n.CreatedAt,
	)
	return err
}

const selectNotification = `
	SELECT id, user_id, title, message, channel, priority, read, created_at
	FROM notifications
`

func scanNotification(row rowScanner) (notifications.Notification, error) {
	var (
		n        notifications.Notification
		channel  string
		priority string
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &channel, &priority, &n.Read, &n.CreatedAt); err != nil {
		return notifications.Notification{}, err
	}
	n.Channel = eventbus.Channel(channel)
	n.Priority = eventbus.Priority(priority)
	return n, nil
}

func (r *NotificationsRepo) GetByID(ctx context.Context, id string) (notifications.Notification, error) {
	row := r.db.QueryRowContext(ctx, selectNotification+` WHERE id = $1`, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notifications.Notification{}, notifications.ErrNotFound
		}
		return notifications.Notification{}, err
	}
	return n, nil
}

func (r *NotificationsRepo) ListByUser(ctx context.Context, userID string) ([]notifications.Notification, error) {
	rows, err := r.db.QueryContext(ctx, selectNotification+`
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notifications.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationsRepo) MarkRead(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notifications.ErrNotFound
	}
	return nil
}
