package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// OutboxRepository хранит события заказов в таблице order_outbox
// для последующей публикации воркером (transactional outbox).
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository создаёт PostgreSQL-реализацию domain.OutboxRepository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Enqueue ставит событие в очередь со статусом `pending`.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if _, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO order_outbox (id, aggregate_type, aggregate_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message: %w", err)
	}

	return msg, nil
}

// PullPending возвращает до limit необработанных событий, от старых к новым.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM order_outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}

	return messages, nil
}

// Stats возвращает размер backlog и возраст самого старого события.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM order_outbox
		WHERE status = 'pending'
	`).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("query outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time
	}

	return stats, nil
}

// MarkSent помечает событие как опубликованное.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.markStatus(id, "sent")
}

// MarkFailed помечает событие как неопубликованное после исчерпания попыток.
func (r *OutboxRepository) MarkFailed(id string) error {
	return r.markStatus(id, "failed")
}

func (r *OutboxRepository) markStatus(id, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := r.store.DB().ExecContext(ctx, `
		UPDATE order_outbox
		SET status = $2, attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("mark outbox message %s: %w", status, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check outbox update result: %w", err)
	}
	if affected == 0 {
		return errors.New("outbox message not found")
	}

	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
