package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// StatusHistoryRepository ведёт журнал смен статуса заказа
// в таблице order_status_history.
type StatusHistoryRepository struct {
	store *Store
}

// NewStatusHistoryRepository создаёт PostgreSQL-реализацию журнала статусов.
func NewStatusHistoryRepository(store *Store) *StatusHistoryRepository {
	return &StatusHistoryRepository{store: store}
}

// Append добавляет запись о смене статуса.
func (r *StatusHistoryRepository) Append(change domain.StatusChange) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, changed_at)
		VALUES ($1, $2, $3, $4)
	`, change.OrderID, string(change.From), string(change.To), change.ChangedAt); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}

	return nil
}

// List возвращает историю заказа в хронологическом порядке.
func (r *StatusHistoryRepository) List(orderID string) ([]domain.StatusChange, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT order_id, from_status, to_status, changed_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	var changes []domain.StatusChange
	for rows.Next() {
		var (
			change domain.StatusChange
			from   string
			to     string
		)
		if err := rows.Scan(&change.OrderID, &from, &to, &change.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status history row: %w", err)
		}
		change.From = domain.OrderStatus(from)
		change.To = domain.OrderStatus(to)
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}

	return changes, nil
}

var _ domain.StatusHistoryRepository = (*StatusHistoryRepository)(nil)
