package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const opTimeout = 5 * time.Second

// pgUniqueViolation — код ошибки PostgreSQL для нарушения уникальности.
const pgUniqueViolation = "23505"

// OrderRepository реализует domain.OrderRepository поверх PostgreSQL.
type OrderRepository struct {
	store *Store
}

// NewOrderRepository создаёт репозиторий заказов поверх подключения store.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// CreateWithItems атомарно сохраняет заказ и его позиции в одной транзакции.
func (r *OrderRepository) CreateWithItems(order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin create order tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, total_amount, total_items, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.TotalAmount, order.TotalItems, string(order.Status), order.CreatedAt, order.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.Order{}, fmt.Errorf("order %s already exists", order.ID)
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, order.ID, item.ProductID, item.Quantity, item.Price, item.CreatedAt); err != nil {
			return domain.Order{}, fmt.Errorf("insert order item (product %d): %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order tx: %w", err)
	}

	return order, nil
}

// CountByStatus возвращает количество заказов в указанном статусе.
func (r *OrderRepository) CountByStatus(status domain.OrderStatus) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var total int64
	if err := r.store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders WHERE status = $1
	`, string(status)).Scan(&total); err != nil {
		return 0, fmt.Errorf("count orders by status: %w", err)
	}

	return total, nil
}

// FindPaged возвращает окно заказов без позиций, от старых к новым.
func (r *OrderRepository) FindPaged(status domain.OrderStatus, offset, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id, total_amount, total_items, status, created_at, updated_at
		FROM orders
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		OFFSET $2 LIMIT $3
	`, string(status), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders page: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders page: %w", err)
	}

	return orders, nil
}

// GetWithItems возвращает заказ вместе с позициями или ErrOrderNotFound.
func (r *OrderRepository) GetWithItems(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.store.DB().QueryRowContext(ctx, `
		SELECT id, total_amount, total_items, status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

// UpdateStatus меняет статус заказа и возвращает обновлённую запись без позиций.
// Возвращает ErrOrderNotFound, если заказа нет.
func (r *OrderRepository) UpdateStatus(id string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.store.DB().QueryRowContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING id, total_amount, total_items, status, created_at, updated_at
	`, id, string(status), updatedAt)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}

	return order, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id, product_id, quantity, price, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.Price, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(&order.ID, &order.TotalAmount, &order.TotalItems, &status, &order.CreatedAt, &order.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	order.Status = domain.OrderStatus(status)

	return order, nil
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
