package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// OrderRepository — простая in-memory реализация domain.OrderRepository
// для локальной разработки и тестов. Дополнительно считает записи, чтобы
// тесты могли проверять отсутствие лишних операций записи.
type OrderRepository struct {
	mu sync.RWMutex
	// items хранит копии заказов; insertion сохраняет порядок создания
	// для детерминированной пагинации.
	items     map[string]domain.Order
	insertion []string
	writes    int
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{items: make(map[string]domain.Order)}
}

// CreateWithItems сохраняет заказ вместе с позициями.
func (r *OrderRepository) CreateWithItems(order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.Order{}, fmt.Errorf("order %s already exists", order.ID)
	}

	// Храним копию, чтобы избежать непредсказуемых мутаций извне.
	stored := cloneOrder(order, true)
	r.items[order.ID] = stored
	r.insertion = append(r.insertion, order.ID)
	r.writes++

	return cloneOrder(stored, true), nil
}

// CountByStatus возвращает количество заказов в статусе status.
func (r *OrderRepository) CountByStatus(status domain.OrderStatus) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, order := range r.items {
		if order.Status == status {
			total++
		}
	}
	return total, nil
}

// FindPaged возвращает окно заказов без позиций в порядке создания.
func (r *OrderRepository) FindPaged(status domain.OrderStatus, offset, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, limit)
	skipped := 0
	for _, id := range r.insertion {
		order := r.items[id]
		if order.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, cloneOrder(order, false))
		if limit > 0 && len(result) >= limit {
			break
		}
	}

	return result, nil
}

// GetWithItems возвращает заказ с позициями или ErrOrderNotFound.
func (r *OrderRepository) GetWithItems(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order, true), nil
}

// UpdateStatus меняет статус заказа и возвращает запись без позиций.
func (r *OrderRepository) UpdateStatus(id string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	order.Status = status
	order.UpdatedAt = updatedAt
	r.items[id] = order
	r.writes++

	return cloneOrder(order, false), nil
}

// Writes возвращает количество выполненных операций записи (для тестов).
func (r *OrderRepository) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

func cloneOrder(order domain.Order, withItems bool) domain.Order {
	clone := order
	if !withItems {
		clone.Items = nil
		return clone
	}
	clone.Items = make([]domain.OrderItem, len(order.Items))
	copy(clone.Items, order.Items)
	return clone
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
