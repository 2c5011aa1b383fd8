package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// StatusHistoryRepository хранит историю смен статуса в памяти.
type StatusHistoryRepository struct {
	mu      sync.RWMutex
	changes map[string][]domain.StatusChange
}

// NewStatusHistoryRepository создаёт in-memory реализацию StatusHistoryRepository.
func NewStatusHistoryRepository() *StatusHistoryRepository {
	return &StatusHistoryRepository{changes: make(map[string][]domain.StatusChange)}
}

// Append добавляет запись о смене статуса.
func (r *StatusHistoryRepository) Append(change domain.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes[change.OrderID] = append(r.changes[change.OrderID], change)

	sort.SliceStable(r.changes[change.OrderID], func(i, j int) bool {
		return r.changes[change.OrderID][i].ChangedAt.Before(r.changes[change.OrderID][j].ChangedAt)
	})

	return nil
}

// List возвращает историю заказа в хронологическом порядке.
func (r *StatusHistoryRepository) List(orderID string) ([]domain.StatusChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	changes := r.changes[orderID]
	result := make([]domain.StatusChange, len(changes))
	copy(result, changes)
	return result, nil
}

var _ domain.StatusHistoryRepository = (*StatusHistoryRepository)(nil)
