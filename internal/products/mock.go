package products

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// Mock — реализация ProductValidator по локальному каталогу.
// Используется в dev-режиме без брокера и как test double.
type Mock struct {
	mu      sync.RWMutex
	catalog map[int64]domain.Product
	failErr error
	calls   int
}

// NewMock создаёт mock с небольшим демо-каталогом.
func NewMock() *Mock {
	return NewMockWithCatalog(
		domain.Product{ID: 1, Name: "Keyboard", Price: 49.90},
		domain.Product{ID: 2, Name: "Mouse", Price: 19.90},
		domain.Product{ID: 3, Name: "Monitor", Price: 199.00},
	)
}

// NewMockWithCatalog создаёт mock с заданным каталогом.
func NewMockWithCatalog(items ...domain.Product) *Mock {
	catalog := make(map[int64]domain.Product, len(items))
	for _, item := range items {
		catalog[item.ID] = item
	}
	return &Mock{catalog: catalog}
}

// SetProduct добавляет или заменяет товар в каталоге.
func (m *Mock) SetProduct(product domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog[product.ID] = product
}

// RemoveProduct удаляет товар (имитация удаления на стороне product-сервиса).
func (m *Mock) RemoveProduct(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.catalog, id)
}

// FailWith заставляет следующий Validate вернуть err (имитация сбоя транспорта).
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Calls возвращает количество выполненных вызовов Validate.
func (m *Mock) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Validate возвращает записи каталога по списку идентификаторов.
// Неизвестный id проваливает весь вызов, как и в реальном product-сервисе.
func (m *Mock) Validate(ctx context.Context, productIDs []int64) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	failErr := m.failErr
	m.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int64]struct{}, len(productIDs))
	result := make([]domain.Product, 0, len(productIDs))
	var missing []int64
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		product, ok := m.catalog[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		result = append(result, product)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown products: %v", missing)
	}

	return result, nil
}

var _ domain.ProductValidator = (*Mock)(nil)
