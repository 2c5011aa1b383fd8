package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// CreateWithItems сохраняет заказ вместе с позициями одной атомарной
	// транзакцией: либо все строки, либо ни одной. Возвращает сохранённый
	// заказ с позициями в порядке создания.
	CreateWithItems(order Order) (Order, error)
	// CountByStatus возвращает количество заказов в указанном статусе.
	CountByStatus(status OrderStatus) (int64, error)
	// FindPaged возвращает окно заказов в статусе status без позиций,
	// отсортированных по времени создания по возрастанию.
	FindPaged(status OrderStatus, offset, limit int) ([]Order, error)
	// GetWithItems возвращает заказ с позициями или ErrOrderNotFound.
	GetWithItems(id string) (Order, error)
	// UpdateStatus меняет статус заказа и возвращает обновлённую запись без
	// позиций. Итоги заказа при смене статуса не пересчитываются.
	UpdateStatus(id string, status OrderStatus, updatedAt time.Time) (Order, error)
}
