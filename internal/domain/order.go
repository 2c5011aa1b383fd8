package domain

import (
	"math"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ожидает обработки; статус по умолчанию.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatusList — закрытый список допустимых статусов; внешний контракт
// для валидации входных параметров.
var OrderStatusList = []OrderStatus{
	OrderStatusPending,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus сопоставляет сырую строку со статусом из закрытого списка.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	candidate := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, status := range OrderStatusList {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// OrderStatusNames возвращает список статусов для сообщений об ошибках валидации.
func OrderStatusNames() []string {
	names := make([]string, 0, len(OrderStatusList))
	for _, status := range OrderStatusList {
		names = append(names, string(status))
	}
	return names
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// ProductID — внешний идентификатор товара в product-сервисе.
	ProductID int64
	// Quantity — количество единиц товара.
	Quantity int32
	// Price — цена за единицу, зафиксированная в момент создания заказа.
	// Снимок не пересчитывается, даже если цена товара потом изменится.
	Price float64
	// Name заполняется обогащением из product-сервиса и в БД не хранится.
	Name string
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          string
	TotalAmount float64
	TotalItems  int32
	Status      OrderStatus
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// amountEpsilon — допуск на накопленную погрешность float64 при сверке сумм.
const amountEpsilon = 1e-9

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmount < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if o.TotalItems < 0 {
		errs = append(errs, ErrTotalItemsNegative)
	}

	// Сверяем итоги заказа с суммами по позициям: price * quantity.
	var calcAmount float64
	var calcItems int32
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQuantityInvalid)
		}
		if item.Price < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calcAmount += item.Price * float64(item.Quantity)
		calcItems += item.Quantity
	}
	if math.Abs(calcAmount-o.TotalAmount) > amountEpsilon {
		errs = append(errs, ErrAmountMismatch)
	}
	if calcItems != o.TotalItems {
		errs = append(errs, ErrTotalItemsMismatch)
	}

	return errs
}

// Page — страница заказов с метаданными пагинации.
type Page struct {
	Data []Order
	Meta PageMeta
}

// PageMeta описывает метаданные постраничной выборки.
type PageMeta struct {
	Total      int64
	Page       int
	TotalPages int64
	LastPage   int64
}

// StatusChange — запись истории смены статуса заказа.
type StatusChange struct {
	OrderID   string
	From      OrderStatus
	To        OrderStatus
	ChangedAt time.Time
}
