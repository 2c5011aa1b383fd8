package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total_amount must be non-negative")
	// Ошибка отрицательного количества позиций.
	ErrTotalItemsNegative = errors.New("total_items must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQuantityInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total_amount does not match items sum")
	// Ошибка несоответствия total_items и суммы количеств по позициям.
	ErrTotalItemsMismatch = errors.New("order total_items does not match items sum")
	// ErrOrderNotFound возвращается репозиторием, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// Error — типизированная доменная ошибка: HTTP-код плюс сообщение для вызывающей
// стороны. Транспортный слой сериализует её в ответ {status, message} как есть.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// ErrProductsNotFound возвращается create, когда product-сервис не смог
// подтвердить хотя бы один из запрошенных товаров.
var ErrProductsNotFound = &Error{
	Status:  http.StatusNotFound,
	Message: "Products not found",
}

// NewOrderNotFound строит ошибку отсутствия заказа; сообщение включает id.
func NewOrderNotFound(id string) *Error {
	return &Error{
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("Order with id #%s not found", id),
	}
}

// NewValidationError строит ошибку некорректного входа для транспортного слоя.
func NewValidationError(message string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Message: message,
	}
}

// AsError извлекает типизированную доменную ошибку из цепочки err.
func AsError(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// IsNotFound проверяет, что ошибка относится к классу not-found.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrOrderNotFound) {
		return true
	}
	if domainErr, ok := AsError(err); ok {
		return domainErr.Status == http.StatusNotFound
	}
	return false
}
