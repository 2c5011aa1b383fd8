package domain

// Product — внешняя сущность product-сервиса, доступная только на чтение.
// Никогда не сохраняется локально: запрашивается транзиентно для валидации
// и обогащения ответов; JSON-теги описывают формат ответа product-сервиса.
type Product struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}
