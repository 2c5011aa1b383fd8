package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

const (
	// DefaultPage и DefaultLimit — значения пагинации по умолчанию;
	// применяются транспортным слоем, здесь служат нормализацией.
	DefaultPage  = 1
	DefaultLimit = 10

	aggregateTypeOrder = "order"

	operationCreate       = "create"
	operationFindAll      = "find_all"
	operationFindOne      = "find_one"
	operationChangeStatus = "change_status"
)

// ItemInput — запрошенная позиция заказа: товар и количество.
// Валидируется транспортным слоем до вызова сервиса.
type ItemInput struct {
	ProductID int64
	Quantity  int32
}

// ListQuery — параметры постраничной выборки заказов.
type ListQuery struct {
	Page   int
	Limit  int
	Status domain.OrderStatus
}

// Service реализует сценарии работы с заказами поверх доменных портов:
// создание с валидацией товаров, постраничный список, поиск и смену статуса.
type Service struct {
	repo     domain.OrderRepository
	products domain.ProductValidator
	outbox   domain.OutboxRepository
	history  domain.StatusHistoryRepository
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
}

// Option настраивает необязательные зависимости Service.
type Option func(*Service)

// WithOutbox подключает очередь исходящих событий заказов.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithStatusHistory подключает журнал смен статуса.
func WithStatusHistory(history domain.StatusHistoryRepository) Option {
	return func(s *Service) {
		s.history = history
	}
}

// WithMetrics подключает метрики операций.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService конструирует сервис заказов с обязательными зависимостями.
func NewService(repo domain.OrderRepository, products domain.ProductValidator, logger *log.Entry, options ...Option) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders-service")
	}

	s := &Service{
		repo:     repo,
		products: products,
		logger:   logger,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Create создаёт заказ из списка позиций: одним round-trip валидирует товары
// в product-сервисе, считает итоги по снимкам цен, атомарно сохраняет заказ
// с позициями и возвращает его с именами товаров.
func (s *Service) Create(ctx context.Context, items []ItemInput) (domain.Order, error) {
	defer s.observe(operationCreate, time.Now())

	productIDs := distinctProductIDs(items)

	// Один вызов на весь заказ; любой неизвестный товар отменяет операцию
	// целиком — частично созданных заказов не бывает.
	validated, err := s.products.Validate(ctx, productIDs)
	if err != nil {
		s.logger.WithError(err).WithField("product_ids", productIDs).Warn("product validation failed")
		if s.metrics != nil {
			s.metrics.RecordCreateFailed("products_not_found")
		}
		return domain.Order{}, domain.ErrProductsNotFound
	}

	byID := productIndex(validated)
	now := time.Now().UTC()

	var totalAmount float64
	var totalItems int32
	orderItems := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			// Валидация прошла, но товара нет в ответе — нарушение инварианта
			// обмена, а не бизнес-ошибка; операцию проваливаем целиком.
			if s.metrics != nil {
				s.metrics.RecordCreateFailed("validation_invariant")
			}
			return domain.Order{}, fmt.Errorf("product %d missing in validation response", item.ProductID)
		}

		totalAmount += product.Price * float64(item.Quantity)
		totalItems += item.Quantity
		orderItems = append(orderItems, domain.OrderItem{
			ID:        uuid.NewString(),
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     product.Price,
			CreatedAt: now,
		})
	}

	order := domain.Order{
		ID:          uuid.NewString(),
		TotalAmount: totalAmount,
		TotalItems:  totalItems,
		Status:      domain.OrderStatusPending,
		Items:       orderItems,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, domain.NewValidationError(joinErrors(errs))
	}

	created, err := s.repo.CreateWithItems(order)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to persist order")
		if s.metrics != nil {
			s.metrics.RecordCreateFailed("persistence")
		}
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}

	// Имена берём из уже полученного списка товаров, без второго round-trip.
	enrichItems(created.Items, byID)

	s.enqueueEvent(kafka.EventTypeOrderCreated, created)
	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}

	s.logger.WithFields(log.Fields{
		"order_id":     created.ID,
		"total_amount": created.TotalAmount,
		"total_items":  created.TotalItems,
	}).Info("order created")

	return created, nil
}

// FindAll возвращает страницу заказов без позиций и метаданные пагинации.
func (s *Service) FindAll(ctx context.Context, query ListQuery) (domain.Page, error) {
	defer s.observe(operationFindAll, time.Now())

	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}

	query = query.normalized()

	total, err := s.repo.CountByStatus(query.Status)
	if err != nil {
		return domain.Page{}, fmt.Errorf("count orders: %w", err)
	}

	totalPages := ceilDiv(total, query.Limit)
	// lastPage намеренно считается от totalPages, а не от total: двойное
	// деление — зафиксированное наблюдаемое поведение внешнего контракта.
	lastPage := ceilDiv(totalPages, query.Limit)

	data, err := s.repo.FindPaged(query.Status, (query.Page-1)*query.Limit, query.Limit)
	if err != nil {
		return domain.Page{}, fmt.Errorf("list orders: %w", err)
	}

	return domain.Page{
		Data: data,
		Meta: domain.PageMeta{
			Total:      total,
			Page:       query.Page,
			TotalPages: totalPages,
			LastPage:   lastPage,
		},
	}, nil
}

// FindOne возвращает заказ с позициями, обогащёнными именами товаров.
// Цены не перезапрашиваются: это неизменяемый снимок на момент создания.
func (s *Service) FindOne(ctx context.Context, id string) (domain.Order, error) {
	defer s.observe(operationFindOne, time.Now())

	order, err := s.repo.GetWithItems(id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, domain.NewOrderNotFound(id)
		}
		s.logger.WithError(err).WithField("order_id", id).Error("failed to load order")
		return domain.Order{}, fmt.Errorf("load order: %w", err)
	}

	productIDs := make([]int64, 0, len(order.Items))
	seen := make(map[int64]struct{}, len(order.Items))
	for _, item := range order.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		productIDs = append(productIDs, item.ProductID)
	}

	if len(productIDs) == 0 {
		return order, nil
	}

	// Отдельный round-trip только за именами. Если товар к этому моменту
	// удалён на стороне product-сервиса, имя остаётся пустым: денежные данные
	// уже сохранены и выдача заказа важнее полного обогащения.
	validated, err := s.products.Validate(ctx, productIDs)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", id).Warn("product names unavailable, returning order without enrichment")
		return order, nil
	}

	enrichItems(order.Items, productIndex(validated))
	return order, nil
}

// ChangeStatus переводит заказ в новый статус. Переходы не ограничены;
// повторная установка текущего статуса — идемпотентный no-op без записи.
func (s *Service) ChangeStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	defer s.observe(operationChangeStatus, time.Now())

	order, err := s.FindOne(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status == status {
		return order, nil
	}

	updated, err := s.repo.UpdateStatus(id, status, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, domain.NewOrderNotFound(id)
		}
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": id,
			"status":   status,
		}).Error("failed to update order status")
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}

	s.appendHistory(domain.StatusChange{
		OrderID:   updated.ID,
		From:      order.Status,
		To:        updated.Status,
		ChangedAt: updated.UpdatedAt,
	})
	s.enqueueEvent(kafka.EventTypeOrderStatusChanged, updated)
	if s.metrics != nil {
		s.metrics.RecordStatusChanged(string(updated.Status))
	}

	return updated, nil
}

func (s *Service) appendHistory(change domain.StatusChange) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(change); err != nil {
		s.logger.WithError(err).WithField("order_id", change.OrderID).Warn("failed to append status history")
	}
}

func (s *Service) enqueueEvent(eventType kafka.EventType, order domain.Order) {
	if s.outbox == nil {
		return
	}

	event := kafka.NewOrderEvent(eventType, order.ID, string(order.Status), order.TotalAmount, order.TotalItems)
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to marshal order event")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue order event")
	}
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(operation, time.Since(start))
}

func (q ListQuery) normalized() ListQuery {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Status == "" {
		q.Status = domain.OrderStatusPending
	}
	return q
}

// distinctProductIDs извлекает уникальные productId, сохраняя порядок появления.
func distinctProductIDs(items []ItemInput) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func productIndex(products []domain.Product) map[int64]domain.Product {
	index := make(map[int64]domain.Product, len(products))
	for _, product := range products {
		index[product.ID] = product
	}
	return index
}

func enrichItems(items []domain.OrderItem, byID map[int64]domain.Product) {
	for i := range items {
		if product, ok := byID[items[i].ProductID]; ok {
			items[i].Name = product.Name
		}
	}
}

func ceilDiv(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}

func joinErrors(errs []error) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}
