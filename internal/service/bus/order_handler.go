package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/service/orders"
)

// OrderHandler — входной слой шины: декодирует DTO команд, валидирует
// параметры до вызова сервиса и сериализует результат в ответ.
type OrderHandler struct {
	service *orders.Service
	logger  *log.Entry
}

// NewOrderHandler конструирует обработчик команд заказов.
func NewOrderHandler(service *orders.Service, logger *log.Entry) *OrderHandler {
	if logger == nil {
		logger = log.WithField("component", "bus-handler")
	}
	return &OrderHandler{service: service, logger: logger}
}

// Routes возвращает таблицу обработчиков по топикам команд.
func (h *OrderHandler) Routes() map[string]kafka.HandlerFunc {
	return map[string]kafka.HandlerFunc{
		kafka.TopicCreateOrder:  h.handleCreate,
		kafka.TopicFindAll:      h.handleFindAll,
		kafka.TopicFindOne:      h.handleFindOne,
		kafka.TopicChangeStatus: h.handleChangeStatus,
	}
}

// MapError переводит ошибку обработчика в {status, message} ответа шины.
// Доменные ошибки уходят как есть, всё остальное прячется за 500.
func MapError(err error) kafka.RemoteError {
	if domainErr, ok := domain.AsError(err); ok {
		return kafka.RemoteError{Status: domainErr.Status, Message: domainErr.Message}
	}
	return kafka.RemoteError{Status: http.StatusInternalServerError, Message: "Internal server error"}
}

type orderItemDTO struct {
	ProductID int64 `json:"productId"`
	Quantity  int32 `json:"quantity"`
}

type createOrderRequest struct {
	Items []orderItemDTO `json:"items"`
}

type paginationRequest struct {
	Page   *int    `json:"page,omitempty"`
	Limit  *int    `json:"limit,omitempty"`
	Status *string `json:"status,omitempty"`
}

type findOneRequest struct {
	ID string `json:"id"`
}

type changeStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type orderItemResponse struct {
	ProductID int64   `json:"productId"`
	Quantity  int32   `json:"quantity"`
	Price     float64 `json:"price"`
	Name      string  `json:"name,omitempty"`
}

type orderResponse struct {
	ID          string              `json:"id"`
	TotalAmount float64             `json:"totalAmount"`
	TotalItems  int32               `json:"totalItems"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	Items       []orderItemResponse `json:"items,omitempty"`
}

type pageMetaResponse struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	TotalPages int64 `json:"totalPages"`
	LastPage   int64 `json:"lastPage"`
}

type pageResponse struct {
	Data []orderResponse  `json:"data"`
	Meta pageMetaResponse `json:"meta"`
}

func (h *OrderHandler) handleCreate(ctx context.Context, payload []byte) (interface{}, error) {
	var req createOrderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.NewValidationError("malformed create order payload")
	}

	if len(req.Items) == 0 {
		return nil, domain.NewValidationError("items must contain at least one element")
	}

	items := make([]orders.ItemInput, 0, len(req.Items))
	for idx, item := range req.Items {
		if item.ProductID <= 0 {
			return nil, domain.NewValidationError(fmt.Sprintf("items[%d].productId must be a positive number", idx))
		}
		if item.Quantity <= 0 {
			return nil, domain.NewValidationError(fmt.Sprintf("items[%d].quantity must be a positive number", idx))
		}
		items = append(items, orders.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.service.Create(ctx, items)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

func (h *OrderHandler) handleFindAll(ctx context.Context, payload []byte) (interface{}, error) {
	query := orders.ListQuery{
		Page:   orders.DefaultPage,
		Limit:  orders.DefaultLimit,
		Status: domain.OrderStatusPending,
	}

	// Пустой payload допустим: применяются значения по умолчанию.
	if len(payload) > 0 && string(payload) != "null" {
		var req paginationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.NewValidationError("malformed pagination payload")
		}

		if req.Page != nil {
			if *req.Page < 1 {
				return nil, domain.NewValidationError("page must be a positive number")
			}
			query.Page = *req.Page
		}
		if req.Limit != nil {
			if *req.Limit < 1 {
				return nil, domain.NewValidationError("limit must be a positive number")
			}
			query.Limit = *req.Limit
		}
		if req.Status != nil {
			status, ok := domain.ParseOrderStatus(*req.Status)
			if !ok {
				return nil, invalidStatusError(*req.Status)
			}
			query.Status = status
		}
	}

	page, err := h.service.FindAll(ctx, query)
	if err != nil {
		return nil, err
	}

	data := make([]orderResponse, 0, len(page.Data))
	for _, order := range page.Data {
		data = append(data, toOrderResponse(order))
	}

	return pageResponse{
		Data: data,
		Meta: pageMetaResponse{
			Total:      page.Meta.Total,
			Page:       page.Meta.Page,
			TotalPages: page.Meta.TotalPages,
			LastPage:   page.Meta.LastPage,
		},
	}, nil
}

func (h *OrderHandler) handleFindOne(ctx context.Context, payload []byte) (interface{}, error) {
	var req findOneRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.NewValidationError("malformed find one payload")
	}

	if err := validateOrderID(req.ID); err != nil {
		return nil, err
	}

	order, err := h.service.FindOne(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

func (h *OrderHandler) handleChangeStatus(ctx context.Context, payload []byte) (interface{}, error) {
	var req changeStatusRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.NewValidationError("malformed change status payload")
	}

	if err := validateOrderID(req.ID); err != nil {
		return nil, err
	}
	status, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		return nil, invalidStatusError(req.Status)
	}

	order, err := h.service.ChangeStatus(ctx, req.ID, status)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

func validateOrderID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.NewValidationError("id must be a UUID")
	}
	return nil
}

func invalidStatusError(raw string) error {
	return domain.NewValidationError(fmt.Sprintf(
		"%s is not a valid order status. Possible values: %s",
		raw, strings.Join(domain.OrderStatusNames(), ", "),
	))
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Name:      item.Name,
		})
	}

	return orderResponse{
		ID:          order.ID,
		TotalAmount: order.TotalAmount,
		TotalItems:  order.TotalItems,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
		Items:       items,
	}
}
