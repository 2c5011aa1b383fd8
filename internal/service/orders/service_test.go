package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/products"
	"github.com/vladislavdragonenkov/orders/internal/storage/memory"
)

type fixture struct {
	service *Service
	repo    *memory.OrderRepository
	outbox  *memory.OutboxRepository
	history *memory.StatusHistoryRepository
	mock    *products.Mock
}

func newFixture(t *testing.T, catalog ...domain.Product) *fixture {
	t.Helper()

	repo := memory.NewOrderRepository()
	outboxRepo := memory.NewOutboxRepository()
	historyRepo := memory.NewStatusHistoryRepository()

	var mock *products.Mock
	if len(catalog) > 0 {
		mock = products.NewMockWithCatalog(catalog...)
	} else {
		mock = products.NewMock()
	}

	service := NewService(
		repo,
		mock,
		nil,
		WithOutbox(outboxRepo),
		WithStatusHistory(historyRepo),
	)

	return &fixture{
		service: service,
		repo:    repo,
		outbox:  outboxRepo,
		history: historyRepo,
		mock:    mock,
	}
}

func TestService_Create_ComputesTotalsFromPriceSnapshots(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.Product{ID: 10, Name: "Widget", Price: 15.00})

	order, err := f.service.Create(context.Background(), []ItemInput{
		{ProductID: 10, Quantity: 2},
	})
	require.NoError(t, err)

	require.NotEmpty(t, order.ID)
	require.InDelta(t, 30.00, order.TotalAmount, 1e-9)
	require.Equal(t, int32(2), order.TotalItems)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 1)
	require.Equal(t, "Widget", order.Items[0].Name)
	require.InDelta(t, 15.00, order.Items[0].Price, 1e-9)
	require.False(t, order.CreatedAt.IsZero())
	require.Equal(t, order.CreatedAt, order.UpdatedAt)

	// Событие order.created попало в outbox.
	pending, err := f.outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "order.created", pending[0].EventType)
	require.Equal(t, order.ID, pending[0].AggregateID)
}

func TestService_Create_SingleValidationRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.service.Create(context.Background(), []ItemInput{
		{ProductID: 1, Quantity: 1},
		{ProductID: 2, Quantity: 3},
		{ProductID: 1, Quantity: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.mock.Calls())
}

func TestService_Create_UnknownProduct(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.service.Create(context.Background(), []ItemInput{
		{ProductID: 1, Quantity: 1},
		{ProductID: 99, Quantity: 1},
	})
	require.Error(t, err)

	domainErr, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, 404, domainErr.Status)
	require.Equal(t, "Products not found", domainErr.Message)

	// Заказ не должен быть создан даже частично.
	require.Equal(t, 0, f.repo.Writes())
}

func TestService_Create_MergesQuantitiesPerLine(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		domain.Product{ID: 1, Name: "Keyboard", Price: 49.90},
		domain.Product{ID: 2, Name: "Mouse", Price: 19.90},
	)

	order, err := f.service.Create(context.Background(), []ItemInput{
		{ProductID: 1, Quantity: 1},
		{ProductID: 2, Quantity: 2},
	})
	require.NoError(t, err)

	require.InDelta(t, 49.90+2*19.90, order.TotalAmount, 1e-9)
	require.Equal(t, int32(3), order.TotalItems)
	require.Len(t, order.Items, 2)
}

func TestService_FindOne_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	missingID := uuid.NewString()

	_, err := f.service.FindOne(context.Background(), missingID)
	require.Error(t, err)

	domainErr, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, 404, domainErr.Status)
	require.Contains(t, domainErr.Message, missingID)
}

func TestService_FindOne_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	created, err := f.service.Create(context.Background(), []ItemInput{
		{ProductID: 1, Quantity: 1},
	})
	require.NoError(t, err)

	first, err := f.service.FindOne(context.Background(), created.ID)
	require.NoError(t, err)
	second, err := f.service.FindOne(context.Background(), created.ID)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestService_FindOne_EnrichmentFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	created, err := f.service.Create(context.Background(), []ItemInput{
		{ProductID: 1, Quantity: 1},
	})
	require.NoError(t, err)

	// Product-сервис недоступен: заказ всё равно выдаётся, но без имён.
	f.mock.FailWith(errors.New("bus unavailable"))

	order, err := f.service.FindOne(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, order.ID)
	require.Len(t, order.Items, 1)
	require.Empty(t, order.Items[0].Name)
	require.InDelta(t, 49.90, order.Items[0].Price, 1e-9)
}

func TestService_ChangeStatus_NoOpOnSameStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	created, err := f.service.Create(context.Background(), []ItemInput{
		{ProductID: 1, Quantity: 1},
	})
	require.NoError(t, err)

	writesBefore := f.repo.Writes()

	order, err := f.service.ChangeStatus(context.Background(), created.ID, domain.OrderStatusPending)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, order.Status)

	// Повторная установка текущего статуса не пишет в хранилище.
	require.Equal(t, writesBefore, f.repo.Writes())

	history, err := f.history.List(created.ID)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestService_ChangeStatus_UpdatesAndRecordsHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	created, err := f.service.Create(context.Background(), []ItemInput{
		{ProductID: 1, Quantity: 1},
	})
	require.NoError(t, err)

	updated, err := f.service.ChangeStatus(context.Background(), created.ID, domain.OrderStatusDelivered)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusDelivered, updated.Status)
	require.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	found, err := f.service.FindOne(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusDelivered, found.Status)

	history, err := f.history.List(created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, domain.OrderStatusPending, history[0].From)
	require.Equal(t, domain.OrderStatusDelivered, history[0].To)

	pending, err := f.outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "order.status_changed", pending[1].EventType)
}

func TestService_ChangeStatus_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	missingID := uuid.NewString()

	_, err := f.service.ChangeStatus(context.Background(), missingID, domain.OrderStatusCancelled)
	require.Error(t, err)

	domainErr, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, 404, domainErr.Status)
	require.Contains(t, domainErr.Message, missingID)
}

func TestService_FindAll_PaginationMeta(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for i := 0; i < 25; i++ {
		_, err := f.service.Create(context.Background(), []ItemInput{
			{ProductID: 1, Quantity: 1},
		})
		require.NoError(t, err, fmt.Sprintf("create order %d", i))
	}

	page, err := f.service.FindAll(context.Background(), ListQuery{Page: 2, Limit: 10, Status: domain.OrderStatusPending})
	require.NoError(t, err)

	require.Len(t, page.Data, 10)
	require.Equal(t, int64(25), page.Meta.Total)
	require.Equal(t, 2, page.Meta.Page)
	require.Equal(t, int64(3), page.Meta.TotalPages)
	// lastPage = ceil(totalPages/limit): наблюдаемое поведение контракта.
	require.Equal(t, int64(1), page.Meta.LastPage)

	// Окна страниц не пересекаются.
	first, err := f.service.FindAll(context.Background(), ListQuery{Page: 1, Limit: 10, Status: domain.OrderStatusPending})
	require.NoError(t, err)
	seen := make(map[string]struct{})
	for _, order := range first.Data {
		seen[order.ID] = struct{}{}
	}
	for _, order := range page.Data {
		_, dup := seen[order.ID]
		require.False(t, dup, "order %s appears on both pages", order.ID)
	}
}

func TestService_FindAll_Defaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.service.Create(context.Background(), []ItemInput{
		{ProductID: 1, Quantity: 1},
	})
	require.NoError(t, err)

	page, err := f.service.FindAll(context.Background(), ListQuery{})
	require.NoError(t, err)

	require.Equal(t, 1, page.Meta.Page)
	require.Equal(t, int64(1), page.Meta.Total)
	require.Len(t, page.Data, 1)
	// Список не тянет позиции заказов.
	require.Empty(t, page.Data[0].Items)
}

func TestService_FindAll_StatusFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var delivered string
	for i := 0; i < 3; i++ {
		order, err := f.service.Create(context.Background(), []ItemInput{
			{ProductID: 1, Quantity: 1},
		})
		require.NoError(t, err)
		if i == 0 {
			delivered = order.ID
		}
	}

	_, err := f.service.ChangeStatus(context.Background(), delivered, domain.OrderStatusDelivered)
	require.NoError(t, err)

	deliveredPage, err := f.service.FindAll(context.Background(), ListQuery{Status: domain.OrderStatusDelivered})
	require.NoError(t, err)
	require.Equal(t, int64(1), deliveredPage.Meta.Total)
	require.Len(t, deliveredPage.Data, 1)
	require.Equal(t, delivered, deliveredPage.Data[0].ID)

	pendingPage, err := f.service.FindAll(context.Background(), ListQuery{Status: domain.OrderStatusPending})
	require.NoError(t, err)
	require.Equal(t, int64(2), pendingPage.Meta.Total)
}

func TestCeilDiv(t *testing.T) {
	t.Parallel()

	cases := []struct {
		total int64
		limit int
		want  int64
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
		{3, 10, 1},
	}
	for _, tc := range cases {
		if got := ceilDiv(tc.total, tc.limit); got != tc.want {
			t.Errorf("ceilDiv(%d, %d) = %d, want %d", tc.total, tc.limit, got, tc.want)
		}
	}
}
