package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/http/handlers"
	"laundry-dispatch/internal/service/intake"
	"laundry-dispatch/internal/service/lifecycle"
)

type stubIntake struct {
	createFn func(ctx context.Context, r intake.Request) (*domain.Order, error)
}

func (s *stubIntake) Create(ctx context.Context, r intake.Request) (*domain.Order, error) {
	return s.createFn(ctx, r)
}

type actorFn func(ctx context.Context, orderID string, actorID int64) (*domain.Order, error)

type stubLifecycle struct {
	orderFn   func(ctx context.Context, id string) (*domain.Order, error)
	actionFn  actorFn
	paymentFn func(ctx context.Context, orderID string) (*domain.Order, error)
	cancelFn  func(ctx context.Context, orderID string, a lifecycle.Actor, reason string) (*domain.Order, error)
	calls     []string
}

func (s *stubLifecycle) Order(ctx context.Context, id string) (*domain.Order, error) {
	return s.orderFn(ctx, id)
}

func (s *stubLifecycle) call(ctx context.Context, name, id string, actor int64) (*domain.Order, error) {
	s.calls = append(s.calls, name)
	return s.actionFn(ctx, id, actor)
}

func (s *stubLifecycle) Accept(ctx context.Context, id string, actor int64) (*domain.Order, error) {
	return s.call(ctx, "accept", id, actor)
}

func (s *stubLifecycle) Reject(ctx context.Context, id string, actor int64) (*domain.Order, error) {
	return s.call(ctx, "reject", id, actor)
}

func (s *stubLifecycle) Start(ctx context.Context, id string, actor int64) (*domain.Order, error) {
	return s.call(ctx, "start", id, actor)
}

func (s *stubLifecycle) MarkReady(ctx context.Context, id string, actor int64) (*domain.Order, error) {
	return s.call(ctx, "ready", id, actor)
}

func (s *stubLifecycle) ConfirmPickup(ctx context.Context, id string, actor int64) (*domain.Order, error) {
	return s.call(ctx, "pickup", id, actor)
}

func (s *stubLifecycle) Deliver(ctx context.Context, id string, actor int64) (*domain.Order, error) {
	return s.call(ctx, "deliver", id, actor)
}

func (s *stubLifecycle) ConfirmCash(ctx context.Context, id string, actor int64) (*domain.Order, error) {
	return s.call(ctx, "cash", id, actor)
}

func (s *stubLifecycle) ConfirmPayment(ctx context.Context, id string) (*domain.Order, error) {
	return s.paymentFn(ctx, id)
}

func (s *stubLifecycle) Cancel(ctx context.Context, id string, a lifecycle.Actor, reason string) (*domain.Order, error) {
	return s.cancelFn(ctx, id, a, reason)
}

type orderBody struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	Subtotal       float64 `json:"subtotal"`
	DeliveryCharge float64 `json:"delivery_charge"`
	GrandTotal     float64 `json:"grand_total"`
	ProviderID     int64   `json:"provider_id"`
	CancelReason   string  `json:"cancel_reason"`
	Pickup         *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Address   string  `json:"address"`
	} `json:"pickup"`
	Delivery *json.RawMessage `json:"delivery"`
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:             "ord-1",
		CustomerID:     100,
		ProviderID:     7,
		Pickup:         &domain.Location{Point: geo.Point{Lat: 9, Lon: 38.75}, Address: "Bole 12"},
		Subtotal:       domain.MoneyFromUnits(66),
		DeliveryCharge: domain.MoneyFromUnits(0),
		GrandTotal:     domain.MoneyFromUnits(66),
		PaymentMethod:  domain.PaymentOnline,
		Priority:       domain.PriorityNormal,
		Status:         domain.OrderAssigned,
		CreatedAt:      time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestOrderHandler_Create_OK(t *testing.T) {
	t.Parallel()

	in := &stubIntake{createFn: func(_ context.Context, r intake.Request) (*domain.Order, error) {
		require.Equal(t, int64(100), r.CustomerID)
		require.NotNil(t, r.Pickup)
		require.Nil(t, r.Delivery)
		require.Equal(t, "Bole 12", r.Pickup.Address)
		require.Equal(t, domain.PaymentCashOnDelivery, r.PaymentMethod)
		require.Equal(t, domain.PriorityUrgent, r.Priority)
		require.Len(t, r.Items, 1)
		require.Equal(t, intake.ItemRequest{ProductKey: "shirt", CategoryKey: "wash", Quantity: 3}, r.Items[0])
		return sampleOrder(), nil
	}}
	h := handlers.NewOrderHandler(testLogger(), in, &stubLifecycle{})

	body := `{"customer_id":100,"pickup":{"latitude":9,"longitude":38.75,"address":"Bole 12"},
		"items":[{"product_key":"shirt","category_key":"wash","quantity":3}],
		"payment_method":"CASH_ON_DELIVERY","priority":"URGENT"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
	rr := httptest.NewRecorder()

	h.Create(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "/v1/orders/ord-1", rr.Header().Get("Location"))

	var resp orderBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Equal(t, "ord-1", resp.ID)
	require.Equal(t, string(domain.OrderAssigned), resp.Status)
	require.InDelta(t, 66.0, resp.Subtotal, 1e-9)
	require.InDelta(t, 66.0, resp.GrandTotal, 1e-9)
	require.NotNil(t, resp.Pickup)
	require.Equal(t, "Bole 12", resp.Pickup.Address)
	require.Nil(t, resp.Delivery)
}

func TestOrderHandler_Create_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("no items: %w", apperr.ErrInvalid), http.StatusBadRequest},
		{"catalog miss", apperr.ErrCatalogMiss, http.StatusUnprocessableEntity},
		{"out of stock", apperr.ErrOutOfStock, http.StatusUnprocessableEntity},
		{"unavailable", apperr.ErrUnavailable, http.StatusServiceUnavailable},
		{"cancelled", apperr.ErrCancelled, 499},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			in := &stubIntake{createFn: func(context.Context, intake.Request) (*domain.Order, error) {
				return nil, tc.err
			}}
			h := handlers.NewOrderHandler(testLogger(), in, &stubLifecycle{})
			req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"customer_id":1}`))
			rr := httptest.NewRecorder()

			h.Create(rr, req)

			require.Equal(t, tc.want, rr.Code)
			var resp handlers.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			require.NotEmpty(t, resp.Error)
		})
	}
}

func TestOrderHandler_Create_BadJSON(t *testing.T) {
	t.Parallel()

	called := false
	in := &stubIntake{createFn: func(context.Context, intake.Request) (*domain.Order, error) {
		called = true
		return nil, nil
	}}
	h := handlers.NewOrderHandler(testLogger(), in, &stubLifecycle{})

	for _, body := range []string{`{"customer_id":`, `{"unknown":1}`, `{"customer_id":1}{}`} {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.Create(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	require.False(t, called)
}

func TestOrderHandler_Get(t *testing.T) {
	t.Parallel()

	lc := &stubLifecycle{orderFn: func(_ context.Context, id string) (*domain.Order, error) {
		if id == "ord-1" {
			return sampleOrder(), nil
		}
		return nil, apperr.ErrNotFound
	}}
	h := handlers.NewOrderHandler(testLogger(), &stubIntake{}, lc)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/orders/ord-1", nil), "id", "ord-1")
	rr := httptest.NewRecorder()
	h.Get(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/v1/orders/nope", nil), "id", "nope")
	rr = httptest.NewRecorder()
	h.Get(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOrderHandler_Actions(t *testing.T) {
	t.Parallel()

	lc := &stubLifecycle{actionFn: func(_ context.Context, id string, actor int64) (*domain.Order, error) {
		require.Equal(t, "ord-1", id)
		require.Equal(t, int64(7), actor)
		return sampleOrder(), nil
	}}
	h := handlers.NewOrderHandler(testLogger(), &stubIntake{}, lc)

	actions := []struct {
		name string
		fn   http.HandlerFunc
	}{
		{"accept", h.Accept},
		{"reject", h.Reject},
		{"start", h.Start},
		{"ready", h.Ready},
		{"pickup", h.Pickup},
		{"deliver", h.Deliver},
		{"cash", h.Cash},
	}
	for _, a := range actions {
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/orders/ord-1/"+a.name, nil), "id", "ord-1")
		req.Header.Set("X-Actor-ID", "7")
		rr := httptest.NewRecorder()

		a.fn(rr, req)

		require.Equal(t, http.StatusOK, rr.Code, a.name)
	}
	require.Equal(t, []string{"accept", "reject", "start", "ready", "pickup", "deliver", "cash"}, lc.calls)
}

func TestOrderHandler_Actions_MissingActor(t *testing.T) {
	t.Parallel()

	lc := &stubLifecycle{}
	h := handlers.NewOrderHandler(testLogger(), &stubIntake{}, lc)

	for _, hdr := range []string{"", "abc", "-3"} {
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/orders/ord-1/accept", nil), "id", "ord-1")
		if hdr != "" {
			req.Header.Set("X-Actor-ID", hdr)
		}
		rr := httptest.NewRecorder()
		h.Accept(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code, hdr)
	}
	require.Empty(t, lc.calls)
}

func TestOrderHandler_Actions_DomainErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{apperr.ErrIllegalTransition, http.StatusConflict},
		{apperr.ErrForbidden, http.StatusForbidden},
		{apperr.ErrCapacityLost, http.StatusConflict},
		{apperr.ErrPreconditionFailed, http.StatusConflict},
		{apperr.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		lc := &stubLifecycle{actionFn: func(context.Context, string, int64) (*domain.Order, error) {
			return nil, fmt.Errorf("wrapped: %w", tc.err)
		}}
		h := handlers.NewOrderHandler(testLogger(), &stubIntake{}, lc)
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/orders/ord-1/start", nil), "id", "ord-1")
		req.Header.Set("X-Actor-ID", "7")
		rr := httptest.NewRecorder()

		h.Start(rr, req)

		require.Equal(t, tc.want, rr.Code, tc.err.Error())
	}
}

func TestOrderHandler_Payment(t *testing.T) {
	t.Parallel()

	lc := &stubLifecycle{paymentFn: func(_ context.Context, id string) (*domain.Order, error) {
		require.Equal(t, "ord-1", id)
		o := sampleOrder()
		o.Status = domain.OrderCompleted
		return o, nil
	}}
	h := handlers.NewOrderHandler(testLogger(), &stubIntake{}, lc)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/orders/ord-1/payment", nil), "id", "ord-1")
	rr := httptest.NewRecorder()
	h.Payment(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp orderBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Equal(t, string(domain.OrderCompleted), resp.Status)
}

func TestOrderHandler_Cancel(t *testing.T) {
	t.Parallel()

	lc := &stubLifecycle{cancelFn: func(_ context.Context, id string, a lifecycle.Actor, reason string) (*domain.Order, error) {
		require.Equal(t, "ord-1", id)
		require.Equal(t, lifecycle.Actor{Role: lifecycle.RoleCustomer, ID: 100}, a)
		o := sampleOrder()
		o.Status = domain.OrderCancelled
		o.CancelReason = reason
		return o, nil
	}}
	h := handlers.NewOrderHandler(testLogger(), &stubIntake{}, lc)

	body := `{"actor_id":100,"actor_role":"customer","reason":"changed my mind"}`
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/orders/ord-1/cancel", strings.NewReader(body)), "id", "ord-1")
	rr := httptest.NewRecorder()
	h.Cancel(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp orderBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Equal(t, string(domain.OrderCancelled), resp.Status)
	require.Equal(t, "changed my mind", resp.CancelReason)
}

func TestOrderHandler_Cancel_BadRole(t *testing.T) {
	t.Parallel()

	lc := &stubLifecycle{cancelFn: func(context.Context, string, lifecycle.Actor, string) (*domain.Order, error) {
		t.Fatal("cancel must not be called")
		return nil, nil
	}}
	h := handlers.NewOrderHandler(testLogger(), &stubIntake{}, lc)

	body := `{"actor_id":100,"actor_role":"janitor","reason":"x"}`
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/orders/ord-1/cancel", strings.NewReader(body)), "id", "ord-1")
	rr := httptest.NewRecorder()
	h.Cancel(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}
