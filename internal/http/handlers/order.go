package handlers

import (
	"context"
	"net/http"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/service/lifecycle"
)

// OrderHandler serves order intake and lifecycle endpoints.
type OrderHandler struct {
	intake    orderIntake
	lifecycle orderLifecycle
	logger    logx.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(logger logx.Logger, in orderIntake, lc orderLifecycle) *OrderHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &OrderHandler{intake: in, lifecycle: lc, logger: logger}
}

// Create handles POST /v1/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	o, err := h.intake.Create(r.Context(), req.toModel())
	if err != nil {
		writeDomainError(h.logger, w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/orders/"+o.ID)
	writeJSON(h.logger, w, r, http.StatusCreated, orderToResponse(o))
}

// Get handles GET /v1/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromURL(r)
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.lifecycle.Order(r.Context(), id)
	if err != nil {
		writeDomainError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, orderToResponse(o))
}

type actorAction func(ctx context.Context, orderID string, actorID int64) (*domain.Order, error)

// act runs a provider or courier action; the acting party comes from X-Actor-ID.
func (h *OrderHandler) act(w http.ResponseWriter, r *http.Request, fn actorAction) {
	id, ok := orderIDFromURL(r)
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid order id")
		return
	}
	actor, err := actorID(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	o, err := fn(r.Context(), id, actor)
	if err != nil {
		writeDomainError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, orderToResponse(o))
}

// Accept handles POST /v1/orders/{id}/accept.
func (h *OrderHandler) Accept(w http.ResponseWriter, r *http.Request) { h.act(w, r, h.lifecycle.Accept) }

// Reject handles POST /v1/orders/{id}/reject.
func (h *OrderHandler) Reject(w http.ResponseWriter, r *http.Request) { h.act(w, r, h.lifecycle.Reject) }

// Start handles POST /v1/orders/{id}/start.
func (h *OrderHandler) Start(w http.ResponseWriter, r *http.Request) { h.act(w, r, h.lifecycle.Start) }

// Ready handles POST /v1/orders/{id}/ready.
func (h *OrderHandler) Ready(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.lifecycle.MarkReady)
}

// Pickup handles POST /v1/orders/{id}/pickup.
func (h *OrderHandler) Pickup(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.lifecycle.ConfirmPickup)
}

// Deliver handles POST /v1/orders/{id}/deliver.
func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.lifecycle.Deliver)
}

// Cash handles POST /v1/orders/{id}/cash.
func (h *OrderHandler) Cash(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.lifecycle.ConfirmCash)
}

// Payment handles POST /v1/orders/{id}/payment.
func (h *OrderHandler) Payment(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromURL(r)
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.lifecycle.ConfirmPayment(r.Context(), id)
	if err != nil {
		writeDomainError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, orderToResponse(o))
}

// Cancel handles POST /v1/orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromURL(r)
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid order id")
		return
	}
	var req cancelOrderRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	role, err := lifecycle.ParseRole(req.ActorRole)
	if err != nil {
		writeDomainError(h.logger, w, r, err)
		return
	}

	o, err := h.lifecycle.Cancel(r.Context(), id, lifecycle.Actor{Role: role, ID: req.ActorID}, req.Reason)
	if err != nil {
		writeDomainError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, orderToResponse(o))
}
