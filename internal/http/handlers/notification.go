package handlers

import (
	"net/http"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/logx"
)

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 200
)

// NotificationHandler serves the in-app notification inbox.
type NotificationHandler struct {
	inbox  notificationInbox
	logger logx.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(logger logx.Logger, inbox notificationInbox) *NotificationHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &NotificationHandler{inbox: inbox, logger: logger}
}

// List handles GET /v1/users/{id}/notifications?kind=customer&limit=N.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	kind := domain.RecipientKind(r.URL.Query().Get("kind"))
	switch kind {
	case "":
		kind = domain.RecipientCustomer
	case domain.RecipientCustomer, domain.RecipientProvider, domain.RecipientCourier:
	default:
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid kind")
		return
	}
	limit, err := intQuery(r, "limit", defaultInboxLimit)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 || limit > maxInboxLimit {
		limit = maxInboxLimit
	}

	list, err := h.inbox.ListNotifications(r.Context(), domain.Recipient{Kind: kind, ID: id}, limit)
	if err != nil {
		writeDomainError(h.logger, w, r, err)
		return
	}
	resp := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, notificationToResponse(n))
	}
	writeJSON(h.logger, w, r, http.StatusOK, resp)
}
