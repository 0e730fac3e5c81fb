package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/service/tracking"
)

const defaultHeartbeat = 15 * time.Second

// TrackingHandler serves courier location pushes, tracking reads and the live stream.
type TrackingHandler struct {
	registry  trackingRegistry
	logger    logx.Logger
	heartbeat time.Duration
}

// NewTrackingHandler creates a TrackingHandler.
func NewTrackingHandler(logger logx.Logger, registry trackingRegistry) *TrackingHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &TrackingHandler{registry: registry, logger: logger, heartbeat: defaultHeartbeat}
}

// PushLocation handles POST /v1/couriers/{id}/location.
func (h *TrackingHandler) PushLocation(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req locationPushRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	p := tracking.Ping{
		CourierID: id,
		Point:     geo.Point{Lat: *req.Latitude, Lon: *req.Longitude},
		Heading:   req.Heading,
		Speed:     req.Speed,
	}
	if req.Timestamp != nil {
		p.At = *req.Timestamp
	}
	if err := h.registry.PushLocation(r.Context(), p); err != nil {
		writeDomainError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Courier handles GET /v1/tracking/couriers/{id}.
func (h *TrackingHandler) Courier(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, ok := h.registry.Get(id)
	if !ok {
		writeError(h.logger, w, r, http.StatusNotFound, "courier not tracked")
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, entryToResponse(e))
}

// Couriers handles GET /v1/tracking/couriers.
func (h *TrackingHandler) Couriers(w http.ResponseWriter, r *http.Request) {
	entries := h.registry.GetAll()
	resp := make([]trackingEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, entryToResponse(e))
	}
	writeJSON(h.logger, w, r, http.StatusOK, resp)
}

// Order handles GET /v1/tracking/orders/{id}.
func (h *TrackingHandler) Order(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromURL(r)
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid order id")
		return
	}
	t, ok := h.registry.GetOrderTrack(id)
	if !ok {
		writeError(h.logger, w, r, http.StatusNotFound, "no active delivery")
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, trackToResponse(t))
}

// Stream handles GET /v1/stream?kind=customer|courier|admin&id=N as server-sent events.
func (h *TrackingHandler) Stream(w http.ResponseWriter, r *http.Request) {
	kind, err := tracking.ParseSubscriberKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeDomainError(h.logger, w, r, err)
		return
	}
	var id int64
	if s := r.URL.Query().Get("id"); s != "" {
		if id, err = strconv.ParseInt(s, 10, 64); err != nil {
			writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
			return
		}
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(h.logger, w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub, err := h.registry.Subscribe(kind, id)
	if err != nil {
		writeDomainError(h.logger, w, r, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("stream opened",
		logx.String("req_id", reqID(r.Context())),
		logx.String("kind", string(kind)),
		logx.Int64("id", id),
	)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			// кадр несёт весь конверт {"type","data"}, строка event: дублирует тип для EventSource
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("stream encode failed", logx.String("type", ev.Type), logx.Err(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
