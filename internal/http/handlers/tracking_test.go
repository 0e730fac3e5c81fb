package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/clock"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/http/handlers"
	"laundry-dispatch/internal/repository/memory"
	"laundry-dispatch/internal/service/tracking"
)

type stubRegistry struct {
	pushFn  func(ctx context.Context, p tracking.Ping) error
	getFn   func(id int64) (domain.TrackingEntry, bool)
	allFn   func() []domain.TrackingEntry
	trackFn func(orderID string) (domain.DeliveryTrack, bool)
}

func (s *stubRegistry) PushLocation(ctx context.Context, p tracking.Ping) error { return s.pushFn(ctx, p) }

func (s *stubRegistry) Get(id int64) (domain.TrackingEntry, bool) { return s.getFn(id) }

func (s *stubRegistry) GetAll() []domain.TrackingEntry { return s.allFn() }

func (s *stubRegistry) GetOrderTrack(orderID string) (domain.DeliveryTrack, bool) {
	return s.trackFn(orderID)
}

func (s *stubRegistry) Subscribe(tracking.SubscriberKind, int64) (*tracking.Subscription, error) {
	return nil, apperr.ErrUnavailable
}

func TestTrackingHandler_PushLocation_OK(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	var got tracking.Ping
	reg := &stubRegistry{pushFn: func(_ context.Context, p tracking.Ping) error {
		got = p
		return nil
	}}
	h := handlers.NewTrackingHandler(testLogger(), reg)

	body := `{"latitude":9.01,"longitude":38.76,"heading":90,"timestamp":"2026-07-01T09:00:00Z"}`
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/couriers/5/location", strings.NewReader(body)), "id", "5")
	rr := httptest.NewRecorder()
	h.PushLocation(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, int64(5), got.CourierID)
	require.Equal(t, geo.Point{Lat: 9.01, Lon: 38.76}, got.Point)
	require.NotNil(t, got.Heading)
	require.InDelta(t, 90.0, *got.Heading, 1e-9)
	require.Nil(t, got.Speed)
	require.True(t, at.Equal(got.At))
}

func TestTrackingHandler_PushLocation_Errors(t *testing.T) {
	t.Parallel()

	reg := &stubRegistry{pushFn: func(_ context.Context, p tracking.Ping) error {
		if p.CourierID == 404 {
			return apperr.ErrNotFound
		}
		return p.Point.Validate()
	}}
	h := handlers.NewTrackingHandler(testLogger(), reg)

	cases := []struct {
		name string
		id   string
		body string
		want int
	}{
		{"bad id", "x", `{"latitude":1,"longitude":1}`, http.StatusBadRequest},
		{"missing coords", "5", `{"latitude":1}`, http.StatusBadRequest},
		{"out of range", "5", `{"latitude":91,"longitude":1}`, http.StatusBadRequest},
		{"unknown courier", "404", `{"latitude":1,"longitude":1}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/couriers/"+tc.id+"/location", strings.NewReader(tc.body)), "id", tc.id)
		rr := httptest.NewRecorder()
		h.PushLocation(rr, req)
		require.Equal(t, tc.want, rr.Code, tc.name)
	}
}

func TestTrackingHandler_Reads(t *testing.T) {
	t.Parallel()

	entry := domain.TrackingEntry{
		CourierID:    5,
		Location:     geo.Point{Lat: 9, Lon: 38.7},
		LastUpdateAt: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
		Status:       domain.CourierOnDelivery,
		OrderID:      "ord-1",
	}
	reg := &stubRegistry{
		getFn: func(id int64) (domain.TrackingEntry, bool) { return entry, id == 5 },
		allFn: func() []domain.TrackingEntry { return []domain.TrackingEntry{entry} },
		trackFn: func(orderID string) (domain.DeliveryTrack, bool) {
			return domain.DeliveryTrack{OrderID: "ord-1", CourierID: 5, DistanceRemainingKm: 2.5}, orderID == "ord-1"
		},
	}
	h := handlers.NewTrackingHandler(testLogger(), reg)

	rr := httptest.NewRecorder()
	h.Courier(rr, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "5"))
	require.Equal(t, http.StatusOK, rr.Code)
	var one map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&one))
	require.Equal(t, "ON_DELIVERY", one["status"])
	require.Equal(t, "ord-1", one["order_id"])

	rr = httptest.NewRecorder()
	h.Courier(rr, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "6"))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.Couriers(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var all []map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&all))
	require.Len(t, all, 1)

	rr = httptest.NewRecorder()
	h.Order(rr, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "ord-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	var tr map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&tr))
	require.InDelta(t, 2.5, tr["distance_remaining_km"], 1e-9)

	rr = httptest.NewRecorder()
	h.Order(rr, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "ord-2"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTrackingHandler_Stream_BadKind(t *testing.T) {
	t.Parallel()

	h := handlers.NewTrackingHandler(testLogger(), &stubRegistry{})

	for _, q := range []string{"", "?kind=robot", "?kind=courier&id=abc"} {
		rr := httptest.NewRecorder()
		h.Stream(rr, httptest.NewRequest(http.MethodGet, "/v1/stream"+q, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestTrackingHandler_Stream_DeliversEvents(t *testing.T) {
	t.Parallel()

	st := memory.New()
	st.PutCourier(domain.Courier{ID: 1, Name: "Abebe", Status: domain.CourierAvailable, ServiceRadiusKm: 15})
	reg := tracking.New(st, clock.NewReal(), tracking.Config{Buffer: 8}, nil)
	h := handlers.NewTrackingHandler(testLogger(), reg)

	srv := httptest.NewServer(http.HandlerFunc(h.Stream))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/stream?kind=courier&id=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return reg.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, reg.PushLocation(context.Background(), tracking.Ping{CourierID: 1, Point: geo.Point{Lat: 9, Lon: 38.7}}))

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: driver_location_update\n", line)
	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var frame struct {
		Type string                  `json:"type"`
		Data tracking.DriverLocation `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &frame))
	require.Equal(t, tracking.EventDriverLocation, frame.Type)
	require.Equal(t, int64(1), frame.Data.DriverID)
	require.InDelta(t, 9.0, frame.Data.Latitude, 1e-9)

	require.NoError(t, resp.Body.Close())
	require.Eventually(t, func() bool { return reg.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
