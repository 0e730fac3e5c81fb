package kafka_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/service/tracking"
	"laundry-dispatch/internal/transport/kafka"
)

func ptr(v float64) *float64 { return &v }

func TestToPing_CopiesFields(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	dto := kafka.MessageDTO{
		Type:      kafka.TypeCourierLocation,
		CourierID: 9,
		Latitude:  ptr(9.01),
		Longitude: ptr(38.76),
		Heading:   ptr(90),
		Timestamp: ts,
	}
	require.NoError(t, dto.Validate())

	require.Equal(t, tracking.Ping{
		CourierID: 9,
		Point:     geo.Point{Lat: 9.01, Lon: 38.76},
		Heading:   ptr(90),
		At:        ts,
	}, kafka.ToPing(dto))
}

func TestMessageDTO_Validate(t *testing.T) {
	t.Parallel()

	bad := []kafka.MessageDTO{
		{},
		{Type: "courier_moved", CourierID: 1},
		{Type: kafka.TypeCourierLocation, Latitude: ptr(1), Longitude: ptr(1)},
		{Type: kafka.TypeCourierLocation, CourierID: 1, Latitude: ptr(1)},
		{Type: kafka.TypePaymentSettled, OrderID: " "},
	}
	for _, m := range bad {
		require.ErrorIs(t, m.Validate(), apperr.ErrInvalid, "%+v", m)
	}
	require.NoError(t, kafka.MessageDTO{Type: kafka.TypePaymentSettled, OrderID: "o-1"}.Validate())
}
