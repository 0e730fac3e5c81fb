package selector

import (
	"context"
	"fmt"
	"math"
	"sort"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/logx"
)

// CourierCandidate is an available courier with its distance to the target.
type CourierCandidate struct {
	Courier    domain.Courier
	DistanceKm float64
}

// CourierSelector finds available couriers around a point.
type CourierSelector struct {
	couriers    courierLister
	locator     Locator
	maxRadiusKm float64
	logger      logx.Logger
}

// NewCourierSelector returns a CourierSelector bounded by maxRadiusKm.
// locator may be nil.
func NewCourierSelector(couriers courierLister, locator Locator, maxRadiusKm float64, logger logx.Logger) *CourierSelector {
	if logger == nil {
		logger = logx.Nop()
	}
	return &CourierSelector{couriers: couriers, locator: locator, maxRadiusKm: maxRadiusKm, logger: logger}
}

// Select returns the nearest candidate or apperr.ErrNoCandidate.
func (s *CourierSelector) Select(ctx context.Context, target geo.Point) (CourierCandidate, error) {
	ranked, err := s.Rank(ctx, target)
	if err != nil {
		return CourierCandidate{}, err
	}
	if len(ranked) == 0 {
		return CourierCandidate{}, apperr.ErrNoCandidate
	}
	return ranked[0], nil
}

// Rank returns candidates nearest first, ties broken by higher rating then lower id.
func (s *CourierSelector) Rank(ctx context.Context, target geo.Point) ([]CourierCandidate, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	couriers, err := s.couriers.ListAvailableCouriersWithLocation(ctx)
	if err != nil {
		return nil, fmt.Errorf("list couriers: %w", err)
	}
	near := s.nearby(ctx, target)

	out := make([]CourierCandidate, 0, len(couriers))
	for _, c := range couriers {
		if !c.Selectable() {
			continue
		}
		if near != nil && !near[c.ID] {
			continue
		}
		d, err := geo.Distance(*c.Location, target)
		if err != nil {
			continue
		}
		if d > math.Min(c.ServiceRadiusKm, s.maxRadiusKm) {
			continue
		}
		out = append(out, CourierCandidate{Courier: c, DistanceKm: d})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		if a.Courier.Rating != b.Courier.Rating {
			return a.Courier.Rating > b.Courier.Rating
		}
		return a.Courier.ID < b.Courier.ID
	})
	return out, nil
}

// nearby returns the locator's id set, or nil when the scan must not be narrowed.
func (s *CourierSelector) nearby(ctx context.Context, target geo.Point) map[int64]bool {
	if s.locator == nil {
		return nil
	}
	ids, err := s.locator.Nearby(ctx, target, s.maxRadiusKm)
	if err != nil {
		s.logger.Warn("courier locator unavailable, scanning all couriers", logx.Err(err))
		return nil
	}
	// пустой индекс после рестарта не должен прятать курьеров
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
