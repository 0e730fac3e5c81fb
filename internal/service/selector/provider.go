// Package selector ranks providers and couriers for an order.
package selector

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
)

// ProviderRequest describes what an order needs from a provider.
type ProviderRequest struct {
	Pickup              geo.Point
	MaxRadiusKm         float64
	RequiresMachine     bool
	PreferredProviderID int64
	Exclude             []int64
}

// ProviderCandidate is an eligible provider with its distance and score.
type ProviderCandidate struct {
	Provider   domain.Provider
	DistanceKm float64
	Score      float64
	Preferred  bool
}

// ProviderSelector scores providers around a pickup point.
type ProviderSelector struct {
	providers providerLister
}

// NewProviderSelector returns a ProviderSelector.
func NewProviderSelector(providers providerLister) *ProviderSelector {
	return &ProviderSelector{providers: providers}
}

// Select returns the best candidate or apperr.ErrNoCandidate.
func (s *ProviderSelector) Select(ctx context.Context, req ProviderRequest) (ProviderCandidate, error) {
	ranked, err := s.Rank(ctx, req)
	if err != nil {
		return ProviderCandidate{}, err
	}
	if len(ranked) == 0 {
		return ProviderCandidate{}, apperr.ErrNoCandidate
	}
	return ranked[0], nil
}

// Rank returns every eligible provider, best first.
// An eligible preferred provider always comes first and is not scored.
func (s *ProviderSelector) Rank(ctx context.Context, req ProviderRequest) ([]ProviderCandidate, error) {
	if err := req.Pickup.Validate(); err != nil {
		return nil, err
	}
	providers, err := s.providers.ListActiveProvidersWithCapacity(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}

	var (
		preferred *ProviderCandidate
		scored    = make([]ProviderCandidate, 0, len(providers))
	)
	for _, p := range providers {
		if !p.Selectable() || p.MaxDailyOrders <= 0 || slices.Contains(req.Exclude, p.ID) {
			continue
		}
		d, err := geo.Distance(req.Pickup, p.Location)
		if err != nil {
			continue
		}
		if d > math.Min(p.ServiceRadiusKm, req.MaxRadiusKm) {
			continue
		}
		if req.PreferredProviderID != 0 && p.ID == req.PreferredProviderID {
			preferred = &ProviderCandidate{Provider: p, DistanceKm: d, Preferred: true}
			continue
		}
		scored = append(scored, ProviderCandidate{
			Provider:   p,
			DistanceKm: d,
			Score:      Score(p, d, req.RequiresMachine),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		if a.Provider.Rating != b.Provider.Rating {
			return a.Provider.Rating > b.Provider.Rating
		}
		return a.Provider.ID < b.Provider.ID
	})

	if preferred != nil {
		return append([]ProviderCandidate{*preferred}, scored...), nil
	}
	return scored, nil
}

// Score rates provider p at distance d km. The result is never negative.
func Score(p domain.Provider, d float64, requiresMachine bool) float64 {
	score := 100 - 2*d + 4*p.Rating
	if p.MaxDailyOrders > 0 {
		score += 15 * (1 - float64(p.CurrentLoad)/float64(p.MaxDailyOrders))
	}

	switch {
	case p.CompletedOrders > 100:
		score += 10
	case p.CompletedOrders > 50:
		score += 5
	}

	if requiresMachine && p.Equipment.HasMachine() {
		score += 5
	}

	switch {
	case p.AvgCompletionHours < 12:
		score += 8
	case p.AvgCompletionHours < 24:
		score += 4
	}

	return math.Max(score, 0)
}
