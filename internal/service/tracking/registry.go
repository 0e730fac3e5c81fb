// Package tracking keeps live courier positions and in-flight deliveries in memory
// and fans them out to stream subscribers.
package tracking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/clock"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/logx"
)

const shardCount = 32

// Config holds registry tunables.
type Config struct {
	StaleTTL time.Duration
	SpeedKmh float64
	Buffer   int
}

// Ping is one location report of a courier. Zero At means "now".
type Ping struct {
	CourierID int64
	Point     geo.Point
	Heading   *float64
	Speed     *float64
	At        time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithIndexer mirrors accepted pings into ix.
func WithIndexer(ix Indexer) Option {
	return func(r *Registry) { r.indexer = ix }
}

// WithMetrics reports the entry count and dropped events.
func WithMetrics(entries gauge, dropped counter) Option {
	return func(r *Registry) {
		r.entriesGauge = entries
		r.dropped = dropped
	}
}

// Registry owns the live tracking state of the process.
type Registry struct {
	couriers courierStore
	clock    clock.Clock
	cfg      Config
	logger   logx.Logger

	indexer      Indexer
	entriesGauge gauge
	dropped      counter

	// pushes of one courier are serialized on its shard
	shards [shardCount]sync.Mutex

	mu        sync.Mutex
	entries   map[int64]*domain.TrackingEntry
	tracks    map[string]*domain.DeliveryTrack
	byCourier map[int64]string
	subs      map[*Subscription]struct{}
}

// New returns an empty Registry.
func New(couriers courierStore, clk clock.Clock, cfg Config, logger logx.Logger, opts ...Option) *Registry {
	if cfg.StaleTTL <= 0 {
		cfg.StaleTTL = 10 * time.Minute
	}
	if cfg.SpeedKmh <= 0 {
		cfg.SpeedKmh = 30
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if logger == nil {
		logger = logx.Nop()
	}
	r := &Registry{
		couriers:  couriers,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
		entries:   make(map[int64]*domain.TrackingEntry),
		tracks:    make(map[string]*domain.DeliveryTrack),
		byCourier: make(map[int64]string),
		subs:      make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PushLocation records a courier position. A ping older than the stored one is dropped silently.
// A fresh ping brings a courier demoted to OFFLINE without a bound order back to AVAILABLE.
func (r *Registry) PushLocation(ctx context.Context, p Ping) error {
	if p.CourierID <= 0 {
		return fmt.Errorf("courier id %d: %w", p.CourierID, apperr.ErrInvalid)
	}
	if err := p.Point.Validate(); err != nil {
		return err
	}
	if p.At.IsZero() {
		p.At = r.clock.Now()
	}
	p.At = p.At.UTC()

	shard := &r.shards[uint64(p.CourierID)%shardCount]
	shard.Lock()
	defer shard.Unlock()

	if r.olderThanStored(p) {
		return nil
	}

	c, err := r.couriers.GetCourier(ctx, p.CourierID)
	if err != nil {
		return err
	}
	if err := r.couriers.UpdateCourierLocation(ctx, p.CourierID, p.Point, p.At); err != nil {
		return err
	}
	if c.Status == domain.CourierOffline && c.CurrentOrderID == "" {
		back, err := r.couriers.SetCourierStatus(ctx, p.CourierID, domain.CourierOffline, domain.CourierAvailable)
		if err != nil {
			return err
		}
		if back {
			c.Status = domain.CourierAvailable
			r.logger.Info("courier back online", logx.Event("courier_back_online"), logx.CourierID(p.CourierID))
		}
	}
	if r.indexer != nil {
		if err := r.indexer.Put(ctx, p.CourierID, p.Point); err != nil {
			r.logger.Warn("courier geo index update failed", logx.CourierID(p.CourierID), logx.Err(err))
		}
	}

	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &domain.TrackingEntry{
		CourierID:    p.CourierID,
		Location:     p.Point,
		Heading:      p.Heading,
		Speed:        p.Speed,
		LastUpdateAt: p.At,
		Status:       c.Status,
		OrderID:      c.CurrentOrderID,
	}
	if orderID, ok := r.byCourier[p.CourierID]; ok {
		entry.OrderID = orderID
	}
	r.entries[p.CourierID] = entry
	r.reportSize()

	loc := driverLocation(entry)
	r.broadcast(Event{Type: EventDriverLocation, Data: loc}, audience{courierID: p.CourierID})

	orderID, ok := r.byCourier[p.CourierID]
	if !ok {
		return nil
	}
	tr, ok := r.tracks[orderID]
	if !ok {
		return nil
	}
	d := geo.MustDistance(p.Point, tr.Destination)
	tr.DistanceRemainingKm = d
	tr.ETADelivery = r.eta(now, d)
	r.broadcast(Event{Type: EventDeliveryLocation, Data: DeliveryLocation{
		OrderID:             orderID,
		DriverLocation:      loc,
		EstimatedArrival:    tr.ETADelivery,
		DistanceRemainingKm: d,
	}}, audience{customerID: tr.CustomerID})
	return nil
}

func (r *Registry) olderThanStored(p Ping) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[p.CourierID]
	return ok && p.At.Before(e.LastUpdateAt)
}

// eta returns the arrival time for d km from now at the assumed courier speed.
func (r *Registry) eta(now time.Time, d float64) time.Time {
	return now.Add(time.Duration(d / r.cfg.SpeedKmh * float64(time.Hour)))
}

// StartDelivery opens the DeliveryTrack of an order that has just been bound to c.
func (r *Registry) StartDelivery(o *domain.Order, c domain.Courier) {
	dest, _ := o.DropPoint()
	var d float64
	if c.Location != nil {
		d = geo.MustDistance(*c.Location, dest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tr := &domain.DeliveryTrack{
		OrderID:             o.ID,
		CourierID:           c.ID,
		CustomerID:          o.CustomerID,
		Destination:         dest,
		DistanceRemainingKm: d,
	}
	if o.ETADelivery != nil {
		tr.ETADelivery = *o.ETADelivery
	} else {
		tr.ETADelivery = r.eta(r.clock.Now(), d)
	}
	r.tracks[o.ID] = tr
	r.byCourier[c.ID] = o.ID
	if e, ok := r.entries[c.ID]; ok {
		e.Status = c.Status
		e.OrderID = o.ID
	}

	r.broadcast(Event{Type: EventDeliveryStarted, Data: DeliveryStarted{
		OrderID:     o.ID,
		DriverID:    c.ID,
		DriverName:  c.Name,
		VehicleInfo: c.VehicleInfo,
	}}, audience{customerID: o.CustomerID, courierID: c.ID})
}

// EndDelivery drops the DeliveryTrack of o. A delivered order also emits delivery_completed.
func (r *Registry) EndDelivery(o *domain.Order, delivered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tr, ok := r.tracks[o.ID]; ok {
		delete(r.tracks, o.ID)
		if r.byCourier[tr.CourierID] == o.ID {
			delete(r.byCourier, tr.CourierID)
		}
	}
	if e, ok := r.entries[o.CourierID]; ok && e.OrderID == o.ID {
		e.OrderID = ""
	}
	if !delivered {
		return
	}

	at := r.clock.Now()
	if o.DeliveredAt != nil {
		at = *o.DeliveredAt
	}
	r.broadcast(Event{Type: EventDeliveryCompleted, Data: DeliveryCompleted{
		OrderID:     o.ID,
		CompletedAt: at,
	}}, audience{customerID: o.CustomerID, courierID: o.CourierID})
}

// SetCourierState refreshes the status and order of a tracked courier.
func (r *Registry) SetCourierState(courierID int64, status domain.CourierStatus, orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[courierID]; ok {
		e.Status = status
		e.OrderID = orderID
	}
}

// Get returns the entry of one courier.
func (r *Registry) Get(courierID int64) (domain.TrackingEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[courierID]
	if !ok {
		return domain.TrackingEntry{}, false
	}
	return *e, true
}

// GetAll returns every entry ordered by courier id.
func (r *Registry) GetAll() []domain.TrackingEntry {
	r.mu.Lock()
	out := make([]domain.TrackingEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CourierID < out[j].CourierID })
	return out
}

// GetOrderTrack returns the live track of an order out for delivery.
func (r *Registry) GetOrderTrack(orderID string) (domain.DeliveryTrack, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.tracks[orderID]
	if !ok {
		return domain.DeliveryTrack{}, false
	}
	return *tr, true
}

// SweepStale evicts entries whose last update is older than the stale TTL and
// returns the evicted courier ids.
func (r *Registry) SweepStale(now time.Time) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []int64
	for id, e := range r.entries {
		if now.Sub(e.LastUpdateAt) > r.cfg.StaleTTL {
			delete(r.entries, id)
			evicted = append(evicted, id)
			r.logger.Info("tracking entry evicted",
				logx.Event("tracking_evicted"),
				logx.CourierID(id),
				logx.Time("last_update_at", e.LastUpdateAt),
			)
		}
	}
	r.reportSize()
	sort.Slice(evicted, func(i, j int) bool { return evicted[i] < evicted[j] })
	return evicted
}

// Subscribe opens a stream. Customer and courier subscriptions need a positive id.
func (r *Registry) Subscribe(kind SubscriberKind, id int64) (*Subscription, error) {
	if _, err := ParseSubscriberKind(string(kind)); err != nil {
		return nil, err
	}
	if kind != SubscriberAdmin && id <= 0 {
		return nil, fmt.Errorf("%s subscription id %d: %w", kind, id, apperr.ErrInvalid)
	}
	s := &Subscription{kind: kind, id: id, ch: make(chan Event, r.cfg.Buffer), reg: r}

	r.mu.Lock()
	r.subs[s] = struct{}{}
	r.mu.Unlock()
	return s, nil
}

// Subscribers returns the number of open subscriptions.
func (r *Registry) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Registry) unsubscribe(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, s)
	close(s.ch)
}

// broadcast must be called with r.mu held; it never blocks.
func (r *Registry) broadcast(ev Event, a audience) {
	for s := range r.subs {
		if !s.wants(a) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			if r.dropped != nil {
				r.dropped.Inc()
			}
		}
	}
}

func (r *Registry) reportSize() {
	if r.entriesGauge != nil {
		r.entriesGauge.Set(float64(len(r.entries)))
	}
}

func driverLocation(e *domain.TrackingEntry) DriverLocation {
	return DriverLocation{
		DriverID:  e.CourierID,
		Latitude:  e.Location.Lat,
		Longitude: e.Location.Lon,
		Heading:   e.Heading,
		Speed:     e.Speed,
		Timestamp: e.LastUpdateAt,
		Status:    string(e.Status),
	}
}
