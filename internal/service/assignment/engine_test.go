package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/clock"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/metrics"
	"laundry-dispatch/internal/ports/notify"
	"laundry-dispatch/internal/repository/memory"
	"laundry-dispatch/internal/retry"
	"laundry-dispatch/internal/service"
	"laundry-dispatch/internal/service/selector"
	"laundry-dispatch/internal/service/tracking"
	testlog "laundry-dispatch/internal/testutil"
)

var now0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type stubNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	fn   func(notify.Message) error
}

func (s *stubNotifier) Notify(_ context.Context, m notify.Message) error {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(m)
	}
	return nil
}

func (s *stubNotifier) byCategory(c domain.NotificationCategory) []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Message
	for _, m := range s.msgs {
		if m.Category == c {
			out = append(out, m)
		}
	}
	return out
}

type stubProviderRanker struct {
	fn func(ctx context.Context, req selector.ProviderRequest) ([]selector.ProviderCandidate, error)
}

func (s stubProviderRanker) Rank(ctx context.Context, req selector.ProviderRequest) ([]selector.ProviderCandidate, error) {
	return s.fn(ctx, req)
}

type stubCourierRanker struct {
	fn func(ctx context.Context, target geo.Point) ([]selector.CourierCandidate, error)
}

func (s stubCourierRanker) Rank(ctx context.Context, target geo.Point) ([]selector.CourierCandidate, error) {
	return s.fn(ctx, target)
}

type harness struct {
	st       *memory.Store
	clk      *clock.Manual
	notifier *stubNotifier
	rec      *testlog.Recorder
	reg      *tracking.Registry
	m        *metrics.Dispatch
	engine   *Engine
}

type option func(*Deps)

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		st:       memory.New(),
		clk:      clock.NewManual(now0),
		notifier: &stubNotifier{},
		rec:      testlog.New(),
		m:        metrics.NewDispatch(),
	}
	h.reg = tracking.New(h.st, h.clk, tracking.Config{}, nil)
	d := Deps{
		Orders:    h.st,
		Tx:        h.st,
		Providers: selector.NewProviderSelector(h.st),
		Couriers:  selector.NewCourierSelector(h.st, nil, 15, nil),
		Tracker:   h.reg,
		Announcer: service.NewAnnouncer(h.notifier, h.rec.Logger()),
		Retrier:   retry.New(retry.Policy{Attempts: 3}, logx.Nop(), h.m.Retries),
		Clock:     h.clk,
		Logger:    h.rec.Logger(),
		Metrics: Metrics{
			Assignments:   h.m.Assignments,
			BindConflicts: h.m.BindConflicts,
			Transitions:   h.m.Transitions,
		},
	}
	for _, o := range opts {
		o(&d)
	}
	h.engine = New(d, Config{
		MaxAttempts:           3,
		RadiusIncrementKm:     2,
		CourierMinutesPerKm:   3,
		CourierHandoffMinutes: 15,
	})
	return h
}

func (h *harness) order(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := h.st.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (h *harness) provider(t *testing.T, id int64) *domain.Provider {
	t.Helper()
	p, err := h.st.GetProvider(context.Background(), id)
	require.NoError(t, err)
	return p
}

func activeProvider(id int64, p geo.Point, radius float64) domain.Provider {
	return domain.Provider{
		ID:                 id,
		Name:               "provider",
		Location:           p,
		ServiceRadiusKm:    radius,
		MaxDailyOrders:     20,
		Rating:             4,
		AvgCompletionHours: 10,
		Equipment:          domain.EquipWasher,
		Status:             domain.ProviderActive,
		Approved:           true,
	}
}

func pendingOrder(id string, pickup geo.Point) domain.Order {
	return domain.Order{
		ID:          id,
		CustomerID:  100,
		Pickup:      &domain.Location{Point: pickup},
		Items:       []domain.LineItem{{ProductKey: "shirt", CategoryKey: "wash", Quantity: 2, UnitPrice: 15000, ServiceKind: domain.ServiceMachineWash}},
		Subtotal:    30000,
		GrandTotal:  30000,
		MaxRadiusKm: 5,
		Priority:    domain.PriorityNormal,
		Status:      domain.OrderPending,
		CreatedAt:   now0,
		UpdatedAt:   now0,
	}
}

var pickup = geo.Point{Lat: 9.00, Lon: 38.75}

func TestAssignProvider_SingleCandidateHappyPath(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.st.PutProvider(activeProvider(1, geo.Point{Lat: 9.01, Lon: 38.76}, 5))
	h.st.PutOrder(pendingOrder("o-1", pickup))

	res, err := h.engine.AssignProvider(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeAssigned, res.Outcome)

	o := h.order(t, "o-1")
	require.Equal(t, domain.OrderAssigned, o.Status)
	require.Equal(t, int64(1), o.ProviderID)
	require.Equal(t, now0, *o.AssignedAt)
	require.Equal(t, now0.Add(10*time.Hour), *o.ETAReady)
	require.Equal(t, domain.Money(30000), o.GrandTotal)
	require.Equal(t, 1, h.provider(t, 1).CurrentLoad)

	received := h.notifier.byCategory(domain.NotifyOrderReceived)
	require.Len(t, received, 1)
	require.Equal(t, domain.Recipient{Kind: domain.RecipientCustomer, ID: 100}, received[0].Recipient)
	require.Len(t, h.notifier.byCategory(domain.NotifyProviderAssigned), 1)

	require.Len(t, h.rec.ByEvent("provider_assigned"), 1)
	require.Equal(t, 1.0, testutil.ToFloat64(h.m.Assignments.WithLabelValues("provider", "assigned")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.m.Transitions.WithLabelValues("ASSIGNED")))
}

func TestAssignProvider_RadiusExpansionExhausts(t *testing.T) {
	t.Parallel()

	var (
		radii []float64
		ranks *selector.ProviderSelector
	)
	h := newHarness(t, func(d *Deps) {
		d.Providers = stubProviderRanker{fn: func(ctx context.Context, req selector.ProviderRequest) ([]selector.ProviderCandidate, error) {
			radii = append(radii, req.MaxRadiusKm)
			return ranks.Rank(ctx, req)
		}}
	})
	ranks = selector.NewProviderSelector(h.st)
	h.st.PutProvider(activeProvider(1, geo.Point{Lat: 9.10, Lon: 38.85}, 20))
	h.st.PutOrder(pendingOrder("o-2", pickup))

	res, err := h.engine.AssignProvider(context.Background(), "o-2")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoCandidate, res.Outcome)
	require.Equal(t, []float64{5, 7, 9}, radii)

	o := h.order(t, "o-2")
	require.Equal(t, domain.OrderPending, o.Status)
	require.Equal(t, 3, o.AssignmentAttempts)
	require.Equal(t, 11.0, o.MaxRadiusKm)
	require.False(t, o.HasProvider())
	require.Len(t, h.rec.ByEvent("provider_assignment_exhausted"), 1)
	require.Empty(t, h.notifier.byCategory(domain.NotifyOrderReceived))

	res, err = h.engine.AssignProvider(context.Background(), "o-2")
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
	require.Equal(t, 3, h.order(t, "o-2").AssignmentAttempts)
	require.Equal(t, 0, h.provider(t, 1).CurrentLoad)
}

func TestAssignProvider_MarksProviderBusyWhenFull(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	p := activeProvider(1, geo.Point{Lat: 9.01, Lon: 38.76}, 5)
	p.CurrentLoad = 19
	h.st.PutProvider(p)
	h.st.PutOrder(pendingOrder("o-1", pickup))

	_, err := h.engine.AssignProvider(context.Background(), "o-1")
	require.NoError(t, err)

	got := h.provider(t, 1)
	require.Equal(t, 20, got.CurrentLoad)
	require.Equal(t, domain.ProviderBusy, got.Status)
}

func TestAssignProvider_CapacityLostMovesToNextCandidate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(d *Deps) {
		d.Providers = stubProviderRanker{fn: func(context.Context, selector.ProviderRequest) ([]selector.ProviderCandidate, error) {
			// ranking taken before a racing binder filled provider 1
			return []selector.ProviderCandidate{
				{Provider: domain.Provider{ID: 1}, DistanceKm: 1},
				{Provider: domain.Provider{ID: 2}, DistanceKm: 2},
			}, nil
		}}
	})
	full := activeProvider(1, geo.Point{Lat: 9.01, Lon: 38.76}, 5)
	full.CurrentLoad = 20
	h.st.PutProvider(full)
	h.st.PutProvider(activeProvider(2, geo.Point{Lat: 9.02, Lon: 38.76}, 5))
	h.st.PutOrder(pendingOrder("o-1", pickup))

	res, err := h.engine.AssignProvider(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeAssigned, res.Outcome)
	require.Equal(t, int64(2), res.Order.ProviderID)
	require.Equal(t, 20, h.provider(t, 1).CurrentLoad)
	require.Equal(t, 1.0, testutil.ToFloat64(h.m.BindConflicts.WithLabelValues("provider")))
}

func TestAssignProvider_ConcurrentBindingKeepsCapacity(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	p1 := activeProvider(1, geo.Point{Lat: 9.005, Lon: 38.75}, 5)
	p1.CurrentLoad = 19
	h.st.PutProvider(p1)
	h.st.PutProvider(activeProvider(2, geo.Point{Lat: 9.03, Lon: 38.75}, 5))
	h.st.PutOrder(pendingOrder("a", pickup))
	h.st.PutOrder(pendingOrder("b", pickup))

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], errs[i] = h.engine.AssignProvider(context.Background(), id)
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, OutcomeAssigned, results[0].Outcome)
	require.Equal(t, OutcomeAssigned, results[1].Outcome)
	require.ElementsMatch(t, []int64{1, 2}, []int64{results[0].Order.ProviderID, results[1].Order.ProviderID})

	got1 := h.provider(t, 1)
	require.Equal(t, 20, got1.CurrentLoad)
	require.Equal(t, domain.ProviderBusy, got1.Status)
	require.Equal(t, 1, h.provider(t, 2).CurrentLoad)
}

func TestAssignProvider_PreferredAndExcluded(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.st.PutProvider(activeProvider(1, geo.Point{Lat: 9.001, Lon: 38.75}, 5))
	h.st.PutProvider(activeProvider(2, geo.Point{Lat: 9.03, Lon: 38.75}, 5))
	o := pendingOrder("o-1", pickup)
	o.PreferredProviderID = 2
	h.st.PutOrder(o)
	h.st.PutOrder(pendingOrder("o-2", pickup))

	res, err := h.engine.AssignProvider(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Order.ProviderID)

	res, err = h.engine.AssignProvider(context.Background(), "o-2", 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Order.ProviderID)
}

func TestAssignProvider_SkipsNonPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	o := pendingOrder("o-1", pickup)
	o.Status = domain.OrderAccepted
	h.st.PutOrder(o)

	res, err := h.engine.AssignProvider(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)

	_, err = h.engine.AssignProvider(context.Background(), "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAssignProvider_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var h *harness
	calls := 0
	h = newHarness(t, func(d *Deps) {
		d.Providers = stubProviderRanker{fn: func(ctx context.Context, req selector.ProviderRequest) ([]selector.ProviderCandidate, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection reset")
			}
			return selector.NewProviderSelector(h.st).Rank(ctx, req)
		}}
	})
	h.st.PutProvider(activeProvider(1, geo.Point{Lat: 9.01, Lon: 38.76}, 5))
	h.st.PutOrder(pendingOrder("o-1", pickup))

	res, err := h.engine.AssignProvider(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeAssigned, res.Outcome)
	require.Equal(t, 1.0, testutil.ToFloat64(h.m.Retries))
}

func TestAssignProvider_PersistentFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(d *Deps) {
		d.Providers = stubProviderRanker{fn: func(context.Context, selector.ProviderRequest) ([]selector.ProviderCandidate, error) {
			return nil, errors.New("connection reset")
		}}
	})
	h.st.PutOrder(pendingOrder("o-1", pickup))

	_, err := h.engine.AssignProvider(context.Background(), "o-1")
	require.ErrorIs(t, err, apperr.ErrUnavailable)
	require.Equal(t, 0, h.order(t, "o-1").AssignmentAttempts)
}

func TestAssignProvider_Cancelled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.st.PutOrder(pendingOrder("o-1", pickup))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.AssignProvider(ctx, "o-1")
	require.ErrorIs(t, err, apperr.ErrCancelled)
	require.Equal(t, domain.OrderPending, h.order(t, "o-1").Status)
}

func TestAssignProvider_NotificationFailureKeepsBinding(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.notifier.fn = func(notify.Message) error { return errors.New("smtp down") }
	h.st.PutProvider(activeProvider(1, geo.Point{Lat: 9.01, Lon: 38.76}, 5))
	h.st.PutOrder(pendingOrder("o-1", pickup))

	res, err := h.engine.AssignProvider(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeAssigned, res.Outcome)
	require.Equal(t, domain.OrderAssigned, h.order(t, "o-1").Status)
	require.Len(t, h.rec.ByEvent("notify_failed"), 2)
}

func readyOrder(id string, delivery geo.Point) domain.Order {
	o := pendingOrder(id, geo.Point{Lat: 9.01, Lon: 38.76})
	o.Delivery = &domain.Location{Point: delivery, Address: "Bole"}
	o.ProviderID = 1
	o.Status = domain.OrderReadyForPickup
	assigned := now0.Add(-3 * time.Hour)
	o.AssignedAt = &assigned
	o.AcceptedAt = &assigned
	ready := now0.Add(-time.Minute)
	o.ReadyAt = &ready
	o.UpdatedAt = ready
	return o
}

func availableCourier(id int64, p geo.Point) domain.Courier {
	at := now0.Add(-time.Minute)
	return domain.Courier{
		ID:              id,
		Name:            "Abebe",
		VehicleInfo:     "scooter",
		Location:        &p,
		LastPingAt:      &at,
		ServiceRadiusKm: 15,
		Rating:          4.5,
		Status:          domain.CourierAvailable,
	}
}

func TestAssignCourier_ETAAndDeliveryStarted(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	start := geo.Point{Lat: 9.00, Lon: 38.75}
	dest := geo.Point{Lat: 9.03, Lon: 38.78}
	shop := geo.Point{Lat: 9.01, Lon: 38.76}
	h.st.PutProvider(activeProvider(1, shop, 5))
	h.st.PutCourier(availableCourier(1, start))
	h.st.PutOrder(readyOrder("o-3", dest))

	sub, err := h.reg.Subscribe(tracking.SubscriberCustomer, 100)
	require.NoError(t, err)
	defer sub.Close()

	res, err := h.engine.AssignCourier(context.Background(), "o-3")
	require.NoError(t, err)
	require.Equal(t, OutcomeAssigned, res.Outcome)

	d := geo.MustDistance(start, dest)
	require.InDelta(t, 4.69, d, 0.01)
	o := h.order(t, "o-3")
	require.Equal(t, domain.OrderOutForDelivery, o.Status)
	require.Equal(t, int64(1), o.CourierID)
	require.Equal(t, now0, *o.OutForDeliveryAt)
	wantETA := now0.Add(time.Duration((d*3 + 15) * float64(time.Minute)))
	require.Equal(t, wantETA, *o.ETADelivery)
	toShop := geo.MustDistance(start, shop)
	require.NotNil(t, o.ETAPickup)
	require.Equal(t, now0.Add(time.Duration(toShop/30*float64(time.Hour))), *o.ETAPickup)

	c, err := h.st.GetCourier(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.CourierBusy, c.Status)
	require.Equal(t, "o-3", c.CurrentOrderID)
	require.Equal(t, 1, c.TotalDeliveries)

	select {
	case ev := <-sub.Events():
		require.Equal(t, tracking.EventDeliveryStarted, ev.Type)
		require.Equal(t, "o-3", ev.Data.(tracking.DeliveryStarted).OrderID)
	case <-time.After(time.Second):
		t.Fatal("delivery_started not received")
	}
	_, ok := h.reg.GetOrderTrack("o-3")
	require.True(t, ok)

	require.Len(t, h.notifier.byCategory(domain.NotifyCourierAssigned), 1)
	require.Len(t, h.notifier.byCategory(domain.NotifyOrderOutForDelivery), 1)
	require.Len(t, h.rec.ByEvent("courier_assigned"), 1)
}

func TestAssignCourier_NoCourierLeavesOrderReady(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	far := availableCourier(1, geo.Point{Lat: 9.3, Lon: 38.75})
	h.st.PutCourier(far)
	h.st.PutOrder(readyOrder("o-1", geo.Point{Lat: 9.03, Lon: 38.78}))

	res, err := h.engine.AssignCourier(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoCandidate, res.Outcome)

	o := h.order(t, "o-1")
	require.Equal(t, domain.OrderReadyForPickup, o.Status)
	require.False(t, o.HasCourier())
	require.Equal(t, 1.0, testutil.ToFloat64(h.m.Assignments.WithLabelValues("courier", "no_candidate")))
}

func TestAssignCourier_CapacityLost(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(d *Deps) {
		d.Couriers = stubCourierRanker{fn: func(context.Context, geo.Point) ([]selector.CourierCandidate, error) {
			return []selector.CourierCandidate{{Courier: domain.Courier{ID: 1}, DistanceKm: 1}}, nil
		}}
	})
	busy := availableCourier(1, geo.Point{Lat: 9, Lon: 38.75})
	busy.Status = domain.CourierBusy
	busy.CurrentOrderID = "other"
	h.st.PutCourier(busy)
	h.st.PutOrder(readyOrder("o-1", geo.Point{Lat: 9.03, Lon: 38.78}))

	res, err := h.engine.AssignCourier(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeCapacityLost, res.Outcome)
	require.Equal(t, domain.OrderReadyForPickup, h.order(t, "o-1").Status)
	require.Equal(t, 1.0, testutil.ToFloat64(h.m.BindConflicts.WithLabelValues("courier")))
}

func TestAssignCourier_ConcurrentOrdersNeverShareCourier(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.st.PutCourier(availableCourier(1, geo.Point{Lat: 9.0, Lon: 38.75}))
	h.st.PutOrder(readyOrder("a", geo.Point{Lat: 9.03, Lon: 38.78}))
	h.st.PutOrder(readyOrder("b", geo.Point{Lat: 9.03, Lon: 38.78}))

	var wg sync.WaitGroup
	out := make([]Outcome, 2)
	errs := make([]error, 2)
	for i, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			res, err := h.engine.AssignCourier(context.Background(), id)
			out[i], errs[i] = res.Outcome, err
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, errors.Join(errs...))

	require.ElementsMatch(t, []Outcome{OutcomeAssigned, OutcomeNoCandidate}, capacityAsMiss(out))
	c, err := h.st.GetCourier(context.Background(), 1)
	require.NoError(t, err)
	bound := h.order(t, c.CurrentOrderID)
	require.Equal(t, int64(1), bound.CourierID)
}

// a racing pass may see the courier in its ranking and lose the bind
func capacityAsMiss(out []Outcome) []Outcome {
	res := make([]Outcome, len(out))
	for i, o := range out {
		if o == OutcomeCapacityLost {
			o = OutcomeNoCandidate
		}
		res[i] = o
	}
	return res
}

func TestAssignCourier_SkipsWrongState(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.st.PutOrder(pendingOrder("o-1", pickup))

	res, err := h.engine.AssignCourier(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	e := New(Deps{}, Config{})
	require.Equal(t, 3, e.cfg.MaxAttempts)
	require.Equal(t, 3*time.Second, e.cfg.OperationTimeout)
	require.NotNil(t, e.retrier)
}
