package scheduler

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
	"laundry-dispatch/internal/metrics"
	"laundry-dispatch/internal/ports/notify"
	"laundry-dispatch/internal/repository/memory"
	"laundry-dispatch/internal/service"
	"laundry-dispatch/internal/service/assignment"
	testlog "laundry-dispatch/internal/testutil"
)

var now0 = time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)

type stubAssigner struct {
	mu        sync.Mutex
	providers []string
	couriers  []string
	providerF func(ctx context.Context, id string) (assignment.Result, error)
}

func (s *stubAssigner) AssignProvider(ctx context.Context, id string, _ ...int64) (assignment.Result, error) {
	s.mu.Lock()
	s.providers = append(s.providers, id)
	s.mu.Unlock()
	if s.providerF != nil {
		return s.providerF(ctx, id)
	}
	return assignment.Result{Outcome: assignment.OutcomeAssigned}, nil
}

func (s *stubAssigner) AssignCourier(_ context.Context, id string) (assignment.Result, error) {
	s.mu.Lock()
	s.couriers = append(s.couriers, id)
	s.mu.Unlock()
	return assignment.Result{Outcome: assignment.OutcomeNoCandidate}, nil
}

type stubTracker struct {
	mu     sync.Mutex
	sweeps int
	states map[int64]domain.CourierStatus
}

func (s *stubTracker) SweepStale(time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	return nil
}

func (s *stubTracker) SetCourierState(id int64, status domain.CourierStatus, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states == nil {
		s.states = map[int64]domain.CourierStatus{}
	}
	s.states[id] = status
}

func (s *stubTracker) sweepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

type stubLocator struct {
	removed []int64
	err     error
}

func (s *stubLocator) Remove(_ context.Context, ids ...int64) error {
	s.removed = append(s.removed, ids...)
	return s.err
}

type stubNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (s *stubNotifier) Notify(_ context.Context, m notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return nil
}

type harness struct {
	st       *memory.Store
	clk      *clock.Manual
	engine   *stubAssigner
	tracker  *stubTracker
	locator  *stubLocator
	notifier *stubNotifier
	rec      *testlog.Recorder
	m        *metrics.Dispatch
	s        *Scheduler
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		st:       memory.New(),
		clk:      clock.NewManual(now0),
		engine:   &stubAssigner{},
		tracker:  &stubTracker{},
		locator:  &stubLocator{},
		notifier: &stubNotifier{},
		rec:      testlog.New(),
		m:        metrics.NewDispatch(),
	}
	h.s = New(Deps{
		Orders:    h.st,
		Couriers:  h.st,
		Engine:    h.engine,
		Tracking:  h.tracker,
		Locator:   h.locator,
		Announcer: service.NewAnnouncer(h.notifier, h.rec.Logger()),
		Clock:     h.clk,
		Logger:    h.rec.Logger(),
		Metrics:   Metrics{Duration: h.m.SweepDuration, Skipped: h.m.SweepsSkipped},
	}, cfg)
	return h
}

func pending(id string, p domain.Priority, created time.Time, attempts int) domain.Order {
	return domain.Order{
		ID:                 id,
		CustomerID:         7,
		Pickup:             &domain.Location{Point: geo.Point{Lat: 9, Lon: 38.75}},
		Priority:           p,
		Status:             domain.OrderPending,
		AssignmentAttempts: attempts,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
}

func TestSweepPending_PriorityThenAge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{MaxAttempts: 3})
	h.st.PutOrder(pending("normal-old", domain.PriorityNormal, now0.Add(-3*time.Hour), 0))
	h.st.PutOrder(pending("normal-new", domain.PriorityNormal, now0.Add(-1*time.Hour), 1))
	h.st.PutOrder(pending("high", domain.PriorityHigh, now0.Add(-30*time.Minute), 0))
	h.st.PutOrder(pending("urgent", domain.PriorityUrgent, now0.Add(-10*time.Minute), 2))
	h.st.PutOrder(pending("exhausted", domain.PriorityUrgent, now0.Add(-5*time.Hour), 3))

	ready := pending("ready", domain.PriorityNormal, now0.Add(-2*time.Hour), 0)
	ready.Status = domain.OrderReadyForPickup
	ready.ProviderID = 1
	h.st.PutOrder(ready)

	require.NoError(t, h.s.SweepPending(context.Background()))
	require.Equal(t, []string{"urgent", "high", "normal-old", "normal-new"}, h.engine.providers)
	require.Equal(t, []string{"ready"}, h.engine.couriers)
}

func TestSweepPending_ContinuesPastFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.st.PutOrder(pending("a", domain.PriorityNormal, now0.Add(-2*time.Minute), 0))
	h.st.PutOrder(pending("b", domain.PriorityNormal, now0.Add(-1*time.Minute), 0))
	h.engine.providerF = func(_ context.Context, id string) (assignment.Result, error) {
		if id == "a" {
			return assignment.Result{}, apperr.ErrUnavailable
		}
		return assignment.Result{Outcome: assignment.OutcomeAssigned}, nil
	}

	require.NoError(t, h.s.SweepPending(context.Background()))
	require.Equal(t, []string{"a", "b"}, h.engine.providers)
	require.Len(t, h.rec.Entries(), 2)
}

func TestSweepPending_StopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.st.PutOrder(pending("a", domain.PriorityNormal, now0.Add(-2*time.Minute), 0))
	h.st.PutOrder(pending("b", domain.PriorityNormal, now0.Add(-1*time.Minute), 0))

	ctx, cancel := context.WithCancel(context.Background())
	h.engine.providerF = func(context.Context, string) (assignment.Result, error) {
		cancel()
		return assignment.Result{Outcome: assignment.OutcomeNoCandidate}, nil
	}

	err := h.s.SweepPending(ctx)
	require.ErrorIs(t, err, apperr.ErrCancelled)
	require.Equal(t, []string{"a"}, h.engine.providers)
	require.Empty(t, h.engine.couriers)
}

func TestDemoteIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{IdleOfflineTTL: 30 * time.Minute})
	courier := func(id int64, lastPing time.Duration, status domain.CourierStatus, orderID string) {
		at := now0.Add(-lastPing)
		h.st.PutCourier(domain.Courier{ID: id, LastPingAt: &at, Status: status, CurrentOrderID: orderID})
	}
	courier(1, 31*time.Minute, domain.CourierAvailable, "")
	courier(2, 5*time.Minute, domain.CourierAvailable, "")
	courier(3, 2*time.Hour, domain.CourierBusy, "o-1")
	courier(4, 2*time.Hour, domain.CourierSuspended, "")
	h.st.PutCourier(domain.Courier{ID: 5, Status: domain.CourierAvailable})

	require.NoError(t, h.s.DemoteIdle(context.Background()))

	c, err := h.st.GetCourier(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.CourierOffline, c.Status)
	for _, id := range []int64{2, 3, 5} {
		c, err := h.st.GetCourier(context.Background(), id)
		require.NoError(t, err)
		require.NotEqual(t, domain.CourierOffline, c.Status, "courier %d", id)
	}

	require.Equal(t, []int64{1}, h.locator.removed)
	require.Equal(t, domain.CourierOffline, h.tracker.states[1])
	events := h.rec.ByEvent("courier_demoted")
	require.Len(t, events, 1)
	id, _ := events[0].Field("courier_id")
	require.Equal(t, int64(1), id)
}

func TestDemoteIdle_LocatorFailureIsLogged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.locator.err = errors.New("redis down")
	at := now0.Add(-time.Hour)
	h.st.PutCourier(domain.Courier{ID: 1, LastPingAt: &at, Status: domain.CourierAvailable})

	require.NoError(t, h.s.DemoteIdle(context.Background()))
	var warned bool
	for _, e := range h.rec.Entries() {
		if e.Msg == "courier index cleanup failed" {
			warned = true
		}
	}
	require.True(t, warned)
}

func TestFlagDelays_OncePerOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	eta := now0.Add(-10 * time.Minute)
	late := pending("late", domain.PriorityNormal, now0.Add(-2*time.Hour), 0)
	late.Status = domain.OrderOutForDelivery
	late.ProviderID, late.CourierID = 1, 10
	late.ETADelivery = &eta
	h.st.PutOrder(late)

	onTime := late
	onTime.ID = "on-time"
	future := now0.Add(10 * time.Minute)
	onTime.ETADelivery = &future
	h.st.PutOrder(onTime)

	ctx := context.Background()
	require.NoError(t, h.s.FlagDelays(ctx))
	require.NoError(t, h.s.FlagDelays(ctx))

	o, err := h.st.GetOrder(ctx, "late")
	require.NoError(t, err)
	require.True(t, o.DelayFlagged)
	o, err = h.st.GetOrder(ctx, "on-time")
	require.NoError(t, err)
	require.False(t, o.DelayFlagged)

	require.Len(t, h.notifier.msgs, 1)
	msg := h.notifier.msgs[0]
	require.Equal(t, domain.NotifyOrderDelayed, msg.Category)
	require.Equal(t, domain.Recipient{Kind: domain.RecipientCustomer, ID: 7}, msg.Recipient)
	require.Len(t, h.rec.ByEvent("delivery_delayed"), 1)
}

func TestCollectTracking(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	require.NoError(t, h.s.CollectTracking(context.Background()))
	require.Equal(t, 1, h.tracker.sweepCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, h.s.CollectTracking(ctx), apperr.ErrCancelled)
	require.Equal(t, 1, h.tracker.sweepCount())
}

func TestTrigger_SkipsWhileRunning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	started := make(chan struct{})
	release := make(chan struct{})
	l := &loop{name: "slow", sweep: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}

	ctx := context.Background()
	require.True(t, h.s.trigger(ctx, l))
	<-started
	require.False(t, h.s.trigger(ctx, l))
	require.False(t, h.s.trigger(ctx, l))
	close(release)
	h.s.wg.Wait()

	require.Equal(t, 2.0, testutil.ToFloat64(h.m.SweepsSkipped.WithLabelValues("slow")))
	require.Len(t, h.rec.ByEvent("sweep_skipped"), 2)
	require.False(t, l.busy.Load())
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{
		PendingPeriod: time.Hour,
		DemotePeriod:  time.Hour,
		DelayPeriod:   time.Hour,
		StalePeriod:   5 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.s.Run(ctx) }()

	require.Eventually(t, func() bool { return h.tracker.sweepCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, h.s.Running())
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	require.False(t, h.s.Running())
}
