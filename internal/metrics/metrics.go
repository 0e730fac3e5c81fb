package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewRateLimitExceededTotal returns a counter of HTTP requests rejected by the rate limiter.
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// NewRetriesTotal returns a counter of retries of transient repository and notifier failures.
func NewRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_retries_total",
		Help: "Total number of retry attempts after transient failures",
	})
}

// NewAssignmentsTotal counts engine passes by phase (provider|courier) and outcome.
func NewAssignmentsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Assignment engine passes by phase and outcome",
	}, []string{"phase", "outcome"})
}

// NewBindConflictsTotal counts bindings lost to a racing binder.
func NewBindConflictsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_bind_conflicts_total",
		Help: "Atomic bindings that observed capacity lost",
	}, []string{"kind"})
}

// NewTransitionsTotal counts applied order transitions by destination status.
func NewTransitionsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_transitions_total",
		Help: "Order status transitions by destination status",
	}, []string{"to"})
}

// NewNotificationsTotal counts notifications by category and result (sent|failed).
func NewNotificationsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Outbound notifications by category and result",
	}, []string{"category", "result"})
}

// NewTrackingEntries returns a gauge of live tracking entries.
func NewTrackingEntries() prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracking_entries",
		Help: "Couriers currently present in the tracking registry",
	})
}

// NewTrackingEventsDropped counts events dropped because a subscriber buffer was full.
func NewTrackingEventsDropped() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracking_events_dropped_total",
		Help: "Tracking events dropped for slow subscribers",
	})
}

// NewSweepDuration observes background sweep durations per loop.
func NewSweepDuration() *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_sweep_duration_seconds",
		Help:    "Background sweep duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"loop"})
}

// NewSweepsSkipped counts ticks skipped because the previous sweep was still running.
func NewSweepsSkipped() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_sweeps_skipped_total",
		Help: "Ticks skipped while the previous sweep was running",
	}, []string{"loop"})
}

// Dispatch bundles the core collectors.
type Dispatch struct {
	Retries         prometheus.Counter
	Assignments     *prometheus.CounterVec
	BindConflicts   *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	TrackingEntries prometheus.Gauge
	TrackingDropped prometheus.Counter
	SweepDuration   *prometheus.HistogramVec
	SweepsSkipped   *prometheus.CounterVec
}

// NewDispatch creates unregistered core collectors.
func NewDispatch() *Dispatch {
	return &Dispatch{
		Retries:         NewRetriesTotal(),
		Assignments:     NewAssignmentsTotal(),
		BindConflicts:   NewBindConflictsTotal(),
		Transitions:     NewTransitionsTotal(),
		Notifications:   NewNotificationsTotal(),
		TrackingEntries: NewTrackingEntries(),
		TrackingDropped: NewTrackingEventsDropped(),
		SweepDuration:   NewSweepDuration(),
		SweepsSkipped:   NewSweepsSkipped(),
	}
}

// Register registers every collector in reg.
func (d *Dispatch) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		d.Retries, d.Assignments, d.BindConflicts, d.Transitions, d.Notifications,
		d.TrackingEntries, d.TrackingDropped, d.SweepDuration, d.SweepsSkipped,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
