package config

import (
	"errors"
	"fmt"
	"time"
)

// CoreConfig holds every tunable of the dispatch core.
type CoreConfig struct {
	// Phase A
	MaxAttempts       int
	RadiusIncrementKm float64
	InitialRadiusKm   float64

	// Phase B
	CourierRadiusKm       float64
	CourierMinutesPerKm   float64
	CourierHandoffMinutes float64

	TrackingStaleTTL       time.Duration
	CourierIdleOfflineTTL  time.Duration
	AssumedCourierSpeedKmh float64

	SweepPendingPeriod time.Duration
	SweepDemotePeriod  time.Duration
	SweepDelayPeriod   time.Duration
	SweepStalePeriod   time.Duration

	DeliveryChargePerKm float64

	// transient repository/notifier failures
	RetryAttempts int
	RetryDelay    time.Duration

	OperationTimeout time.Duration
	SubscriberBuffer int
}

// Validate rejects values the engine cannot work with.
func (c CoreConfig) Validate() error {
	var errs []error
	positive := func(name string, v float64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}
	positive("MAX_ATTEMPTS", float64(c.MaxAttempts))
	positive("INITIAL_RADIUS_KM", c.InitialRadiusKm)
	positive("COURIER_RADIUS_KM", c.CourierRadiusKm)
	positive("ASSUMED_COURIER_SPEED_KMH", c.AssumedCourierSpeedKmh)
	positive("TRACKING_STALE_TTL", c.TrackingStaleTTL.Seconds())
	positive("COURIER_IDLE_OFFLINE_TTL", c.CourierIdleOfflineTTL.Seconds())
	positive("SWEEP_PENDING_PERIOD", c.SweepPendingPeriod.Seconds())
	positive("SWEEP_DEMOTE_PERIOD", c.SweepDemotePeriod.Seconds())
	positive("SWEEP_DELAY_PERIOD", c.SweepDelayPeriod.Seconds())
	positive("SWEEP_STALE_PERIOD", c.SweepStalePeriod.Seconds())
	positive("RETRY_ATTEMPTS", float64(c.RetryAttempts))
	positive("OPERATION_TIMEOUT", c.OperationTimeout.Seconds())
	positive("SUBSCRIBER_BUFFER", float64(c.SubscriberBuffer))
	if c.RadiusIncrementKm < 0 {
		errs = append(errs, fmt.Errorf("RADIUS_INCREMENT_KM must not be negative, got %v", c.RadiusIncrementKm))
	}
	if c.DeliveryChargePerKm < 0 {
		errs = append(errs, fmt.Errorf("DELIVERY_CHARGE_PER_KM must not be negative, got %v", c.DeliveryChargePerKm))
	}
	if c.CourierMinutesPerKm < 0 || c.CourierHandoffMinutes < 0 {
		errs = append(errs, errors.New("courier ETA parameters must not be negative"))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("RETRY_DELAY must not be negative"))
	}
	return errors.Join(errs...)
}
