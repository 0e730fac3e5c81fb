package config

import "time"

const (
	defaultPort      = 8080
	defaultGRPCPort  = 9090
	defaultRedisKey  = "couriers:geo"
	defaultAMQPExchg = "dispatch.notifications"
)

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "myuser",
	Pass: "mypassword",
	Name: "test_db",
}

var defaultAdmin = Admin{Addr: "127.0.0.1:6060"}

var defaultKafka = Kafka{
	GroupID:      "laundry-dispatch",
	InboundTopic: "dispatch.inbound",
	NotifyTopic:  "dispatch.notifications",
}

var defaultRateLimit = RateLimit{
	Enabled:    true,
	Rate:       5,
	Burst:      10,
	TTL:        10 * time.Minute,
	MaxBuckets: 10000,
}

var defaultCore = CoreConfig{
	MaxAttempts:            3,
	RadiusIncrementKm:      2,
	InitialRadiusKm:        5,
	CourierRadiusKm:        15,
	CourierMinutesPerKm:    3,
	CourierHandoffMinutes:  15,
	TrackingStaleTTL:       600 * time.Second,
	CourierIdleOfflineTTL:  1800 * time.Second,
	AssumedCourierSpeedKmh: 30,
	SweepPendingPeriod:     120 * time.Second,
	SweepDemotePeriod:      600 * time.Second,
	SweepDelayPeriod:       300 * time.Second,
	SweepStalePeriod:       300 * time.Second,
	DeliveryChargePerKm:    5,
	RetryAttempts:          3,
	RetryDelay:             200 * time.Millisecond,
	OperationTimeout:       3 * time.Second,
	SubscriberBuffer:       64,
}

// DefaultPort returns the default HTTP port.
func DefaultPort() int { return defaultPort }

// DefaultGRPCPort returns the default gRPC health port.
func DefaultGRPCPort() int { return defaultGRPCPort }

// DefaultDB returns the default database settings.
func DefaultDB() DB { return defaultDB }

// DefaultAdmin returns the default admin listener settings.
func DefaultAdmin() Admin { return defaultAdmin }

// DefaultRedisKey returns the sorted-set key of the courier geo index.
func DefaultRedisKey() string { return defaultRedisKey }

// DefaultKafka returns the default Kafka topics and group.
func DefaultKafka() Kafka { return defaultKafka }

// DefaultAMQPExchange returns the default notification exchange.
func DefaultAMQPExchange() string { return defaultAMQPExchg }

// DefaultRateLimit returns the default limiter settings.
func DefaultRateLimit() RateLimit { return defaultRateLimit }

// DefaultCore returns the dispatch core defaults.
func DefaultCore() CoreConfig { return defaultCore }
