package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config stores service settings.
type Config struct {
	Port      int
	GRPCPort  int
	Storage   string
	Admin     Admin
	DB        DB
	Redis     Redis
	Kafka     Kafka
	AMQP      AMQP
	Firebase  Firebase
	RateLimit RateLimit
	Log       Log
	Core      CoreConfig
}

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Admin is the loopback listener for /metrics and pprof.
type Admin struct {
	Addr string
	User string
	Pass string
}

// DB stores Postgres connection settings.
type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN returns a pgx connection string.
func (d DB) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", d.User, d.Pass, d.Host, d.Port, d.Name)
}

// Redis stores settings of the courier geo index. Empty Addr disables it.
type Redis struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Kafka stores broker settings. Empty Brokers disables both the consumer and the producer.
type Kafka struct {
	Brokers      []string
	GroupID      string
	InboundTopic string
	NotifyTopic  string
}

// AMQP stores RabbitMQ settings. Empty URL disables the notifier.
type AMQP struct {
	URL      string
	Exchange string
}

// Firebase stores FCM settings. Empty CredentialsFile disables push.
type Firebase struct {
	CredentialsFile string
}

// RateLimit configures the token bucket limiter.
type RateLimit struct {
	Enabled    bool
	Rate       float64
	Burst      int
	TTL        time.Duration
	MaxBuckets int
}

// Log selects the logging backend and level.
type Log struct {
	Level   string
	Backend string
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	r := &envReader{}
	cfg := &Config{
		Port:     r.int("PORT", DefaultPort()),
		GRPCPort: r.int("GRPC_PORT", DefaultGRPCPort()),
		Storage:  r.string("STORAGE", StoragePostgres),
		Admin: Admin{
			Addr: r.string("ADMIN_ADDR", DefaultAdmin().Addr),
			User: r.string("ADMIN_USER", ""),
			Pass: r.string("ADMIN_PASSWORD", ""),
		},
		DB: DB{
			Host: r.string("POSTGRES_HOST", DefaultDB().Host),
			Port: r.string("POSTGRES_PORT", DefaultDB().Port),
			User: r.string("POSTGRES_USER", DefaultDB().User),
			Pass: r.string("POSTGRES_PASSWORD", DefaultDB().Pass),
			Name: r.string("POSTGRES_DB", DefaultDB().Name),
		},
		Redis: Redis{
			Addr:     r.string("REDIS_ADDR", ""),
			Password: r.string("REDIS_PASSWORD", ""),
			DB:       r.int("REDIS_DB", 0),
			Key:      r.string("REDIS_COURIER_KEY", DefaultRedisKey()),
		},
		Kafka: Kafka{
			Brokers:      r.list("KAFKA_BROKERS"),
			GroupID:      r.string("KAFKA_GROUP_ID", DefaultKafka().GroupID),
			InboundTopic: r.string("KAFKA_INBOUND_TOPIC", DefaultKafka().InboundTopic),
			NotifyTopic:  r.string("KAFKA_NOTIFY_TOPIC", DefaultKafka().NotifyTopic),
		},
		AMQP: AMQP{
			URL:      r.string("AMQP_URL", ""),
			Exchange: r.string("AMQP_EXCHANGE", DefaultAMQPExchange()),
		},
		Firebase: Firebase{
			CredentialsFile: r.string("FIREBASE_CREDENTIALS_FILE", ""),
		},
		RateLimit: RateLimit{
			Enabled:    r.bool("RATE_LIMIT_ENABLED", DefaultRateLimit().Enabled),
			Rate:       r.float("RATE_LIMIT_RPS", DefaultRateLimit().Rate),
			Burst:      r.int("RATE_LIMIT_BURST", DefaultRateLimit().Burst),
			TTL:        r.duration("RATE_LIMIT_TTL", DefaultRateLimit().TTL),
			MaxBuckets: r.int("RATE_LIMIT_MAX_BUCKETS", DefaultRateLimit().MaxBuckets),
		},
		Log: Log{
			Level:   r.string("LOG_LEVEL", "info"),
			Backend: r.string("LOG_BACKEND", "slog"),
		},
		Core: loadCore(r),
	}
	if r.err != nil {
		return nil, r.err
	}

	pflag.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	pflag.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "gRPC health port, 0 disables it")
	pflag.StringVar(&cfg.Storage, "storage", cfg.Storage, "storage backend: postgres|memory")
	pflag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug|info|warn|error")
	if err := pflag.CommandLine.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadCore(r *envReader) CoreConfig {
	d := DefaultCore()
	return CoreConfig{
		MaxAttempts:            r.int("MAX_ATTEMPTS", d.MaxAttempts),
		RadiusIncrementKm:      r.float("RADIUS_INCREMENT_KM", d.RadiusIncrementKm),
		InitialRadiusKm:        r.float("INITIAL_RADIUS_KM", d.InitialRadiusKm),
		CourierRadiusKm:        r.float("COURIER_RADIUS_KM", d.CourierRadiusKm),
		TrackingStaleTTL:       r.duration("TRACKING_STALE_TTL", d.TrackingStaleTTL),
		CourierIdleOfflineTTL:  r.duration("COURIER_IDLE_OFFLINE_TTL", d.CourierIdleOfflineTTL),
		SweepPendingPeriod:     r.duration("SWEEP_PENDING_PERIOD", d.SweepPendingPeriod),
		SweepDemotePeriod:      r.duration("SWEEP_DEMOTE_PERIOD", d.SweepDemotePeriod),
		SweepDelayPeriod:       r.duration("SWEEP_DELAY_PERIOD", d.SweepDelayPeriod),
		SweepStalePeriod:       r.duration("SWEEP_STALE_PERIOD", d.SweepStalePeriod),
		AssumedCourierSpeedKmh: r.float("ASSUMED_COURIER_SPEED_KMH", d.AssumedCourierSpeedKmh),
		DeliveryChargePerKm:    r.float("DELIVERY_CHARGE_PER_KM", d.DeliveryChargePerKm),
		CourierMinutesPerKm:    r.float("COURIER_MINUTES_PER_KM", d.CourierMinutesPerKm),
		CourierHandoffMinutes:  r.float("COURIER_HANDOFF_MINUTES", d.CourierHandoffMinutes),
		RetryAttempts:          r.int("RETRY_ATTEMPTS", d.RetryAttempts),
		RetryDelay:             r.duration("RETRY_DELAY", d.RetryDelay),
		OperationTimeout:       r.duration("OPERATION_TIMEOUT", d.OperationTimeout),
		SubscriberBuffer:       r.int("SUBSCRIBER_BUFFER", d.SubscriberBuffer),
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.GRPCPort)
	}
	if p, err := strconv.Atoi(c.DB.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("invalid postgres port: %q", c.DB.Port)
	}
	if c.Storage != StoragePostgres && c.Storage != StorageMemory {
		return fmt.Errorf("invalid storage: %q", c.Storage)
	}
	if c.Log.Backend != "slog" && c.Log.Backend != "zap" {
		return fmt.Errorf("invalid log backend: %q", c.Log.Backend)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: rate=%v burst=%d", c.RateLimit.Rate, c.RateLimit.Burst)
	}
	return c.Core.Validate()
}

// envReader reads typed values and keeps every parse error.
type envReader struct {
	err error
}

func (r *envReader) fail(key, raw string, err error) {
	r.err = errors.Join(r.err, fmt.Errorf("%s=%q: %w", key, raw, err))
}

func (r *envReader) string(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *envReader) bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

// duration accepts Go duration syntax ("90s", "2m") or bare seconds ("120").
func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *envReader) list(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
