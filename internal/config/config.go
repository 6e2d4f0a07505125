package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	BusNATS  = "nats"
	BusKafka = "kafka"
)

type Config struct {
	Bus string `validate:"oneof=nats kafka"`

	NATSURL          string `validate:"required,url"`
	NATSStreamName   string
	NATSSubjectIn    string `validate:"required_if=Bus nats"`
	NATSDurable      string `validate:"required_if=Bus nats"`
	OutSubjectPrefix string `validate:"required"`
	LogNATSSubjects  bool

	KafkaBrokers string `validate:"required_if=Bus kafka"`
	KafkaGroupID string `validate:"required_if=Bus kafka"`
	KafkaTopic   string `validate:"required_if=Bus kafka"`

	// Reference data sources. All are optional.
	RedisAddr       string `validate:"omitempty,hostname_port"`
	RedisPassword   string
	RedisDB         int `validate:"gte=0"`
	RefdataCacheTTL time.Duration
	DatabaseURL     string

	TripIDResolverURL string `validate:"omitempty,url"`
	TripIDCacheTTL    time.Duration

	CacheTTL time.Duration `validate:"gt=0"`
	Workers  int           `validate:"gt=0"`
	Location *time.Location

	IngestRulesFile   string `validate:"omitempty,file"`
	FilterTrainRoutes bool

	PrematureDepartureMaxLead time.Duration `validate:"gt=0"`
	MaxEstimateAge            time.Duration `validate:"gt=0"`
	MissingEstimatesThreshold int

	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Bus:               strings.ToLower(getenvDefault("BUS", BusNATS)),
		NATSURL:           getenvDefault("NATS_URL", "nats://127.0.0.1:4222"),
		NATSStreamName:    os.Getenv("NATS_STREAM_NAME"),
		NATSSubjectIn:     getenvDefault("NATS_SUBJECT_IN", "transitdata.stop-estimates.>"),
		NATSDurable:       getenvDefault("NATS_DURABLE", "tripupdater"),
		OutSubjectPrefix:  getenvDefault("OUT_SUBJECT_PREFIX", "gtfsrt.tripupdates"),
		KafkaBrokers:      os.Getenv("KAFKA_BROKERS"),
		KafkaGroupID:      getenvDefault("KAFKA_GROUP_ID", "tripupdater"),
		KafkaTopic:        os.Getenv("KAFKA_TOPIC"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		TripIDResolverURL: os.Getenv("TRIP_ID_RESOLVER_URL"),
		IngestRulesFile:   os.Getenv("INGEST_RULES_FILE"),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		LogFormat:         getenvDefault("LOG_FORMAT", "console"),
		LogNATSSubjects:   getenvBool("LOG_NATS_SUBJECTS"),
		FilterTrainRoutes: getenvBool("FILTER_TRAIN_ROUTES"),
	}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars when PGDATABASE is set
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" && os.Getenv("PGDATABASE") != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, os.Getenv("PGDATABASE"), sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, os.Getenv("PGDATABASE"), sslmode)
		}
	}

	var err error
	if cfg.RedisDB, err = getenvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getenvInt("WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.MissingEstimatesThreshold, err = getenvInt("MISSING_ESTIMATES_THRESHOLD", 0); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getenvSeconds("CACHE_TTL_SEC", 4*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RefdataCacheTTL, err = getenvSeconds("REFDATA_CACHE_TTL_SEC", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.TripIDCacheTTL, err = getenvSeconds("TRIP_ID_CACHE_TTL_SEC", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PrematureDepartureMaxLead, err = getenvSeconds("PREMATURE_DEPARTURE_MAX_LEAD_SEC", 180*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxEstimateAge, err = getenvSeconds("MAX_ESTIMATE_AGE_SEC", 2*time.Hour); err != nil {
		return nil, err
	}

	// Time zone of operating days and start times
	tzName := getenvDefault("TZ", "Europe/Helsinki")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ: %v", err)
	}
	cfg.Location = loc

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func getenvSeconds(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return time.Duration(sec) * time.Second, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
