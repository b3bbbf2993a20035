// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benjaminabbitt/medreserve/events"
	"github.com/benjaminabbitt/medreserve/filestore"
	"github.com/benjaminabbitt/medreserve/prescription/logic"
	"github.com/benjaminabbitt/medreserve/reservation"
	"github.com/benjaminabbitt/medreserve/sweeper"
)

// Config is the full process configuration.
type Config struct {
	GRPCPort string
	HTTPPort string

	// DatabaseURL selects the Postgres stores. Empty runs in memory.
	DatabaseURL string
	DBMaxConns  int32

	// RabbitURL enables the AMQP event publisher when set.
	RabbitURL      string
	RabbitExchange string
	ConsoleEvents  bool

	HoldDuration  time.Duration
	QuoteValidity time.Duration
	SweepInterval time.Duration
	SweepBatch    int

	UploadDir     string
	UploadURL     string
	MaxFileSize   int64
	RateLimit     int
	RateLimitSpan time.Duration
}

// Lookup returns the value of an environment key and whether it was set.
type Lookup func(key string) (string, bool)

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup. Unset or blank keys take
// their defaults; malformed values are errors.
func LoadFrom(lookup Lookup) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		GRPCPort:       r.str("PORT", "50051"),
		HTTPPort:       r.str("HTTP_PORT", "8080"),
		DatabaseURL:    r.str("DATABASE_URL", ""),
		DBMaxConns:     int32(r.integer("DATABASE_MAX_CONNS", 10)),
		RabbitURL:      r.str("RABBITMQ_URL", ""),
		RabbitExchange: r.str("RABBITMQ_EXCHANGE", events.DefaultExchange),
		ConsoleEvents:  r.boolean("MEDRESERVE_CONSOLE_EVENTS", false),
		HoldDuration:   r.duration("MEDRESERVE_HOLD_DURATION", reservation.DefaultHoldDuration),
		QuoteValidity:  r.duration("MEDRESERVE_QUOTE_VALIDITY", logic.DefaultQuoteValidity),
		SweepInterval:  r.duration("MEDRESERVE_SWEEP_INTERVAL", sweeper.DefaultInterval),
		SweepBatch:     r.integer("MEDRESERVE_SWEEP_BATCH", sweeper.DefaultBatch),
		UploadDir:      r.str("UPLOAD_DIR", "uploads"),
		UploadURL:      r.str("UPLOAD_URL_PREFIX", filestore.DefaultURLPrefix),
		MaxFileSize:    int64(r.integer("MEDRESERVE_MAX_FILE_SIZE", int(logic.DefaultMaxFileSize))),
		RateLimit:      r.integer("MEDRESERVE_RATE_LIMIT", 120),
		RateLimitSpan:  r.duration("MEDRESERVE_RATE_LIMIT_WINDOW", time.Minute),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	positive := []struct {
		name string
		ok   bool
	}{
		{"MEDRESERVE_HOLD_DURATION", c.HoldDuration > 0},
		{"MEDRESERVE_QUOTE_VALIDITY", c.QuoteValidity > 0},
		{"MEDRESERVE_SWEEP_INTERVAL", c.SweepInterval > 0},
		{"MEDRESERVE_SWEEP_BATCH", c.SweepBatch > 0},
		{"MEDRESERVE_MAX_FILE_SIZE", c.MaxFileSize > 0},
		{"MEDRESERVE_RATE_LIMIT", c.RateLimit > 0},
		{"MEDRESERVE_RATE_LIMIT_WINDOW", c.RateLimitSpan > 0},
		{"DATABASE_MAX_CONNS", c.DBMaxConns > 0},
	}
	for _, p := range positive {
		if !p.ok {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	return nil
}

// reader keeps the first parse error so Load reports one problem at a time.
type reader struct {
	lookup Lookup
	err    error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}
