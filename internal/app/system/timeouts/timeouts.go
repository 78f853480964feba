// Package timeouts provides centralized timeout values for store and
// collaborator calls made while handling realtime events.
//
// Each event handler derives a context with one of these values so a slow
// store cannot wedge a connection's read loop.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks
//   - Short: single-document reads and presence upserts
//   - Medium: snapshot joins, history reads, route lookups
//   - Long: multi-step work such as marking a closed session offline everywhere
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
)

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

func defaults() Config {
	return Config{Ping: DefaultPing, Short: DefaultShort, Medium: DefaultMedium, Long: DefaultLong}
}

// merge returns c with every positive field of o applied.
func (c Config) merge(o Config) Config {
	if o.Ping > 0 {
		c.Ping = o.Ping
	}
	if o.Short > 0 {
		c.Short = o.Short
	}
	if o.Medium > 0 {
		c.Medium = o.Medium
	}
	if o.Long > 0 {
		c.Long = o.Long
	}
	return c
}

var (
	mu  sync.RWMutex
	cur = defaults()
)

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}

func Ping() time.Duration   { return Current().Ping }
func Short() time.Duration  { return Current().Short }
func Medium() time.Duration { return Current().Medium }
func Long() time.Duration   { return Current().Long }

// Configure applies custom values. Call during startup before connections
// are accepted.
func Configure(cfg Config) {
	mu.Lock()
	cur = cur.merge(cfg)
	mu.Unlock()
}

// Reset restores all timeouts to their default values.
func Reset() {
	mu.Lock()
	cur = defaults()
	mu.Unlock()
}

// envPrefix is followed by PING, SHORT, MEDIUM or LONG.
const envPrefix = "TRAVELSYNC_TIMEOUT_"

// ConfigureFromEnv reads TRAVELSYNC_TIMEOUT_PING, _SHORT, _MEDIUM and _LONG
// (Go duration strings). Invalid or non-positive values are ignored.
// Returns the number of timeouts configured.
func ConfigureFromEnv() int {
	var cfg Config
	n := 0
	read := func(name string, dst *time.Duration) {
		d, err := time.ParseDuration(os.Getenv(envPrefix + name))
		if err != nil || d <= 0 {
			return
		}
		*dst = d
		n++
	}
	read("PING", &cfg.Ping)
	read("SHORT", &cfg.Short)
	read("MEDIUM", &cfg.Medium)
	read("LONG", &cfg.Long)

	Configure(cfg)
	return n
}

// WithTimeout creates a context with timeout and returns a cancel function that
// logs a warning if the deadline was hit.
//
//	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Long(), log, "mark offline")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if log != nil && ctx.Err() == context.DeadlineExceeded {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout))
		}
		cancel()
	}
}
