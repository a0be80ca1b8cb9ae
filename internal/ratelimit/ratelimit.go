// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package ratelimit limits requests per client ip using token buckets.
package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/lukasdietrich/bulkmail/internal/log"
	"github.com/lukasdietrich/bulkmail/internal/metrics"
)

func init() {
	viper.SetDefault("http.ratelimit.rate", 0.2)
	viper.SetDefault("http.ratelimit.burst", 5)
	viper.SetDefault("http.ratelimit.cleanupInterval", "1m")
	viper.SetDefault("http.ratelimit.maxAge", "10m")
}

// Options configure the token bucket of every client.
type Options struct {
	// Rate is the number of requests per second refilled. A Rate <= 0
	// disables limiting.
	Rate  float64
	Burst int
	// CleanupInterval is the period in which idle clients are forgotten.
	CleanupInterval time.Duration
	// MaxAge is the idle time after which a client is forgotten.
	MaxAge time.Duration
}

// OptionsFromViper reads the options from `http.ratelimit.*`.
func OptionsFromViper() Options {
	return Options{
		Rate:            viper.GetFloat64("http.ratelimit.rate"),
		Burst:           viper.GetInt("http.ratelimit.burst"),
		CleanupInterval: viper.GetDuration("http.ratelimit.cleanupInterval"),
		MaxAge:          viper.GetDuration("http.ratelimit.maxAge"),
	}
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPRateLimiter holds one token bucket per client ip.
type IPRateLimiter struct {
	opts Options

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an IPRateLimiter. Idle entries are only removed while Run is
// active.
func New(opts Options) *IPRateLimiter {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}

	if opts.MaxAge <= 0 {
		opts.MaxAge = 10 * time.Minute
	}

	if opts.Burst < 1 {
		opts.Burst = 1
	}

	return &IPRateLimiter{
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

// Enabled reports whether requests are limited at all.
func (rl *IPRateLimiter) Enabled() bool {
	return rl.opts.Rate > 0
}

// Allow takes a token from the bucket of ip.
func (rl *IPRateLimiter) Allow(ip string) bool {
	if !rl.Enabled() {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[ip]
	if !ok {
		e = &entry{
			limiter: rate.NewLimiter(rate.Limit(rl.opts.Rate), rl.opts.Burst),
		}
		rl.entries[ip] = e
	}

	e.lastAccess = time.Now()
	return e.limiter.Allow()
}

// Len returns the number of tracked clients.
func (rl *IPRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.entries)
}

// Run removes idle clients until the context is canceled.
func (rl *IPRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.cleanup(now)
		}
	}
}

func (rl *IPRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, e := range rl.entries {
		if now.Sub(e.lastAccess) > rl.opts.MaxAge {
			delete(rl.entries, ip)
		}
	}
}

type rejection struct {
	Success bool   `json:"success"`
	Message string `json:"msg"`
	Count   int    `json:"count"`
}

// Middleware responds with 429 to clients without tokens left.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if !rl.Allow(ip) {
			metrics.RequestsRejected.WithLabelValues("rate_limited").Inc()
			log.WarnContext(r.Context()).Str("ip", ip).Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)

			json.NewEncoder(w).Encode(rejection{ // nolint:errcheck
				Message: "Too many requests, please try again later",
			})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from the remote address, if there is one.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
