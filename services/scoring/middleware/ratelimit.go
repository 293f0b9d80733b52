// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the scoring service.
//
// The rate limiter protects the predict path from a single runaway client:
// each client address gets its own token bucket, so one caller hammering
// the endpoint cannot starve the rest. Idle buckets are swept out
// opportunistically to keep the client map bounded.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
)

// sweepInterval is how often the client map is checked for idle entries.
const sweepInterval = time.Minute

// RateLimitConfig controls the per-client token buckets.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained refill rate per client.
	RequestsPerSecond float64

	// Burst is the bucket depth per client.
	Burst int

	// ClientTTL is how long an idle client entry survives before the
	// sweeper drops it.
	ClientTTL time.Duration
}

// DefaultRateLimitConfig returns limits sized for a single scoring replica.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		Burst:             100,
		ClientTTL:         10 * time.Minute,
	}
}

// clientLimiter pairs one token bucket with its last use.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter dispenses per-client token buckets.
//
// # Description
//
// Buckets are created lazily on a client's first request and refill at
// RequestsPerSecond up to Burst. The map is swept at most once per
// sweepInterval, inline under the same lock, so no background goroutine
// or lifecycle management is needed.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	cfg RateLimitConfig

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// NewRateLimiter creates a RateLimiter, filling zero config fields from
// DefaultRateLimitConfig.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.ClientTTL <= 0 {
		cfg.ClientTTL = defaults.ClientTTL
	}
	return &RateLimiter{
		cfg:     cfg,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether one request from the client may proceed now.
func (rl *RateLimiter) Allow(client string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= sweepInterval {
		for key, entry := range rl.clients {
			if now.Sub(entry.lastSeen) > rl.cfg.ClientTTL {
				delete(rl.clients, key)
			}
		}
		rl.lastSweep = now
	}

	entry, ok := rl.clients[client]
	if !ok {
		entry = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst),
		}
		rl.clients[client] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

// ClientCount returns how many client buckets are currently tracked.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// RateLimit creates a Gin middleware that enforces per-client limits.
//
// # Description
//
// Requests over the limit are rejected with 429 and a Retry-After hint.
// The client key is Gin's ClientIP, which respects the engine's trusted
// proxy configuration.
//
// # Examples
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	v1 := router.Group("/v1")
//	v1.Use(middleware.RateLimit(limiter))
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.ErrorResponse{
				Error: "Too many requests",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
