// rate_limiter.go - Per-trader rate limiting for the venue daemon
package main

import (
	"sync"
	"time"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	lastRefill   time.Time
	refillPeriod time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxTokens int, refillRate int, refillPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		lastRefill:   time.Now(),
		refillPeriod: refillPeriod,
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	timeElapsed := now.Sub(rl.lastRefill)
	refillCount := int(timeElapsed / rl.refillPeriod)

	if refillCount > 0 {
		rl.tokens += refillCount * rl.refillRate
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}

	return false
}

// GetTokens returns the current number of available tokens
func (rl *RateLimiter) GetTokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.tokens
}

// TraderRateLimiter manages rate limiting per trader
type TraderRateLimiter struct {
	limiters     map[string]*RateLimiter
	mu           sync.RWMutex
	maxTokens    int
	refillRate   int
	refillPeriod time.Duration
}

// NewTraderRateLimiter creates a new per-trader rate limiter
func NewTraderRateLimiter(maxTokens int, refillRate int, refillPeriod time.Duration) *TraderRateLimiter {
	return &TraderRateLimiter{
		limiters:     make(map[string]*RateLimiter),
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
	}
}

// Allow checks if a request from a trader is allowed
func (trl *TraderRateLimiter) Allow(trader string) bool {
	trl.mu.Lock()
	limiter, exists := trl.limiters[trader]
	if !exists {
		limiter = NewRateLimiter(trl.maxTokens, trl.refillRate, trl.refillPeriod)
		trl.limiters[trader] = limiter
	}
	trl.mu.Unlock()

	return limiter.Allow()
}

// GetTokens returns the current number of available tokens for a trader
func (trl *TraderRateLimiter) GetTokens(trader string) int {
	trl.mu.RLock()
	limiter, exists := trl.limiters[trader]
	trl.mu.RUnlock()

	if !exists {
		return trl.maxTokens
	}

	return limiter.GetTokens()
}
