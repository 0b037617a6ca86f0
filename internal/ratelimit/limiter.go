package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"grocery-price-api/internal/config"
	"grocery-price-api/internal/logger"
)

// Limiter keeps one token bucket per client IP. It protects the upstream
// image search and exchange rate quotas from a single noisy client.
type Limiter struct {
	Configuration *config.Config
	logger        *logger.Logger

	clientBuckets map[string]*TokenBucket
	bucketsMutex  sync.Mutex

	idleTimeout   time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// TokenBucket refills continuously at refillRate tokens per refillPeriod
type TokenBucket struct {
	capacity     float64
	tokens       float64
	refillRate   float64
	refillPeriod time.Duration
	lastRefill   time.Time
	lastSeen     time.Time
	mu           sync.Mutex
}

// NewLimiter creates a limiter and starts its idle-bucket cleanup
func NewLimiter(configuration *config.Config, logger *logger.Logger) *Limiter {
	rateLimiter := &Limiter{
		Configuration: configuration,
		logger:        logger,
		clientBuckets: make(map[string]*TokenBucket),
		idleTimeout:   time.Hour,
		cleanupTicker: time.NewTicker(5 * time.Minute),
		stopCleanup:   make(chan struct{}),
	}

	go rateLimiter.cleanup()

	return rateLimiter
}

// Allow takes a token from the client's bucket
func (rateLimiter *Limiter) Allow(clientIP string) bool {
	if !rateLimiter.Configuration.RateLimitEnabled {
		return true
	}

	now := time.Now()

	rateLimiter.bucketsMutex.Lock()
	tokenBucket, bucketExists := rateLimiter.clientBuckets[clientIP]
	if !bucketExists {
		tokenBucket = newTokenBucket(
			rateLimiter.Configuration.RateLimitBurst,
			rateLimiter.Configuration.RateLimitRequests,
			rateLimiter.Configuration.RateLimitWindow,
			now,
		)
		rateLimiter.clientBuckets[clientIP] = tokenBucket
	}
	rateLimiter.bucketsMutex.Unlock()

	return tokenBucket.take(now)
}

// ClientCount returns the number of tracked clients
func (rateLimiter *Limiter) ClientCount() int {
	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()
	return len(rateLimiter.clientBuckets)
}

// GetClientIP extracts the client IP, preferring proxy headers
func (rateLimiter *Limiter) GetClientIP(request *http.Request) string {
	// X-Forwarded-For: client, proxy1, proxy2
	if xForwardedFor := request.Header.Get("X-Forwarded-For"); xForwardedFor != "" {
		first := strings.TrimSpace(strings.Split(xForwardedFor, ",")[0])
		if clientIP := parseHost(first); clientIP != "" {
			return clientIP
		}
	}

	if xRealIP := request.Header.Get("X-Real-IP"); xRealIP != "" {
		if clientIP := parseHost(strings.TrimSpace(xRealIP)); clientIP != "" {
			return clientIP
		}
	}

	clientIP, _, parseError := net.SplitHostPort(request.RemoteAddr)
	if parseError != nil {
		return request.RemoteAddr
	}
	return clientIP
}

// Stop stops the cleanup goroutine
func (rateLimiter *Limiter) Stop() {
	rateLimiter.stopOnce.Do(func() {
		close(rateLimiter.stopCleanup)
	})
}

func (rateLimiter *Limiter) cleanup() {
	for {
		select {
		case <-rateLimiter.cleanupTicker.C:
			rateLimiter.removeIdle(time.Now())
		case <-rateLimiter.stopCleanup:
			rateLimiter.cleanupTicker.Stop()
			return
		}
	}
}

func (rateLimiter *Limiter) removeIdle(now time.Time) {
	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()

	for clientIP, tokenBucket := range rateLimiter.clientBuckets {
		tokenBucket.mu.Lock()
		idle := now.Sub(tokenBucket.lastSeen) > rateLimiter.idleTimeout
		tokenBucket.mu.Unlock()
		if idle {
			delete(rateLimiter.clientBuckets, clientIP)
		}
	}
}

func newTokenBucket(capacity, refillRate int, refillPeriod time.Duration, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:     float64(capacity),
		tokens:       float64(capacity),
		refillRate:   float64(refillRate),
		refillPeriod: refillPeriod,
		lastRefill:   now,
		lastSeen:     now,
	}
}

func (tokenBucket *TokenBucket) take(now time.Time) bool {
	tokenBucket.mu.Lock()
	defer tokenBucket.mu.Unlock()

	tokenBucket.lastSeen = now
	if now.After(tokenBucket.lastRefill) && tokenBucket.refillPeriod > 0 {
		elapsed := now.Sub(tokenBucket.lastRefill)
		tokenBucket.tokens += elapsed.Seconds() / tokenBucket.refillPeriod.Seconds() * tokenBucket.refillRate
		if tokenBucket.tokens > tokenBucket.capacity {
			tokenBucket.tokens = tokenBucket.capacity
		}
		tokenBucket.lastRefill = now
	}

	if tokenBucket.tokens >= 1 {
		tokenBucket.tokens--
		return true
	}
	return false
}

func parseHost(value string) string {
	if clientIP := net.ParseIP(value); clientIP != nil {
		return clientIP.String()
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		if clientIP := net.ParseIP(host); clientIP != nil {
			return clientIP.String()
		}
	}
	return ""
}
