package resilience

import (
	"sync"
	"time"
)

type TokenBucketConfig struct {
	MaxTokens      int
	RefillAmount   int
	RefillInterval time.Duration
}

func DefaultTokenBucketConfig() TokenBucketConfig {
	return TokenBucketConfig{
		MaxTokens:      60,
		RefillAmount:   20,
		RefillInterval: time.Minute,
	}
}

func NormalizeTokenBucketConfig(cfg TokenBucketConfig) TokenBucketConfig {
	defaults := DefaultTokenBucketConfig()
	if cfg.MaxTokens < 1 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.RefillAmount < 1 {
		cfg.RefillAmount = defaults.RefillAmount
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = defaults.RefillInterval
	}
	return cfg
}

// TokenBucket caps how many expensive upstream scans may run per refill
// window. It starts full and refills additively, capped at MaxTokens. Refill
// is derived from elapsed intervals on demand rather than a background timer,
// so tests can drive it with a fake clock.
type TokenBucket struct {
	mu  sync.Mutex
	cfg TokenBucketConfig
	now func() time.Time

	tokens     int
	lastRefill time.Time
}

func NewTokenBucket(cfg TokenBucketConfig) *TokenBucket {
	cfg = NormalizeTokenBucketConfig(cfg)
	b := &TokenBucket{
		cfg:    cfg,
		now:    time.Now,
		tokens: cfg.MaxTokens,
	}
	b.lastRefill = b.now()
	return b
}

func (b *TokenBucket) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
		b.lastRefill = now()
	}
}

// Available reports the current balance after applying any due refills.
func (b *TokenBucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// TakeUpTo debits min(want, available) and returns the grant. The balance
// never goes negative: a caller asking for more than remains gets the
// remainder, and a zero grant means the scan must be skipped.
func (b *TokenBucket) TakeUpTo(want int) int {
	if want <= 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()

	granted := want
	if granted > b.tokens {
		granted = b.tokens
	}
	b.tokens -= granted
	return granted
}

func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.cfg.RefillInterval {
		return
	}

	intervals := int(elapsed / b.cfg.RefillInterval)
	b.tokens += intervals * b.cfg.RefillAmount
	if b.tokens > b.cfg.MaxTokens {
		b.tokens = b.cfg.MaxTokens
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * b.cfg.RefillInterval)
}
