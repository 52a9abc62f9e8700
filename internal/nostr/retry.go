package nostr

import "time"

// RetryConfig configures the exponential backoff used for relay publish
// attempts, reused verbatim (field-for-field) from
// internal/ffmpeg.RetryConfig's shape.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig implements spec.md §4.5's "exponential backoff (1s,
// 2s, 4s) up to 3 retries".
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   4, // one initial attempt plus 3 retries
		InitialDelay:  1 * time.Second,
		BackoffFactor: 2.0,
	}
}

// delayFor returns the backoff delay before attempt n (0-indexed).
func (c RetryConfig) delayFor(attempt int) time.Duration {
	d := c.InitialDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * c.BackoffFactor)
	}
	return d
}
