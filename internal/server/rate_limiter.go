// Package server throttles chat traffic per connection with a token bucket
// that protects rooms from floods.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter returns a bucket holding capacity tokens that refills
// completely once per interval.
func newRateLimiter(capacity int, interval time.Duration) *rate.Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(capacity)), capacity)
}
