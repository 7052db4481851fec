package batch

import (
	"math"
	"math/rand"
	"time"
)

// BackoffType selects the delay curve applied between flush retries.
type BackoffType string

const (
	BackoffExp       BackoffType = "exp"
	BackoffExpJitter BackoffType = "exp-jitter"
	BackoffFixed     BackoffType = "fixed"
	BackoffNone      BackoffType = "none"
)

// RetryPolicy controls re-delivery of a failed flush.
type RetryPolicy struct {
	Type        BackoffType
	Base        time.Duration
	Cap         time.Duration
	Factor      float64
	MaxAttempts uint32
}

// DefaultRetryPolicy matches the pipeline-wide flush retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Type: BackoffExpJitter, Base: 200 * time.Millisecond, Cap: 30 * time.Second, Factor: 2.0, MaxAttempts: 5}
}

// Delay computes the backoff before the given retry attempt (1-based).
func (p RetryPolicy) Delay(attempt uint32) time.Duration {
	switch p.Type {
	case BackoffNone:
		return 0
	case BackoffFixed:
		if p.Base <= 0 {
			return 0
		}
		if p.Cap > 0 && p.Base > p.Cap {
			return p.Cap
		}
		return p.Base
	case BackoffExp, BackoffExpJitter:
		base := p.Base
		if base <= 0 {
			base = 200 * time.Millisecond
		}
		factor := p.Factor
		if factor <= 0 {
			factor = 2.0
		}
		d := time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
		if p.Cap > 0 && d > p.Cap {
			d = p.Cap
		}
		if p.Type == BackoffExpJitter {
			if d <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(d)))
		}
		return d
	default:
		return 0
	}
}
