package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	AllowAutoCreateSessions bool            `json:"allowAutoCreateSessions"`
	Stream                  StreamDefaults  `json:"stream"`
	Backpressure            Backpressure    `json:"backpressure"`
	Breaker                 Breaker         `json:"breaker"`
	Retention               Retention       `json:"retention"`
	Tiers                   map[string]Tier `json:"tiers"`
	Global                  GlobalLimits    `json:"global"`
	// RedisAddr, when set, shares the global bandwidth window across
	// processes via Redis. Empty keeps it process-local.
	RedisAddr string `json:"redisAddr"`
}

// StreamDefaults are the per-session ingestion defaults; callers may override
// them per submission.
type StreamDefaults struct {
	BatchSize          int   `json:"batchSize"`
	CoalescingWindowMs int64 `json:"coalescingWindowMs"`
	MaxLatencyMs       int64 `json:"maxLatencyMs"`
	EnableCoalescing   bool  `json:"enableCoalescing"`
}

// Backpressure holds the ordered threshold checks for the load controller.
// Hard ceilings force a pause; warning ceilings throttle; below the low
// water marks the controller grows batches for efficiency.
type Backpressure struct {
	HardLatencyMs   int64   `json:"hardLatencyMs"`
	HardQueueDepth  int     `json:"hardQueueDepth"`
	WarnLatencyMs   int64   `json:"warnLatencyMs"`
	WarnThroughput  float64 `json:"warnThroughput"`
	LowLatencyMs    int64   `json:"lowLatencyMs"`
	LowThroughput   float64 `json:"lowThroughput"`
	MinBatchSize    int     `json:"minBatchSize"`
	MaxBatchSize    int     `json:"maxBatchSize"`
	MinWindowMs     int64   `json:"minWindowMs"`
	MaxWindowMs     int64   `json:"maxWindowMs"`
	SubjectWindowMs int64   `json:"subjectWindowMs"`
	GlobalWindowMs  int64   `json:"globalWindowMs"`
	IdleEvictMs     int64   `json:"idleEvictMs"`
}

// Breaker configures the circuit breaker defaults per protected operation.
type Breaker struct {
	FailureThreshold  float64 `json:"failureThreshold"`
	RecoveryTimeoutMs int64   `json:"recoveryTimeoutMs"`
	SlowCallMs        int64   `json:"slowCallMs"`
}

// Retention holds age-based deletion defaults.
type Retention struct {
	FragmentMaxAgeMs int64 `json:"fragmentMaxAgeMs"`
	MetricsMaxAgeMs  int64 `json:"metricsMaxAgeMs"`
}

// Tier defines bandwidth ceilings for one subscription tier.
type Tier struct {
	RequestsPerMin   int   `json:"requestsPerMin"`
	MaxSubscriptions int   `json:"maxSubscriptions"`
	BytesPerMin      int64 `json:"bytesPerMin"`
}

// GlobalLimits protect the whole process across all subjects; they are
// checked in addition to per-subject tiers, never instead of them.
type GlobalLimits struct {
	Requests      int   `json:"requests"`
	Subscriptions int   `json:"subscriptions"`
	Bytes         int64 `json:"bytes"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		AllowAutoCreateSessions: true,
		Stream: StreamDefaults{
			BatchSize:          20,
			CoalescingWindowMs: 250,
			MaxLatencyMs:       1000,
			EnableCoalescing:   true,
		},
		Backpressure: Backpressure{
			HardLatencyMs:   500,
			HardQueueDepth:  8,
			WarnLatencyMs:   250,
			WarnThroughput:  50,
			LowLatencyMs:    100,
			LowThroughput:   10,
			MinBatchSize:    5,
			MaxBatchSize:    100,
			MinWindowMs:     100,
			MaxWindowMs:     1000,
			SubjectWindowMs: 60_000,
			GlobalWindowMs:  10_000,
			IdleEvictMs:     5 * 60_000,
		},
		Breaker: Breaker{
			FailureThreshold:  5,
			RecoveryTimeoutMs: 30_000,
			SlowCallMs:        1000,
		},
		Retention: Retention{
			FragmentMaxAgeMs: 90 * 24 * 3_600_000,
			MetricsMaxAgeMs:  24 * 3_600_000,
		},
		Tiers: map[string]Tier{
			"premium":  {RequestsPerMin: 600, MaxSubscriptions: 20, BytesPerMin: 64 << 20},
			"standard": {RequestsPerMin: 240, MaxSubscriptions: 8, BytesPerMin: 16 << 20},
			"limited":  {RequestsPerMin: 60, MaxSubscriptions: 2, BytesPerMin: 4 << 20},
		},
		Global: GlobalLimits{
			Requests:      2000,
			Subscriptions: 500,
			Bytes:         256 << 20,
		},
	}
}

// Load reads configuration from a JSON file overlaid on defaults. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
