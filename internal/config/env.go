package config

import (
	"os"
	"strconv"
)

// FromEnv overlays VERBATIM_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("VERBATIM_ALLOW_AUTO_CREATE_SESSIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowAutoCreateSessions = b
		}
	}
	if v := os.Getenv("VERBATIM_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	setInt(&cfg.Stream.BatchSize, "VERBATIM_STREAM_BATCH_SIZE")
	setInt64(&cfg.Stream.CoalescingWindowMs, "VERBATIM_STREAM_COALESCING_WINDOW_MS")
	setInt64(&cfg.Stream.MaxLatencyMs, "VERBATIM_STREAM_MAX_LATENCY_MS")
	if v := os.Getenv("VERBATIM_STREAM_ENABLE_COALESCING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Stream.EnableCoalescing = b
		}
	}

	setInt64(&cfg.Backpressure.HardLatencyMs, "VERBATIM_BP_HARD_LATENCY_MS")
	setInt(&cfg.Backpressure.HardQueueDepth, "VERBATIM_BP_HARD_QUEUE_DEPTH")
	setInt64(&cfg.Backpressure.WarnLatencyMs, "VERBATIM_BP_WARN_LATENCY_MS")
	setFloat64(&cfg.Backpressure.WarnThroughput, "VERBATIM_BP_WARN_THROUGHPUT")
	setInt64(&cfg.Backpressure.LowLatencyMs, "VERBATIM_BP_LOW_LATENCY_MS")
	setFloat64(&cfg.Backpressure.LowThroughput, "VERBATIM_BP_LOW_THROUGHPUT")

	setFloat64(&cfg.Breaker.FailureThreshold, "VERBATIM_BREAKER_FAILURE_THRESHOLD")
	setInt64(&cfg.Breaker.RecoveryTimeoutMs, "VERBATIM_BREAKER_RECOVERY_TIMEOUT_MS")
	setInt64(&cfg.Breaker.SlowCallMs, "VERBATIM_BREAKER_SLOW_CALL_MS")

	setInt64(&cfg.Retention.FragmentMaxAgeMs, "VERBATIM_RETENTION_FRAGMENT_MAX_AGE_MS")
	setInt64(&cfg.Retention.MetricsMaxAgeMs, "VERBATIM_RETENTION_METRICS_MAX_AGE_MS")
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
