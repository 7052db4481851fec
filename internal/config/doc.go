// Package config loads Verbatim's runtime configuration: JSON file defaults
// overlaid with VERBATIM_* environment variables. Numeric backpressure
// thresholds and bandwidth tier ceilings are product-tuned defaults, not
// contracts; deployments are expected to override them.
package config
