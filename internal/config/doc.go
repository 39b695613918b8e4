// Package config loads, normalizes, and validates batchcursor configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BATCHCURSOR_API_TOKEN and OTEL_EXPORTER_OTLP_ENDPOINT. The Config type
// centralizes the request defaults the iteration driver falls back to, the
// continuation scheduler target, and the daemon bind address.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum spellings, and clear validation errors.
package config
