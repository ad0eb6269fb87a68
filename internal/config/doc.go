// Package config loads, normalizes, and validates fieldsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FIELDSYNC_REMOTE_URL. The Config type centralizes every knob the daemon and
// CLI need: queue and records database locations, retry budget, batch sizes,
// scheduling intervals per connectivity class, and the metrics endpoint.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
