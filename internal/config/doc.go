// Package config provides centralized configuration management for csvmail.
//
// # Configuration Sources
//
// Configuration is assembled from the following sources, each overriding the
// one before it:
//
//	1. Default values (Default)
//	2. A YAML file: $CSVMAIL_CONFIG_FILE, ./config.yaml or ./configs/config.yaml
//	3. Environment variables
//
// # Environment Variables
//
// Every variable is prefixed with CSVMAIL and named after its section:
//
//	CSVMAIL_SERVER_PORT=8080
//	CSVMAIL_LOGGING_LEVEL=debug
//	CSVMAIL_ARTIFACTS_BACKEND=redis
//	CSVMAIL_ARTIFACTS_REDIS_ADDR=redis:6379
//	CSVMAIL_STATS_DEDUP_MODE=hashed
//	CSVMAIL_VALIDATION_JOB_BUDGET=10m
//
// # Validation
//
// Load rejects configurations that cannot work (bad ports, unknown backends,
// non-positive timeouts) instead of silently correcting them. The one
// exception is the log format, which is always JSON.
package config
