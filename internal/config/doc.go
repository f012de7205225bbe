// Package config defines the settings of the alarm service and provides
// helpers to load, validate and save them in YAML format.
//
// Values are resolved in order: built-in defaults, the YAML file, an optional
// .env file and THRESHOLD_ALARM_* environment variables. Settings are read
// once at start; only thresholds can change while the service runs.
package config
