// Package config loads and validates the DIAL receiver configuration.
//
// Configuration comes from a YAML file, with hardcoded defaults underneath
// and DIALCAST_* environment variable overrides on top. The loaded Config is
// passed by value into each component; nothing reads configuration from
// ambient state after startup.
package config
