// Package config loads bulkstore settings from defaults, an optional
// configuration file and BULKSTORE_* environment variables.
package config
