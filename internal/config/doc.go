// Package config provides configuration loading and validation for the relay
// and monitor processes. Files are YAML; a fixed set of environment variables
// overrides individual fields after the file is parsed.
package config
