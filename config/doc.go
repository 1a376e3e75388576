// Package config loads the server configuration from a YAML file with
// ${VAR_NAME} environment variable expansion.
package config
