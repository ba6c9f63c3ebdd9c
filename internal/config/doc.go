// Package config loads server configuration from YAML.
//
// Files support ${VAR_NAME} environment expansion and Go duration strings
// for TTL fields. Validation runs at load time so a bad config fails the
// process before anything binds a port.
package config
