// Package config loads the console's YAML configuration.
//
// Sections: instance, api, transport, scheduler, series, views, database,
// poller, server and logging. Values may reference the environment as
// ${VAR} or ${VAR:-fallback}; unknown keys are rejected. Unset fields take
// the defaults in defaults.go, and Validate checks cross-field constraints
// such as reconnect_max >= reconnect_min.
package config
