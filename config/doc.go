// Package config loads runtime configuration from environment variables and
// optional flag bindings. A provider binding is enabled iff its API key is
// present; startup fails only when no provider has a credential.
package config
