// Package config loads the application configuration and declarative
// workflow definitions from YAML or JSON files, layered over sensible
// defaults and selected environment overrides. It also knows how to build
// the concrete logger and agents the configuration declares.
package config
