// Package config loads quickflux configuration.
//
// Settings come from three layers, each overriding the one before:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file, chosen by extension
//  3. QUICKFLUX_ environment variables
//
// Setting paths are camelCase and dotted, e.g. dispatcher.recoverFromPanic.
// The matching environment variable is QUICKFLUX_DISPATCHER_RECOVER_FROM_PANIC.
//
// Example quickflux.toml:
//
//	[logging]
//	level = "debug"
//
//	[dispatcher]
//	recoverFromPanic = true
//	enableMetrics = true
//
//	[script]
//	paths = ["stores.lua"]
//	timeout = "2s"
//
//	[metrics]
//	addr = ":9090"
package config
