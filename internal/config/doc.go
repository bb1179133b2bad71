// Package config loads, normalizes, and validates dualbuild configuration.
//
// It supplies repository defaults, resolves every path against the source
// root, reads dualbuild.toml, and determines the build target from the
// --target flag, the DUALBUILD_TARGET environment variable, or the source
// tree's .env file. The state directory defaults to ~/.dualbuild and can be
// moved with DUALBUILD_HOME.
//
// This is the only package that reads ambient process state; everything
// downstream receives resolved values through constructors.
package config
