// Package config holds the settings of a dorkscan run: what to search,
// how hard to hit the backend, where results go and how traffic leaves
// the machine. Defaults come from NewConfig, an optional .dorkscan YAML
// file overrides them, and command-line flags override both.
package config
