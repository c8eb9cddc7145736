// Package daemon provides the main orchestration for regbusd.
// It seeds the registry from configuration, runs the bus session,
// serves metrics and applies configuration hot-reloads as commands.
package daemon
