// Package dbus exposes the category registry on the D-Bus session bus.
// A Session owns a private bus connection and runs the single service loop
// that answers method calls on the exported object tree and applies commands
// sent by the rest of the process.
package dbus
