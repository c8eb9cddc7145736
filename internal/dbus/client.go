package dbus

import (
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/regbus/internal/registry"
)

// Client calls a running regbus daemon over the session bus.
type Client struct {
	conn     *dbus.Conn
	obj      dbus.BusObject
	busName  string
	basePath dbus.ObjectPath
}

// Dial connects to the session bus and targets busName at basePath.
func Dial(busName, basePath string) (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	path := dbus.ObjectPath(basePath)
	return &Client{
		conn:     conn,
		obj:      conn.Object(busName, path),
		busName:  busName,
		basePath: path,
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) method(name string) string {
	return RegistryInterface(c.busName) + "." + name
}

// List returns the category names.
func (c *Client) List() ([]string, error) {
	var names []string
	if err := c.obj.Call(c.method("List"), 0).Store(&names); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return names, nil
}

// Get returns a single value.
func (c *Client) Get(category, key string) (registry.Value, error) {
	var raw string
	if err := c.obj.Call(c.method("Get"), 0, category, key).Store(&raw); err != nil {
		return registry.Value{}, fmt.Errorf("Get: %w", err)
	}
	return registry.ParseJSON(raw)
}

// Set stores a value, creating the category if needed.
func (c *Client) Set(category, key string, v registry.Value) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	if err := c.obj.Call(c.method("Set"), 0, category, key, string(data)).Err; err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}

// Remove deletes a key and reports whether it existed.
func (c *Client) Remove(category, key string) (bool, error) {
	var removed bool
	if err := c.obj.Call(c.method("Remove"), 0, category, key).Store(&removed); err != nil {
		return false, fmt.Errorf("Remove: %w", err)
	}
	return removed, nil
}

// Keys returns the keys of a category.
func (c *Client) Keys(category string) ([]string, error) {
	var keys []string
	if err := c.obj.Call(c.method("Keys"), 0, category).Store(&keys); err != nil {
		return nil, fmt.Errorf("Keys: %w", err)
	}
	return keys, nil
}

// Dump returns the whole registry as {category: data}.
func (c *Client) Dump() (registry.Value, error) {
	var raw string
	if err := c.obj.Call(c.method("Dump"), 0).Store(&raw); err != nil {
		return registry.Value{}, fmt.Errorf("Dump: %w", err)
	}
	return registry.ParseJSON(raw)
}

// Status returns the daemon's session status.
func (c *Client) Status() (Status, error) {
	var (
		state      string
		startedAt  int64
		categories uint32
	)
	if err := c.obj.Call(c.method("Status"), 0).Store(&state, &startedAt, &categories); err != nil {
		return Status{}, fmt.Errorf("Status: %w", err)
	}
	return Status{
		State:      state,
		StartedAt:  time.Unix(startedAt, 0),
		Categories: int(categories),
	}, nil
}

// ResetTheme restores the daemon's configured theme defaults.
func (c *Client) ResetTheme() error {
	obj := c.conn.Object(c.busName, CategoryPath(c.basePath, ThemeCategory))
	if err := obj.Call(CategoryInterface(c.busName)+".Reset", 0).Err; err != nil {
		return fmt.Errorf("Reset: %w", err)
	}
	return nil
}
