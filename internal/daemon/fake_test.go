package daemon

import (
	"sync"
	"testing"

	godbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/regbus/internal/dbus"
)

type exportKey struct {
	path  godbus.ObjectPath
	iface string
}

// busConn is an in-memory dbus.Conn. Exported method tables are called
// from test goroutines the way godbus calls them from its own.
type busConn struct {
	mu       sync.Mutex
	exported map[exportKey]map[string]any
	emitted  int
	released bool
	closed   bool
}

func newBusConn() *busConn {
	return &busConn{exported: make(map[exportKey]map[string]any)}
}

func (c *busConn) dialer() dbus.Dialer {
	return func() (dbus.Conn, error) { return c, nil }
}

func (c *busConn) Export(v any, path godbus.ObjectPath, iface string) error {
	if v == nil {
		c.mu.Lock()
		delete(c.exported, exportKey{path, iface})
		c.mu.Unlock()
	}
	return nil
}

func (c *busConn) ExportMethodTable(methods map[string]any, path godbus.ObjectPath, iface string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if methods == nil {
		delete(c.exported, exportKey{path, iface})
		return nil
	}
	c.exported[exportKey{path, iface}] = methods
	return nil
}

func (c *busConn) RequestName(string, godbus.RequestNameFlags) (godbus.RequestNameReply, error) {
	return godbus.RequestNameReplyPrimaryOwner, nil
}

func (c *busConn) ReleaseName(string) (godbus.ReleaseNameReply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return godbus.ReleaseNameReplyReleased, nil
}

func (c *busConn) Emit(godbus.ObjectPath, string, ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted++
	return nil
}

func (c *busConn) Signal(chan<- *godbus.Signal)       {}
func (c *busConn) RemoveSignal(chan<- *godbus.Signal) {}

func (c *busConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *busConn) isExported(path godbus.ObjectPath, iface string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.exported[exportKey{path, iface}]
	return ok
}

func (c *busConn) exportedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exported)
}

func (c *busConn) signals() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitted
}

func (c *busConn) state() (released, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released, c.closed
}

// method returns an exported method so tests can call it like a bus client.
func (c *busConn) method(t *testing.T, path godbus.ObjectPath, iface, member string) any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	table, ok := c.exported[exportKey{path, iface}]
	require.True(t, ok, "no method table at %s %s", path, iface)
	m, ok := table[member]
	require.True(t, ok, "no method %s at %s", member, path)
	return m
}
