package dbus

import (
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

type exportKey struct {
	path  dbus.ObjectPath
	iface string
}

type emittedSignal struct {
	path dbus.ObjectPath
	name string
	args []any
}

// fakeConn stands in for *dbus.Conn. Exported method tables can be invoked
// directly from test goroutines, the way godbus would from its own.
type fakeConn struct {
	mu sync.Mutex

	exported map[exportKey]any

	exportErr    error
	failOnExport int // fail the Nth export (1-based) when exportErr is set; 0 = every export
	exportCalls  int

	requestReply dbus.RequestNameReply
	requestErr   error

	emitted  []emittedSignal
	emitErr  error
	sigCh    chan<- *dbus.Signal
	released bool
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		exported:     make(map[exportKey]any),
		requestReply: dbus.RequestNameReplyPrimaryOwner,
	}
}

func (c *fakeConn) dialer() Dialer {
	return func() (Conn, error) { return c, nil }
}

func (c *fakeConn) store(v any, path dbus.ObjectPath, iface string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := exportKey{path, iface}
	if v == nil {
		delete(c.exported, key)
		return nil
	}

	c.exportCalls++
	if c.exportErr != nil && (c.failOnExport == 0 || c.failOnExport == c.exportCalls) {
		return c.exportErr
	}
	c.exported[key] = v
	return nil
}

func (c *fakeConn) Export(v any, path dbus.ObjectPath, iface string) error {
	return c.store(v, path, iface)
}

func (c *fakeConn) ExportMethodTable(methods map[string]any, path dbus.ObjectPath, iface string) error {
	if methods == nil {
		return c.store(nil, path, iface)
	}
	return c.store(methods, path, iface)
}

func (c *fakeConn) RequestName(string, dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	return c.requestReply, c.requestErr
}

func (c *fakeConn) ReleaseName(string) (dbus.ReleaseNameReply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return dbus.ReleaseNameReplyReleased, nil
}

func (c *fakeConn) Emit(path dbus.ObjectPath, name string, values ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emitted = append(c.emitted, emittedSignal{path: path, name: name, args: values})
	return nil
}

func (c *fakeConn) Signal(ch chan<- *dbus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sigCh = ch
}

func (c *fakeConn) RemoveSignal(chan<- *dbus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sigCh = nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sendSignal(sig *dbus.Signal) {
	c.mu.Lock()
	ch := c.sigCh
	c.mu.Unlock()
	if ch != nil {
		ch <- sig
	}
}

func (c *fakeConn) exportedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exported)
}

func (c *fakeConn) isExported(path dbus.ObjectPath, iface string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.exported[exportKey{path, iface}]
	return ok
}

func (c *fakeConn) signals() []emittedSignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emittedSignal(nil), c.emitted...)
}

func (c *fakeConn) state() (released, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released, c.closed
}

// method returns an exported method so tests can call it like a bus client.
func (c *fakeConn) method(t *testing.T, path dbus.ObjectPath, iface, member string) any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	table, ok := c.exported[exportKey{path, iface}].(map[string]any)
	require.True(t, ok, "no method table at %s %s", path, iface)
	m, ok := table[member]
	require.True(t, ok, "no method %s at %s", member, path)
	return m
}
