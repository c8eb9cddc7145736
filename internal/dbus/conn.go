package dbus

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Conn is the subset of *dbus.Conn the session uses. It is owned by the
// session worker and must not be used from other goroutines.
type Conn interface {
	Export(v any, path dbus.ObjectPath, iface string) error
	ExportMethodTable(methods map[string]any, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
	Emit(path dbus.ObjectPath, name string, values ...any) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// Dialer opens the connection a Session will own.
type Dialer func() (Conn, error)

// DialSessionBus opens a private, unshared connection to the session bus.
func DialSessionBus() (Conn, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to authenticate to session bus: %w", err)
	}

	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send hello to session bus: %w", err)
	}

	return conn, nil
}

// ErrStopped is returned to callers whose request arrives after the session stopped.
var ErrStopped = errors.New("session stopped")

func errorName(busName, suffix string) string {
	return busName + ".Error." + suffix
}

func newBusError(busName, suffix, format string, args ...any) *dbus.Error {
	return dbus.NewError(errorName(busName, suffix), []any{fmt.Sprintf(format, args...)})
}
