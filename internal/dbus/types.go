package dbus

import (
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	// DefaultBusName is the well-known name requested on the session bus.
	DefaultBusName = "org.example.regbus"
	// DefaultBasePath is the root object path of the exported tree.
	DefaultBasePath = "/org/example/regbus"
	// DefaultPollInterval bounds each wait for bus events.
	DefaultPollInterval = 1000 * time.Millisecond
	// DefaultDrainLimit caps the commands applied per loop iteration.
	DefaultDrainLimit = 256

	introspectableInterface = "org.freedesktop.DBus.Introspectable"
)

// RegistryInterface returns the interface name of the root object.
func RegistryInterface(busName string) string {
	return busName + ".Registry"
}

// CategoryInterface returns the interface name of category objects.
func CategoryInterface(busName string) string {
	return busName + ".Category"
}

// CategoryPath returns the object path of a named sub-tree.
func CategoryPath(basePath dbus.ObjectPath, name string) dbus.ObjectPath {
	return dbus.ObjectPath(string(basePath) + "/" + name)
}

// State is the lifecycle state of a Session.
type State int

const (
	// StateCreated is the zero state before a connection exists.
	StateCreated State = iota
	// StateConnected means the bus name was requested but the tree is not exported.
	StateConnected
	// StateRegistered means the tree is exported and the loop is running.
	StateRegistered
	// StateStopped is terminal.
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status is returned by the root object's Status method.
type Status struct {
	State      string
	StartedAt  time.Time
	Categories int
}

// ResultKind says what a loop iteration serviced.
type ResultKind int

const (
	// ResultIdle means the poll interval elapsed with no bus event.
	ResultIdle ResultKind = iota
	// ResultCall is a serviced method call.
	ResultCall
	// ResultSignal is a serviced bus signal.
	ResultSignal
)

// String returns the lowercase kind name.
func (k ResultKind) String() string {
	switch k {
	case ResultIdle:
		return "idle"
	case ResultCall:
		return "call"
	case ResultSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// Result is one element of the sequence produced by Tree.Run.
type Result struct {
	Kind   ResultKind
	Path   dbus.ObjectPath
	Member string
	Signal *dbus.Signal
	Err    error
}
