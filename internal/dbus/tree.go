package dbus

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/regbus/internal/registry"
)

// Setup builds one named sub-tree from the shared factory.
type Setup func(f *Factory) *SubTree

// SubTree is one exported object: its path, interface and method table.
type SubTree struct {
	Name      string
	Path      dbus.ObjectPath
	Interface string
	Methods   map[string]any
	Signals   []introspect.Signal
	// Introspect describes Methods for org.freedesktop.DBus.Introspectable.
	Introspect []introspect.Method
}

// Call is a bus method call waiting to be serviced by the worker.
type Call struct {
	Path   dbus.ObjectPath
	Member string

	fn    func() *dbus.Error
	reply chan *dbus.Error
}

// FactoryConfig configures the handlers built by a Factory.
type FactoryConfig struct {
	BusName       string
	BasePath      dbus.ObjectPath
	ThemeDefaults func() map[string]registry.Value
	Status        func() Status
	Logger        *slog.Logger
}

// Factory is shared by every Setup. Handlers it builds run their body on the
// session worker: godbus invokes the exported method on its own goroutine,
// which hands the body to the worker through Calls and waits for the reply.
type Factory struct {
	conn     Conn
	registry *registry.Registry
	cfg      FactoryConfig
	logger   *slog.Logger

	calls    chan *Call
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewFactory creates a Factory whose handlers read and write reg and emit
// signals on conn.
func NewFactory(conn Conn, reg *registry.Registry, cfg FactoryConfig) *Factory {
	if cfg.BusName == "" {
		cfg.BusName = DefaultBusName
	}
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		conn:     conn,
		registry: reg,
		cfg:      cfg,
		logger:   logger,
		calls:    make(chan *Call),
		stopped:  make(chan struct{}),
	}
}

// Calls is the event source the worker pulls method calls from.
func (f *Factory) Calls() <-chan *Call {
	return f.calls
}

// Registry returns the registry the handlers operate on.
func (f *Factory) Registry() *registry.Registry {
	return f.registry
}

// Stop fails pending and future calls with ErrStopped.
func (f *Factory) Stop() {
	f.stopOnce.Do(func() { close(f.stopped) })
}

// do runs fn on the worker and returns its result.
func (f *Factory) do(path dbus.ObjectPath, member string, fn func() *dbus.Error) *dbus.Error {
	c := &Call{
		Path:   path,
		Member: member,
		fn:     fn,
		reply:  make(chan *dbus.Error, 1),
	}

	select {
	case f.calls <- c:
	case <-f.stopped:
		return f.stoppedError()
	}

	return f.await(c)
}

// await waits for the reply to a call the worker accepted. A reply that is
// already there wins over a concurrent stop.
func (f *Factory) await(c *Call) *dbus.Error {
	select {
	case err := <-c.reply:
		return err
	case <-f.stopped:
		select {
		case err := <-c.reply:
			return err
		default:
			return f.stoppedError()
		}
	}
}

func (f *Factory) stoppedError() *dbus.Error {
	return newBusError(f.cfg.BusName, "Stopped", "%s", ErrStopped.Error())
}

func (f *Factory) invalidArgs(format string, args ...any) *dbus.Error {
	return newBusError(f.cfg.BusName, "InvalidArgs", format, args...)
}

func (f *Factory) notFound(format string, args ...any) *dbus.Error {
	return newBusError(f.cfg.BusName, "NotFound", format, args...)
}

// Tree assembles the root object and the sub-trees built by setups, in order.
func (f *Factory) Tree(setups ...Setup) *Tree {
	t := &Tree{
		root:   f.rootObject(),
		logger: f.logger,
		wake:   make(chan struct{}, 1),
	}
	for _, setup := range setups {
		t.subtrees = append(t.subtrees, setup(f))
	}
	return t
}

// Tree is the composed set of exported objects. Only the registered flag
// changes after assembly.
type Tree struct {
	root     *SubTree
	subtrees []*SubTree
	logger   *slog.Logger
	wake     chan struct{}

	registered bool
}

// Wake makes the next Run iteration yield an idle result without waiting.
// Repeated calls before that iteration collapse into one.
func (t *Tree) Wake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Objects returns the root followed by every sub-tree.
func (t *Tree) Objects() []*SubTree {
	return append([]*SubTree{t.root}, t.subtrees...)
}

// Registered reports whether the tree is currently exported.
func (t *Tree) Registered() bool {
	return t.registered
}

// SetRegistered exports every object on conn, or withdraws them.
// A failed registration withdraws whatever was already exported.
func (t *Tree) SetRegistered(conn Conn, registered bool) error {
	if registered == t.registered {
		return nil
	}

	if !registered {
		err := t.unexport(conn, t.Objects())
		t.registered = false
		return err
	}

	var done []*SubTree
	for _, st := range t.Objects() {
		if err := t.export(conn, st); err != nil {
			if uerr := t.unexport(conn, done); uerr != nil {
				t.logger.Warn("failed to withdraw partially exported tree", "error", uerr)
			}
			return fmt.Errorf("failed to export %s: %w", st.Path, err)
		}
		done = append(done, st)
	}

	t.registered = true
	return nil
}

func (t *Tree) export(conn Conn, st *SubTree) error {
	if err := conn.ExportMethodTable(st.Methods, st.Path, st.Interface); err != nil {
		return err
	}

	node := &introspect.Node{
		Name: string(st.Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    st.Interface,
				Methods: st.Introspect,
				Signals: st.Signals,
			},
		},
	}
	if st == t.root {
		for _, child := range t.subtrees {
			node.Children = append(node.Children, introspect.Node{Name: child.Name})
		}
	}

	if err := conn.Export(introspect.NewIntrospectable(node), st.Path, introspectableInterface); err != nil {
		_ = conn.Export(nil, st.Path, st.Interface)
		return fmt.Errorf("failed to export introspectable: %w", err)
	}
	return nil
}

func (t *Tree) unexport(conn Conn, objects []*SubTree) error {
	var errs []error
	for _, st := range objects {
		if err := conn.Export(nil, st.Path, st.Interface); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.Path, err))
		}
		if err := conn.Export(nil, st.Path, introspectableInterface); err != nil {
			errs = append(errs, fmt.Errorf("%s introspectable: %w", st.Path, err))
		}
	}
	return errors.Join(errs...)
}

// Run returns a new sequence of serviced bus events. Each element is one
// method call pulled from calls, one signal pulled from signals, or an idle
// result when wait elapsed first or Wake was called. The sequence is infinite; it ends when the
// consumer stops ranging or ctx is done. Calls are serviced on the goroutine
// that ranges over the sequence.
func (t *Tree) Run(ctx context.Context, calls <-chan *Call, signals <-chan *dbus.Signal, wait time.Duration) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		for {
			var res Result
			select {
			case <-ctx.Done():
				return
			case c := <-calls:
				res = t.service(c)
			case sig, ok := <-signals:
				if !ok {
					// Signal source went away; keep polling calls only
					signals = nil
					continue
				}
				res = Result{Kind: ResultSignal, Path: sig.Path, Member: sig.Name, Signal: sig}
			case <-t.wake:
				res = Result{Kind: ResultIdle}
			case <-timer.C:
				res = Result{Kind: ResultIdle}
			}

			if !yield(res) {
				return
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
		}
	}
}

// service runs a call body and delivers its reply. A panicking handler is
// reported as a failed call.
func (t *Tree) service(c *Call) (res Result) {
	res = Result{Kind: ResultCall, Path: c.Path, Member: c.Member}

	defer func() {
		if r := recover(); r != nil {
			err := dbus.MakeFailedError(fmt.Errorf("handler panic: %v", r))
			c.reply <- err
			res.Err = err
		}
	}()

	if err := c.fn(); err != nil {
		c.reply <- err
		res.Err = err
		return res
	}
	c.reply <- nil
	return res
}
