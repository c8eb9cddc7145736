package dbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/regbus/internal/registry"
)

const (
	nameLostSignal     = "org.freedesktop.DBus.NameLost"
	nameAcquiredSignal = "org.freedesktop.DBus.NameAcquired"
)

type options struct {
	busName       string
	basePath      dbus.ObjectPath
	pollInterval  time.Duration
	drainLimit    int
	logger        *slog.Logger
	metrics       *Metrics
	themeDefaults func() map[string]registry.Value
	dial          Dialer
	setups        []Setup
}

// Option configures a Session.
type Option func(*options)

// WithBusName sets the well-known name to request.
func WithBusName(name string) Option {
	return func(o *options) { o.busName = name }
}

// WithBasePath sets the root object path.
func WithBasePath(path string) Option {
	return func(o *options) { o.basePath = dbus.ObjectPath(path) }
}

// WithPollInterval bounds each wait for bus events.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithDrainLimit caps how many commands are applied per loop iteration.
func WithDrainLimit(n int) Option {
	return func(o *options) { o.drainLimit = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records loop activity in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithThemeDefaults sets fixed values for theme.Reset to restore.
func WithThemeDefaults(defaults map[string]registry.Value) Option {
	return func(o *options) {
		o.themeDefaults = func() map[string]registry.Value { return defaults }
	}
}

// WithThemeDefaultsFunc asks fn for the values to restore on every
// theme.Reset. fn runs on the session worker.
func WithThemeDefaultsFunc(fn func() map[string]registry.Value) Option {
	return func(o *options) { o.themeDefaults = fn }
}

// WithDialer replaces DialSessionBus.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dial = d }
}

// WithSetups replaces DefaultSetups.
func WithSetups(setups ...Setup) Option {
	return func(o *options) { o.setups = setups }
}

// Session owns the bus connection, the exported tree and the receiving end
// of the command channel. Run must be called from exactly one goroutine,
// which becomes the only user of the connection.
type Session struct {
	opts     options
	logger   *slog.Logger
	conn     Conn
	registry *registry.Registry
	factory  *Factory
	tree     *Tree
	commands <-chan registry.Command
	signals  chan *dbus.Signal

	mu        sync.RWMutex
	state     State
	startedAt time.Time
	ownsName  bool
}

// NewSession connects to the bus, requests the well-known name with
// replacement allowed, and assembles the object tree. An error means the
// bus is unusable and the process should not continue.
func NewSession(commands <-chan registry.Command, reg *registry.Registry, opts ...Option) (*Session, error) {
	o := options{
		busName:      DefaultBusName,
		basePath:     DefaultBasePath,
		pollInterval: DefaultPollInterval,
		drainLimit:   DefaultDrainLimit,
		dial:         DialSessionBus,
		setups:       DefaultSetups,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}
	if o.drainLimit <= 0 {
		o.drainLimit = DefaultDrainLimit
	}
	if !o.basePath.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", o.basePath)
	}

	conn, err := o.dial()
	if err != nil {
		return nil, err
	}

	reply, err := conn.RequestName(o.busName, dbus.NameFlagAllowReplacement)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to request bus name %s: %w", o.busName, err)
	}

	s := &Session{
		opts:     o,
		logger:   o.logger,
		conn:     conn,
		registry: reg,
		commands: commands,
		signals:  make(chan *dbus.Signal, 16),
		state:    StateConnected,
	}

	switch reply {
	case dbus.RequestNameReplyPrimaryOwner, dbus.RequestNameReplyAlreadyOwner:
		s.ownsName = true
	default:
		// Another process holds the name; we stay reachable by unique name only
		s.logger.Warn("bus name owned by another process, queued", "name", o.busName, "reply", reply)
	}

	s.factory = NewFactory(conn, reg, FactoryConfig{
		BusName:       o.busName,
		BasePath:      o.basePath,
		ThemeDefaults: o.themeDefaults,
		Status:        s.Status,
		Logger:        o.logger,
	})
	s.tree = s.factory.Tree(o.setups...)

	conn.Signal(s.signals)

	s.logger.Info("D-Bus session connected", "name", o.busName, "path", o.basePath, "owner", s.ownsName)
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OwnsName reports whether this process currently holds the well-known name.
func (s *Session) OwnsName() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownsName
}

// Status reports the session state for the root object's Status method.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		State:      s.state.String(),
		StartedAt:  s.startedAt,
		Categories: s.registry.Len(),
	}
}

// Tree returns the exported object tree.
func (s *Session) Tree() *Tree {
	return s.tree
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if state == StateRegistered {
		s.startedAt = time.Now()
	}
}

// Run exports the tree and services the bus and the command channel until
// ctx is done or the channel is closed. A registration failure is returned
// before any loop iteration; the session is stopped either way when Run
// returns.
func (s *Session) Run(ctx context.Context) error {
	if st := s.State(); st != StateConnected {
		return fmt.Errorf("cannot run session in state %s", st)
	}

	if err := s.tree.SetRegistered(s.conn, true); err != nil {
		s.close()
		return fmt.Errorf("failed to register object tree: %w", err)
	}
	s.setState(StateRegistered)
	defer s.shutdown()

	s.logger.Info("D-Bus service loop started", "interval", s.opts.pollInterval)

	// Commands queued before registration are applied on the first iteration
	s.tree.Wake()

	for res := range s.tree.Run(ctx, s.factory.Calls(), s.signals, s.opts.pollInterval) {
		s.handleResult(res)

		open, more := s.drain()
		if !open {
			s.logger.Info("command channel closed, stopping service loop")
			break
		}
		if more {
			s.tree.Wake()
		}
	}

	if ctx.Err() != nil {
		s.logger.Info("service loop cancelled", "reason", ctx.Err())
	}
	return nil
}

// handleResult reports a serviced event. Failures never stop the loop.
func (s *Session) handleResult(res Result) {
	s.opts.metrics.observeResult(res)

	switch res.Kind {
	case ResultCall:
		if res.Err != nil {
			s.logger.Warn("bus call failed", "path", res.Path, "member", res.Member, "error", res.Err)
		} else {
			s.logger.Debug("bus call serviced", "path", res.Path, "member", res.Member)
		}
	case ResultSignal:
		s.handleSignal(res.Signal)
	}
}

func (s *Session) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) == 0 {
		return
	}
	name, ok := sig.Body[0].(string)
	if !ok || name != s.opts.busName {
		return
	}

	switch sig.Name {
	case nameLostSignal:
		s.mu.Lock()
		s.ownsName = false
		s.mu.Unlock()
		s.logger.Warn("lost bus name to another process, continuing without it", "name", name)
	case nameAcquiredSignal:
		s.mu.Lock()
		s.ownsName = true
		s.mu.Unlock()
		s.logger.Info("acquired bus name", "name", name)
	}
}

// drain applies the commands already queued, without waiting for more.
// open is false once the channel is closed; more is true when the drain
// limit was reached and commands may still be waiting.
func (s *Session) drain() (open, more bool) {
	for range s.opts.drainLimit {
		select {
		case cmd, ok := <-s.commands:
			if !ok {
				return false, false
			}
			s.apply(cmd)
		default:
			return true, false
		}
	}
	return true, true
}

func (s *Session) apply(cmd registry.Command) {
	change, err := cmd.Apply(s.registry)
	s.opts.metrics.observeCommand(cmd.Op, err)
	if err != nil {
		s.logger.Warn("rejected command",
			"id", cmd.ID,
			"category", cmd.Category,
			"op", cmd.Op,
			"key", cmd.Key,
			"error", err,
		)
		return
	}

	s.logger.Debug("applied command", "id", cmd.ID, "category", cmd.Category, "op", cmd.Op, "key", cmd.Key)

	if change.Changed {
		s.factory.emitChanged(change.Category, change.Key, string(change.Op))
	}
}

// shutdown withdraws the tree, then releases the name and the connection.
func (s *Session) shutdown() {
	s.factory.Stop()

	if err := s.tree.SetRegistered(s.conn, false); err != nil {
		s.logger.Warn("failed to unregister object tree", "error", err)
	}

	s.close()
	s.logger.Info("D-Bus session stopped")
}

func (s *Session) close() {
	s.factory.Stop()
	s.conn.RemoveSignal(s.signals)

	if _, err := s.conn.ReleaseName(s.opts.busName); err != nil {
		s.logger.Warn("failed to release bus name", "name", s.opts.busName, "error", err)
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("failed to close bus connection", "error", err)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.ownsName = false
	s.mu.Unlock()
}
