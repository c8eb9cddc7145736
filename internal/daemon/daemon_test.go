package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/regbus/internal/config"
	"github.com/jmylchreest/regbus/internal/dbus"
	"github.com/jmylchreest/regbus/internal/registry"
)

var errNoBus = errors.New("no session bus")

func failingDialer() (dbus.Conn, error) {
	return nil, errNoBus
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Bus.CommandBuffer = 2
	cfg.Seed = map[string]map[string]any{
		"screen": {"count": int64(2)},
		"theme":  {"border": int64(4), "font": "mono"},
	}
	return cfg
}

func TestDaemon_Run_SessionFailure(t *testing.T) {
	d := New(testConfig(),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithSessionOptions(dbus.WithDialer(failingDialer)),
	)

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoBus)
	assert.Contains(t, err.Error(), "failed to start session")

	// Seeds are applied before the session connects
	assert.Equal(t, 2, d.Registry().Len())
	theme, ok := d.Registry().Get("theme")
	require.True(t, ok)
	assert.Equal(t, []string{"border", "font"}, theme.Keys())
}

func TestDaemon_Submit(t *testing.T) {
	d := New(testConfig(), WithLogger(slog.New(slog.DiscardHandler)))

	ctx := context.Background()
	require.NoError(t, d.Submit(ctx,
		registry.Insert("layout", "mode", registry.String("tiled")),
		registry.Drop("layout"),
	))

	// Buffer is full, so the next submit waits on ctx
	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := d.Submit(ctx, registry.Drop("screen"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDaemon_Reload(t *testing.T) {
	level := new(slog.LevelVar)
	d := New(testConfig(),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithLevelVar(level),
	)

	next := testConfig()
	next.Log.Level = "debug"
	next.Seed = map[string]map[string]any{
		"screen": {"count": int64(3)},
	}

	d.reload(context.Background(), d.Config(), next)

	assert.Equal(t, slog.LevelDebug, level.Level())
	assert.Same(t, next, d.Config())

	var got []string
	for range 2 {
		cmd := <-d.commands
		got = append(got, string(cmd.Op)+":"+cmd.Category+":"+cmd.Key)
	}
	assert.Equal(t, []string{"drop:theme:", "insert:screen:count"}, got)
}

func TestDaemon_Metrics(t *testing.T) {
	d := New(testConfig(), WithLogger(slog.New(slog.DiscardHandler)))

	families, err := d.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

// runDaemon starts d.Run in the background and waits for the object tree.
func runDaemon(t *testing.T, d *Daemon, conn *busConn) (cancel func() error) {
	t.Helper()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	cfg := d.Config()
	root := godbus.ObjectPath(cfg.Bus.Path)
	require.Eventually(t, func() bool {
		return conn.isExported(root, dbus.RegistryInterface(cfg.Bus.Name))
	}, 2*time.Second, 5*time.Millisecond)

	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("daemon did not stop")
			return nil
		}
	}
}

func valueOf(d *Daemon, category, key string) (registry.Value, bool) {
	cat, ok := d.Registry().Get(category)
	if !ok {
		return registry.Value{}, false
	}
	return cat.Get(key)
}

func TestDaemon_Run(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regbusd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[bus]
poll_interval = "20ms"

[seed.screen]
count = 2
`), 0600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	conn := newBusConn()
	d := New(cfg,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithConfigWatch(path),
		WithSessionOptions(dbus.WithDialer(conn.dialer())),
	)
	stop := runDaemon(t, d, conn)

	root := godbus.ObjectPath(cfg.Bus.Path)
	for _, name := range []string{dbus.LayoutCategory, dbus.ScreenCategory, dbus.ThemeCategory} {
		assert.True(t, conn.isExported(dbus.CategoryPath(root, name), dbus.CategoryInterface(cfg.Bus.Name)), name)
	}

	v, ok := valueOf(d, "screen", "count")
	require.True(t, ok)
	assert.True(t, v.Equal(registry.Int(2)))

	// Submitted commands reach the registry through the session worker
	require.NoError(t, d.Submit(context.Background(),
		registry.Insert("layout", "mode", registry.String("tiled")),
	))
	assert.Eventually(t, func() bool {
		v, ok := valueOf(d, "layout", "mode")
		return ok && v.Equal(registry.String("tiled"))
	}, 2*time.Second, 5*time.Millisecond)

	// Bus calls are serviced by the same worker
	dump := conn.method(t, root, dbus.RegistryInterface(cfg.Bus.Name), "Dump").(func() (string, *godbus.Error))
	out, dbusErr := dump()
	require.Nil(t, dbusErr)
	assert.JSONEq(t, `{"layout":{"mode":"tiled"},"screen":{"count":2}}`, out)

	// Editing the config file turns seed changes into commands
	require.NoError(t, os.WriteFile(path, []byte(`
[bus]
poll_interval = "20ms"

[seed.screen]
count = 3
`), 0600))
	assert.Eventually(t, func() bool {
		v, ok := valueOf(d, "screen", "count")
		return ok && v.Equal(registry.Int(3))
	}, 2*time.Second, 10*time.Millisecond)
	assert.Positive(t, conn.signals())

	require.NoError(t, stop())

	assert.Zero(t, conn.exportedCount(), "object tree withdrawn")
	released, closed := conn.state()
	assert.True(t, released)
	assert.True(t, closed)

	_, err = d.Registry().GetOrCreate("late")
	assert.ErrorIs(t, err, registry.ErrRegistryClosed)
}

func TestDaemon_ThemeResetAfterReload(t *testing.T) {
	cfg := testConfig()
	cfg.Bus.PollInterval = config.Duration(20 * time.Millisecond)

	conn := newBusConn()
	d := New(cfg,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithSessionOptions(dbus.WithDialer(conn.dialer())),
	)
	stop := runDaemon(t, d, conn)
	defer func() { assert.NoError(t, stop()) }()

	next := testConfig()
	next.Seed["theme"] = map[string]any{"border": int64(9), "font": "sans"}
	d.reload(context.Background(), d.Config(), next)
	require.Same(t, next, d.Config())

	require.Eventually(t, func() bool {
		v, ok := valueOf(d, "theme", "border")
		return ok && v.Equal(registry.Int(9))
	}, 2*time.Second, 5*time.Millisecond)

	// A runtime change that Reset must undo
	require.NoError(t, d.Submit(context.Background(),
		registry.Insert("theme", "border", registry.Int(1)),
		registry.Insert("theme", "accent", registry.String("red")),
	))
	require.Eventually(t, func() bool {
		v, ok := valueOf(d, "theme", "accent")
		return ok && v.Equal(registry.String("red"))
	}, 2*time.Second, 5*time.Millisecond)

	root := godbus.ObjectPath(cfg.Bus.Path)
	reset := conn.method(t, dbus.CategoryPath(root, dbus.ThemeCategory),
		dbus.CategoryInterface(cfg.Bus.Name), "Reset").(func() *godbus.Error)
	require.Nil(t, reset())

	theme, ok := d.Registry().Get("theme")
	require.True(t, ok)
	assert.Equal(t, []string{"border", "font"}, theme.Keys())

	border, _ := theme.Get("border")
	font, _ := theme.Get("font")
	assert.True(t, border.Equal(registry.Int(9)), "border = %s", border.JSON())
	assert.True(t, font.Equal(registry.String("sans")), "font = %s", font.JSON())
}
