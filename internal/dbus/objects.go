package dbus

import (
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/regbus/internal/registry"
)

// Integration point names, in the order the session assembles them.
const (
	LayoutCategory = "layout"
	ScreenCategory = "screen"
	ThemeCategory  = "theme"
)

// DefaultSetups is the fixed, ordered list of sub-tree setups.
var DefaultSetups = []Setup{SetupLayout, SetupScreen, SetupTheme}

// SetupLayout exposes the layout category.
func SetupLayout(f *Factory) *SubTree {
	return f.categoryObject(LayoutCategory)
}

// SetupScreen exposes the screen category.
func SetupScreen(f *Factory) *SubTree {
	return f.categoryObject(ScreenCategory)
}

// SetupTheme exposes the theme category, plus Reset which restores the
// configured theme defaults.
func SetupTheme(f *Factory) *SubTree {
	st := f.categoryObject(ThemeCategory)
	st.Methods["Reset"] = func() *dbus.Error {
		return f.do(st.Path, "Reset", func() *dbus.Error {
			cat, err := f.registry.GetOrCreate(ThemeCategory)
			if err != nil {
				return dbus.MakeFailedError(err)
			}
			cat.Clear()
			if f.cfg.ThemeDefaults != nil {
				for k, v := range f.cfg.ThemeDefaults() {
					cat.Set(k, v)
				}
			}
			f.emitChanged(ThemeCategory, "", "reset")
			return nil
		})
	}
	st.Introspect = append(st.Introspect, introspect.Method{Name: "Reset"})
	return st
}

// rootObject exposes the whole registry at the base path.
func (f *Factory) rootObject() *SubTree {
	path := f.cfg.BasePath

	methods := map[string]any{
		"List": func() ([]string, *dbus.Error) {
			names := []string{}
			err := f.do(path, "List", func() *dbus.Error {
				for n := range f.registry.Names() {
					names = append(names, n)
				}
				return nil
			})
			return names, err
		},
		"Get": func(category, key string) (string, *dbus.Error) {
			var out string
			err := f.do(path, "Get", func() *dbus.Error {
				v, derr := f.get(category, key)
				out = v
				return derr
			})
			return out, err
		},
		"Set": func(category, key, value string) *dbus.Error {
			return f.do(path, "Set", func() *dbus.Error {
				return f.set(category, key, value)
			})
		},
		"Remove": func(category, key string) (bool, *dbus.Error) {
			var removed bool
			err := f.do(path, "Remove", func() *dbus.Error {
				var derr *dbus.Error
				removed, derr = f.remove(category, key)
				return derr
			})
			return removed, err
		},
		"Keys": func(category string) ([]string, *dbus.Error) {
			var keys []string
			err := f.do(path, "Keys", func() *dbus.Error {
				keys = f.keys(category)
				return nil
			})
			return keys, err
		},
		"Dump": func() (string, *dbus.Error) {
			var out string
			err := f.do(path, "Dump", func() *dbus.Error {
				var derr *dbus.Error
				out, derr = encode(f.registry.Snapshot())
				return derr
			})
			return out, err
		},
		"Status": func() (string, int64, uint32, *dbus.Error) {
			var st Status
			err := f.do(path, "Status", func() *dbus.Error {
				if f.cfg.Status != nil {
					st = f.cfg.Status()
				} else {
					st = Status{State: StateRegistered.String(), Categories: f.registry.Len()}
				}
				return nil
			})
			return st.State, startedAt(st.StartedAt).Unix(), uint32(st.Categories), err
		},
	}

	return &SubTree{
		Name:      "",
		Path:      path,
		Interface: RegistryInterface(f.cfg.BusName),
		Methods:   methods,
		Signals: []introspect.Signal{
			{
				Name: "Changed",
				Args: []introspect.Arg{
					{Name: "category", Type: "s"},
					{Name: "key", Type: "s"},
					{Name: "op", Type: "s"},
				},
			},
		},
		Introspect: []introspect.Method{
			{Name: "List", Args: []introspect.Arg{{Name: "categories", Type: "as", Direction: "out"}}},
			{Name: "Get", Args: []introspect.Arg{
				{Name: "category", Type: "s", Direction: "in"},
				{Name: "key", Type: "s", Direction: "in"},
				{Name: "value", Type: "s", Direction: "out"},
			}},
			{Name: "Set", Args: []introspect.Arg{
				{Name: "category", Type: "s", Direction: "in"},
				{Name: "key", Type: "s", Direction: "in"},
				{Name: "value", Type: "s", Direction: "in"},
			}},
			{Name: "Remove", Args: []introspect.Arg{
				{Name: "category", Type: "s", Direction: "in"},
				{Name: "key", Type: "s", Direction: "in"},
				{Name: "removed", Type: "b", Direction: "out"},
			}},
			{Name: "Keys", Args: []introspect.Arg{
				{Name: "category", Type: "s", Direction: "in"},
				{Name: "keys", Type: "as", Direction: "out"},
			}},
			{Name: "Dump", Args: []introspect.Arg{{Name: "json", Type: "s", Direction: "out"}}},
			{Name: "Status", Args: []introspect.Arg{
				{Name: "state", Type: "s", Direction: "out"},
				{Name: "started_at", Type: "x", Direction: "out"},
				{Name: "categories", Type: "u", Direction: "out"},
			}},
		},
	}
}

// categoryObject exposes a single category at <base>/<name>.
func (f *Factory) categoryObject(name string) *SubTree {
	path := CategoryPath(f.cfg.BasePath, name)

	methods := map[string]any{
		"Get": func(key string) (string, *dbus.Error) {
			var out string
			err := f.do(path, "Get", func() *dbus.Error {
				v, derr := f.get(name, key)
				out = v
				return derr
			})
			return out, err
		},
		"Set": func(key, value string) *dbus.Error {
			return f.do(path, "Set", func() *dbus.Error {
				return f.set(name, key, value)
			})
		},
		"Remove": func(key string) (bool, *dbus.Error) {
			var removed bool
			err := f.do(path, "Remove", func() *dbus.Error {
				var derr *dbus.Error
				removed, derr = f.remove(name, key)
				return derr
			})
			return removed, err
		},
		"Keys": func() ([]string, *dbus.Error) {
			var keys []string
			err := f.do(path, "Keys", func() *dbus.Error {
				keys = f.keys(name)
				return nil
			})
			return keys, err
		},
		"Dump": func() (string, *dbus.Error) {
			var out string
			err := f.do(path, "Dump", func() *dbus.Error {
				cat, ok := f.registry.Get(name)
				if !ok {
					cat = registry.NewCategory(name)
				}
				var derr *dbus.Error
				out, derr = encode(cat.ToSerializable())
				return derr
			})
			return out, err
		},
	}

	return &SubTree{
		Name:      name,
		Path:      path,
		Interface: CategoryInterface(f.cfg.BusName),
		Methods:   methods,
		Introspect: []introspect.Method{
			{Name: "Get", Args: []introspect.Arg{
				{Name: "key", Type: "s", Direction: "in"},
				{Name: "value", Type: "s", Direction: "out"},
			}},
			{Name: "Set", Args: []introspect.Arg{
				{Name: "key", Type: "s", Direction: "in"},
				{Name: "value", Type: "s", Direction: "in"},
			}},
			{Name: "Remove", Args: []introspect.Arg{
				{Name: "key", Type: "s", Direction: "in"},
				{Name: "removed", Type: "b", Direction: "out"},
			}},
			{Name: "Keys", Args: []introspect.Arg{{Name: "keys", Type: "as", Direction: "out"}}},
			{Name: "Dump", Args: []introspect.Arg{{Name: "json", Type: "s", Direction: "out"}}},
		},
	}
}

func (f *Factory) get(category, key string) (string, *dbus.Error) {
	cat, ok := f.registry.Get(category)
	if !ok {
		return "", f.notFound("no category %q", category)
	}
	v, ok := cat.Get(key)
	if !ok {
		return "", f.notFound("no key %q in category %q", key, category)
	}
	return encode(v)
}

// encode renders v as the JSON string carried over the bus.
func encode(v registry.Value) (string, *dbus.Error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

func (f *Factory) set(category, key, value string) *dbus.Error {
	v, err := registry.ParseJSON(value)
	if err != nil {
		return f.invalidArgs("value for %q is not valid JSON: %v", key, err)
	}

	change, err := registry.Insert(category, key, v).Apply(f.registry)
	if err != nil {
		return f.invalidArgs("%v", err)
	}
	if change.Changed {
		f.emitChanged(change.Category, change.Key, string(change.Op))
	}
	return nil
}

func (f *Factory) remove(category, key string) (bool, *dbus.Error) {
	change, err := registry.RemoveKey(category, key).Apply(f.registry)
	if err != nil {
		return false, f.invalidArgs("%v", err)
	}
	if change.Changed {
		f.emitChanged(change.Category, change.Key, string(change.Op))
	}
	return change.Changed, nil
}

func (f *Factory) keys(category string) []string {
	cat, ok := f.registry.Get(category)
	if !ok {
		return []string{}
	}
	return cat.Keys()
}

// startedAt returns the zero time as the Unix epoch rather than year 1.
func startedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0)
	}
	return t
}
