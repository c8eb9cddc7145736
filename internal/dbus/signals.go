package dbus

import (
	"fmt"
)

// EmitChanged emits the Changed signal on the root object.
// It must be called on the session worker.
func (f *Factory) EmitChanged(category, key, op string) error {
	if f.conn == nil {
		return fmt.Errorf("not connected to D-Bus")
	}

	name := RegistryInterface(f.cfg.BusName) + ".Changed"
	if err := f.conn.Emit(f.cfg.BasePath, name, category, key, op); err != nil {
		return fmt.Errorf("failed to emit Changed signal: %w", err)
	}

	f.logger.Debug("emitted Changed signal", "category", category, "key", key, "op", op)
	return nil
}

// emitChanged emits Changed and logs failures. Losing a signal never fails
// the call that caused it.
func (f *Factory) emitChanged(category, key, op string) {
	if err := f.EmitChanged(category, key, op); err != nil {
		f.logger.Warn("failed to emit change", "category", category, "key", key, "error", err)
	}
}
