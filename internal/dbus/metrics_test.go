package dbus

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/regbus/internal/registry"
)

func TestOpLabel(t *testing.T) {
	tests := []struct {
		op   registry.Op
		want string
	}{
		{registry.OpInsert, "insert"},
		{registry.OpRemove, "remove"},
		{registry.OpDrop, "drop"},
		{registry.OpNotify, "notify"},
		{registry.Op("upsert"), "unknown"},
		{registry.Op(""), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, opLabel(tt.op))
		})
	}
}

func TestMetrics_ObserveCommand_BoundedLabels(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), registry.New())
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	for _, op := range []string{"a", "b", "c"} {
		m.observeCommand(registry.Op(op), registry.ErrUnknownOp)
	}
	m.observeCommand(registry.OpInsert, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.commands.WithLabelValues("unknown", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("insert", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.commands))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Register())
	m.observeCommand(registry.OpInsert, errors.New("x"))
	m.observeResult(Result{Kind: ResultCall})
}
