package registry

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommand_ID(t *testing.T) {
	cmd := Insert("screen", "count", Int(3))
	_, err := ulid.Parse(cmd.ID)
	assert.NoError(t, err)
	assert.NotEqual(t, cmd.ID, Insert("screen", "count", Int(3)).ID)
}

func TestCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"insert", Insert("screen", "count", Int(3)), nil},
		{"remove", RemoveKey("screen", "count"), nil},
		{"drop", Drop("screen"), nil},
		{"notify", NewCommand("screen", OpNotify, "", Null()), nil},
		{"empty category", Insert("", "count", Int(3)), ErrEmptyName},
		{"empty key", Insert("screen", "", Int(3)), ErrEmptyKey},
		{"unknown op", NewCommand("screen", Op("upsert"), "k", Null()), ErrUnknownOp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCommand_Apply(t *testing.T) {
	r := New()
	defer r.Close()

	change, err := Insert("screen", "count", Int(3)).Apply(r)
	require.NoError(t, err)
	assert.Equal(t, Change{Category: "screen", Key: "count", Op: OpInsert, Changed: true}, change)

	c, ok := r.Get("screen")
	require.True(t, ok)
	v, ok := c.Get("count")
	require.True(t, ok)
	assert.True(t, v.Equal(Int(3)))

	// Same value again is not a change
	change, err = Insert("screen", "count", Int(3)).Apply(r)
	require.NoError(t, err)
	assert.False(t, change.Changed)

	change, err = RemoveKey("screen", "count").Apply(r)
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.False(t, c.Contains("count"))

	change, err = RemoveKey("missing", "count").Apply(r)
	require.NoError(t, err)
	assert.False(t, change.Changed)
	assert.Equal(t, 1, r.Len(), "remove must not create categories")

	change, err = Drop("screen").Apply(r)
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.Equal(t, 0, r.Len())
}

func TestCommand_Apply_LastWriteWins(t *testing.T) {
	r := New()
	defer r.Close()

	for i := range 10 {
		_, err := Insert("layout", "gaps", Int(i)).Apply(r)
		require.NoError(t, err)
	}

	c, _ := r.Get("layout")
	v, _ := c.Get("gaps")
	assert.True(t, v.Equal(Int(9)))
}

func TestCommand_Apply_Invalid(t *testing.T) {
	r := New()
	_, err := Insert("", "k", Null()).Apply(r)
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Equal(t, 0, r.Len())
}

func TestOp_Known(t *testing.T) {
	for _, op := range []Op{OpInsert, OpRemove, OpDrop, OpNotify} {
		assert.True(t, op.Known(), op)
	}
	assert.False(t, Op("upsert").Known())
	assert.False(t, Op("").Known())
}
