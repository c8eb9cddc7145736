package registry

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Op is the operation a Command performs.
type Op string

const (
	// OpInsert sets Key to Value, creating the category if needed.
	OpInsert Op = "insert"
	// OpRemove deletes Key from the category.
	OpRemove Op = "remove"
	// OpDrop removes the whole category.
	OpDrop Op = "drop"
	// OpNotify leaves the registry untouched and only announces a change.
	OpNotify Op = "notify"
)

// Known reports whether o is one of the defined operations.
func (o Op) Known() bool {
	switch o {
	case OpInsert, OpRemove, OpDrop, OpNotify:
		return true
	}
	return false
}

// Command is a message sent to the bus worker by the rest of the process.
type Command struct {
	ID       string
	Category string
	Op       Op
	Key      string
	Value    Value
}

// Change describes what applying a Command did.
type Change struct {
	Category string
	Key      string
	Op       Op
	// Changed is false when the command was a no-op (e.g. removing a missing key).
	Changed bool
}

// NewCommand builds a command with a fresh ULID.
func NewCommand(category string, op Op, key string, value Value) Command {
	return Command{
		ID:       newID(),
		Category: category,
		Op:       op,
		Key:      key,
		Value:    value,
	}
}

// Insert is shorthand for NewCommand(category, OpInsert, key, value).
func Insert(category, key string, value Value) Command {
	return NewCommand(category, OpInsert, key, value)
}

// RemoveKey is shorthand for NewCommand(category, OpRemove, key, Null()).
func RemoveKey(category, key string) Command {
	return NewCommand(category, OpRemove, key, Null())
}

// Drop is shorthand for NewCommand(category, OpDrop, "", Null()).
func Drop(category string) Command {
	return NewCommand(category, OpDrop, "", Null())
}

// Validate checks the command is well formed.
func (c Command) Validate() error {
	if c.Category == "" {
		return ErrEmptyName
	}
	if !c.Op.Known() {
		return fmt.Errorf("%q: %w", c.Op, ErrUnknownOp)
	}
	if (c.Op == OpInsert || c.Op == OpRemove) && c.Key == "" {
		return fmt.Errorf("%s %s: %w", c.Op, c.Category, ErrEmptyKey)
	}
	return nil
}

// Apply performs the command against r.
func (c Command) Apply(r *Registry) (Change, error) {
	if err := c.Validate(); err != nil {
		return Change{}, err
	}

	change := Change{Category: c.Category, Key: c.Key, Op: c.Op}

	switch c.Op {
	case OpInsert:
		cat, err := r.GetOrCreate(c.Category)
		if err != nil {
			return Change{}, err
		}
		prev, existed := cat.Get(c.Key)
		cat.Set(c.Key, c.Value)
		change.Changed = !existed || !prev.Equal(c.Value)
	case OpRemove:
		if cat, ok := r.Get(c.Category); ok {
			_, change.Changed = cat.Remove(c.Key)
		}
	case OpDrop:
		_, change.Changed = r.Remove(c.Category)
	case OpNotify:
		change.Changed = true
	}

	return change, nil
}

func newID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return ""
	}
	return id.String()
}
