package palette

import "errors"

// ErrEmptyPalette is returned when a cyclic attribute has no values.
var ErrEmptyPalette = errors.New("palette is empty")

// Cyclic walks a fixed ordered palette. Only the writer advances the cursor;
// observers receive the committed value and never derive it themselves.
type Cyclic[T any] struct {
	values []T
	cursor int
}

// NewCyclic copies values and starts the cursor at start (taken modulo the
// palette length).
func NewCyclic[T any](values []T, start int) (*Cyclic[T], error) {
	if len(values) == 0 {
		return nil, ErrEmptyPalette
	}
	copied := make([]T, len(values))
	copy(copied, values)
	c := &Cyclic[T]{values: copied}
	c.cursor = c.wrap(start)
	return c, nil
}

// Next returns the value under the cursor and advances it.
func (c *Cyclic[T]) Next() T {
	value := c.values[c.cursor]
	c.cursor = c.wrap(c.cursor + 1)
	return value
}

// Peek returns the value Next would return without advancing.
func (c *Cyclic[T]) Peek() T {
	return c.values[c.cursor]
}

// Cursor reports the current cursor position.
func (c *Cyclic[T]) Cursor() int {
	return c.cursor
}

// Len reports the palette length.
func (c *Cyclic[T]) Len() int {
	return len(c.values)
}

func (c *Cyclic[T]) wrap(i int) int {
	n := len(c.values)
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
