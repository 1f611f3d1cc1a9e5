package replication

import "fmt"

// Field is the type-erased view of a Variable used by the session to route
// wire messages without knowing the value type.
type Field interface {
	Entity() EntityID
	ID() FieldID
	Writer() WriterRole
	Version() uint64
	// Encoded returns the current value in wire form.
	Encoded() (uint64, []byte, error)
	// SetEncoded decodes data and commits it as caller.
	SetEncoded(caller Role, data []byte) error
	// ApplyEncoded decodes data and applies it as a delivery from the authority.
	ApplyEncoded(version uint64, data []byte) (bool, error)
	// OnCommitted installs the hook receiving every local commit in wire form.
	OnCommitted(fn func(version uint64, data []byte, err error))
	Close() int
}

// Bind pairs a variable with its codec.
func Bind[T comparable](v *Variable[T], codec Codec[T]) Field {
	return &binding[T]{variable: v, codec: codec}
}

type binding[T comparable] struct {
	variable *Variable[T]
	codec    Codec[T]
}

func (b *binding[T]) Entity() EntityID   { return b.variable.Entity() }
func (b *binding[T]) ID() FieldID        { return b.variable.Field() }
func (b *binding[T]) Writer() WriterRole { return b.variable.Writer() }
func (b *binding[T]) Version() uint64    { return b.variable.Version() }
func (b *binding[T]) Close() int         { return b.variable.Close() }

func (b *binding[T]) Encoded() (uint64, []byte, error) {
	value, version := b.variable.Snapshot()
	data, err := b.codec.Encode(value)
	if err != nil {
		return version, nil, fmt.Errorf("encode %s: %w", b.variable.Field(), err)
	}
	return version, data, nil
}

func (b *binding[T]) SetEncoded(caller Role, data []byte) error {
	value, err := b.codec.Decode(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", b.variable.Field(), err)
	}
	return b.variable.Set(caller, value)
}

func (b *binding[T]) ApplyEncoded(version uint64, data []byte) (bool, error) {
	value, err := b.codec.Decode(data)
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", b.variable.Field(), err)
	}
	return b.variable.Apply(version, value), nil
}

func (b *binding[T]) OnCommitted(fn func(version uint64, data []byte, err error)) {
	if fn == nil {
		b.variable.OnCommit(nil)
		return
	}
	b.variable.OnCommit(func(version uint64, value T) {
		data, err := b.codec.Encode(value)
		fn(version, data, err)
	})
}
