package replication

import "sync"

// ChangeFunc observes a committed change.
type ChangeFunc[T any] func(previous, next T)

// ChangeHandle identifies a registered observer so it can be removed.
type ChangeHandle uint64

type observer[T any] struct {
	handle ChangeHandle
	fn     ChangeFunc[T]
}

// Variable is a single replicated value with one authority. Writes go
// through Set (local authority) or Apply (delivery of the authority's write);
// both notify observers exactly once per committed change, in commit order.
//
// A Variable is mutated from the participant's simulation goroutine only.
// Get, Version and Snapshot are safe from any goroutine.
type Variable[T comparable] struct {
	mu       sync.RWMutex
	entity   EntityID
	field    FieldID
	writer   WriterRole
	policy   Policy
	value    T
	version  uint64
	closed   bool
	next     ChangeHandle
	watchers []observer[T]
	publish  func(version uint64, value T)
}

// NewVariable constructs a variable holding initial at version zero.
func NewVariable[T comparable](entity EntityID, field FieldID, writer WriterRole, initial T) *Variable[T] {
	return &Variable[T]{
		entity: entity,
		field:  field,
		writer: writer,
		policy: DefaultPolicy{},
		value:  initial,
	}
}

// WithPolicy replaces the authority policy. It must be called before the
// variable is shared.
func (v *Variable[T]) WithPolicy(policy Policy) *Variable[T] {
	if policy != nil {
		v.policy = policy
	}
	return v
}

func (v *Variable[T]) Entity() EntityID   { return v.entity }
func (v *Variable[T]) Field() FieldID     { return v.field }
func (v *Variable[T]) Writer() WriterRole { return v.writer }

// Get returns the latest locally known value.
func (v *Variable[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Version returns the number of committed changes observed locally.
func (v *Variable[T]) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Snapshot returns the value and version together.
func (v *Variable[T]) Snapshot() (T, uint64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value, v.version
}

// Set commits value on behalf of caller. Callers without write authority get
// an *AuthorityViolationError and nothing is stored or notified. Assigning
// the current value is a no-op.
func (v *Variable[T]) Set(caller Role, value T) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if !CanWrite(v.policy, v.entity, v.writer, caller) {
		v.mu.Unlock()
		return &AuthorityViolationError{Entity: v.entity, Field: v.field, Writer: v.writer, Caller: caller}
	}
	if value == v.value {
		v.mu.Unlock()
		return nil
	}
	previous := v.value
	v.value = value
	v.version++
	version := v.version
	watchers := v.watchersLocked()
	publish := v.publish
	v.mu.Unlock()

	notify(watchers, previous, value)
	if publish != nil {
		publish(version, value)
	}
	return nil
}

// Apply stores a value committed by the authority elsewhere. Deliveries at
// or below the current version are duplicates and are ignored; the return
// value reports whether the delivery advanced the variable.
func (v *Variable[T]) Apply(version uint64, value T) bool {
	v.mu.Lock()
	if v.closed || version <= v.version {
		v.mu.Unlock()
		return false
	}
	previous := v.value
	v.value = value
	v.version = version
	watchers := v.watchersLocked()
	v.mu.Unlock()

	if previous != value {
		notify(watchers, previous, value)
	}
	return true
}

// OnChange registers fn and returns the handle that removes it.
func (v *Variable[T]) OnChange(fn ChangeFunc[T]) ChangeHandle {
	if fn == nil {
		return 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.next++
	v.watchers = append(v.watchers, observer[T]{handle: v.next, fn: fn})
	return v.next
}

// OffChange removes a registration. It reports whether the handle was live.
func (v *Variable[T]) OffChange(handle ChangeHandle) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, w := range v.watchers {
		if w.handle == handle {
			v.watchers = append(v.watchers[:i:i], v.watchers[i+1:]...)
			return true
		}
	}
	return false
}

// Observers reports the number of registered callbacks.
func (v *Variable[T]) Observers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.watchers)
}

// OnCommit installs the hook that forwards local commits to the transport.
func (v *Variable[T]) OnCommit(fn func(version uint64, value T)) {
	v.mu.Lock()
	v.publish = fn
	v.mu.Unlock()
}

// Close tears the variable down. It returns how many observers were still
// registered, which is non-zero only when an owner forgot to deregister.
func (v *Variable[T]) Close() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	leaked := len(v.watchers)
	v.watchers = nil
	v.publish = nil
	v.closed = true
	return leaked
}

func (v *Variable[T]) watchersLocked() []observer[T] {
	if len(v.watchers) == 0 {
		return nil
	}
	copied := make([]observer[T], len(v.watchers))
	copy(copied, v.watchers)
	return copied
}

func notify[T any](watchers []observer[T], previous, next T) {
	for _, w := range watchers {
		w.fn(previous, next)
	}
}
