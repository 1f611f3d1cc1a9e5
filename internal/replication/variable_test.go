package replication

import (
	"errors"
	"testing"
)

type change struct {
	previous int
	next     int
}

func TestVariableNotifiesEveryObserverInCommitOrder(t *testing.T) {
	v := NewVariable[int]("player-1", "score", OwnerAuthoritative, 0)

	recorded := make([][]change, 3)
	for i := range recorded {
		idx := i
		v.OnChange(func(previous, next int) {
			recorded[idx] = append(recorded[idx], change{previous, next})
		})
	}

	values := []int{4, 9, 2, 7, 1}
	for _, value := range values {
		if err := v.Set(RoleOwner, value); err != nil {
			t.Fatalf("set %d: %v", value, err)
		}
	}

	for i, changes := range recorded {
		if len(changes) != len(values) {
			t.Fatalf("observer %d saw %d changes, want %d", i, len(changes), len(values))
		}
		previous := 0
		for j, c := range changes {
			if c.previous != previous || c.next != values[j] {
				t.Fatalf("observer %d change %d = %+v, want {%d %d}", i, j, c, previous, values[j])
			}
			previous = values[j]
		}
	}
	if got := v.Version(); got != uint64(len(values)) {
		t.Fatalf("expected version %d, got %d", len(values), got)
	}
}

func TestVariableRejectsNonWriters(t *testing.T) {
	tests := []struct {
		name   string
		writer WriterRole
		caller Role
	}{
		{"observer on owner field", OwnerAuthoritative, RoleObserver},
		{"server on owner field", OwnerAuthoritative, RoleServer},
		{"observer on server field", ServerAuthoritative, RoleObserver},
		{"owner on server field", ServerAuthoritative, RoleOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVariable[string]("e", "f", tt.writer, "initial")
			notified := 0
			v.OnChange(func(string, string) { notified++ })
			published := 0
			v.OnCommit(func(uint64, string) { published++ })

			err := v.Set(tt.caller, "changed")
			if !errors.Is(err, ErrAuthorityViolation) {
				t.Fatalf("expected authority violation, got %v", err)
			}
			var violation *AuthorityViolationError
			if !errors.As(err, &violation) {
				t.Fatalf("expected *AuthorityViolationError, got %T", err)
			}
			if violation.Caller != tt.caller || violation.Writer != tt.writer {
				t.Fatalf("unexpected violation details: %+v", violation)
			}
			if notified != 0 || published != 0 {
				t.Fatalf("expected no notifications, got observers=%d publish=%d", notified, published)
			}
			if got := v.Get(); got != "initial" {
				t.Fatalf("value changed to %q", got)
			}
			if v.Version() != 0 {
				t.Fatalf("version advanced to %d", v.Version())
			}
		})
	}
}

func TestVariableSuppressesNoOpWrites(t *testing.T) {
	v := NewVariable[int]("e", "f", ServerAuthoritative, 3)
	calls := 0
	v.OnChange(func(int, int) { calls++ })

	if err := v.Set(RoleServer, 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	if calls != 0 || v.Version() != 0 {
		t.Fatalf("expected no-op write, calls=%d version=%d", calls, v.Version())
	}
}

func TestVariableApplyIgnoresDuplicates(t *testing.T) {
	v := NewVariable[int]("e", "f", OwnerAuthoritative, 0)
	var seen []change
	v.OnChange(func(previous, next int) { seen = append(seen, change{previous, next}) })

	if !v.Apply(1, 5) {
		t.Fatalf("expected first delivery to apply")
	}
	if v.Apply(1, 5) {
		t.Fatalf("expected redelivery to be ignored")
	}
	if v.Apply(0, 8) {
		t.Fatalf("expected older delivery to be ignored")
	}
	if !v.Apply(3, 6) {
		t.Fatalf("expected newer delivery to apply")
	}
	if len(seen) != 2 || seen[0] != (change{0, 5}) || seen[1] != (change{5, 6}) {
		t.Fatalf("unexpected notifications: %+v", seen)
	}
	if v.Version() != 3 {
		t.Fatalf("expected version 3, got %d", v.Version())
	}
}

func TestVariableApplySameValueDoesNotNotify(t *testing.T) {
	v := NewVariable[int]("e", "f", OwnerAuthoritative, 4)
	calls := 0
	v.OnChange(func(int, int) { calls++ })
	if !v.Apply(1, 4) {
		t.Fatalf("expected version to advance")
	}
	if calls != 0 {
		t.Fatalf("expected no notification for identical value, got %d", calls)
	}
}

func TestVariableOffChange(t *testing.T) {
	v := NewVariable[int]("e", "f", OwnerAuthoritative, 0)
	first, second := 0, 0
	h1 := v.OnChange(func(int, int) { first++ })
	v.OnChange(func(int, int) { second++ })

	if !v.OffChange(h1) {
		t.Fatalf("expected handle to be live")
	}
	if v.OffChange(h1) {
		t.Fatalf("expected second removal to report false")
	}
	if err := v.Set(RoleOwner, 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if first != 0 || second != 1 {
		t.Fatalf("unexpected counts first=%d second=%d", first, second)
	}
	if v.Observers() != 1 {
		t.Fatalf("expected one observer, got %d", v.Observers())
	}
}

func TestVariableCloseReportsLeakedObservers(t *testing.T) {
	v := NewVariable[int]("e", "f", OwnerAuthoritative, 0)
	v.OnChange(func(int, int) {})
	v.OnChange(func(int, int) {})

	if leaked := v.Close(); leaked != 2 {
		t.Fatalf("expected 2 leaked observers, got %d", leaked)
	}
	if err := v.Set(RoleOwner, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if v.Apply(5, 1) {
		t.Fatalf("expected closed variable to ignore deliveries")
	}
}

func TestVariablePublishesLocalCommitsOnly(t *testing.T) {
	v := NewVariable[int]("e", "f", ServerAuthoritative, 0)
	var versions []uint64
	v.OnCommit(func(version uint64, _ int) { versions = append(versions, version) })

	if err := v.Set(RoleServer, 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	v.Apply(5, 2)
	if err := v.Set(RoleHost, 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(versions) != 2 || versions[0] != 1 || versions[1] != 6 {
		t.Fatalf("unexpected published versions: %v", versions)
	}
}

func TestBindRoundTripsThroughCodec(t *testing.T) {
	source := NewVariable[int]("e", "f", ServerAuthoritative, 0)
	replica := NewVariable[int]("e", "f", ServerAuthoritative, 0)
	src := Bind[int](source, JSONCodec[int]{})
	dst := Bind[int](replica, JSONCodec[int]{})

	src.OnCommitted(func(version uint64, data []byte, err error) {
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if _, err := dst.ApplyEncoded(version, data); err != nil {
			t.Fatalf("apply: %v", err)
		}
	})
	if err := src.SetEncoded(RoleServer, []byte("42")); err != nil {
		t.Fatalf("set encoded: %v", err)
	}
	if replica.Get() != 42 || replica.Version() != 1 {
		t.Fatalf("replica not updated: value=%d version=%d", replica.Get(), replica.Version())
	}
	if _, err := dst.ApplyEncoded(2, []byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
