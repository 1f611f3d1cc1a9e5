package id

import (
	"strings"
	"testing"
)

func TestIdentifiersAreUniqueAndPrefixed(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		p := string(NewParticipant())
		e := string(NewEntity())
		if !strings.HasPrefix(p, "p-") || !strings.HasPrefix(e, "e-") {
			t.Fatalf("unexpected prefixes: %q %q", p, e)
		}
		for _, v := range []string{p, e} {
			if _, dup := seen[v]; dup {
				t.Fatalf("duplicate identifier %q", v)
			}
			seen[v] = struct{}{}
			if !Valid(v) {
				t.Fatalf("expected %q to be valid", v)
			}
		}
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "p-", "p-not-a-uuid", "pxx"} {
		if Valid(raw) {
			t.Fatalf("expected %q to be invalid", raw)
		}
	}
}

func TestNewRun(t *testing.T) {
	run := NewRun()
	if !strings.HasPrefix(run, "r-") || !Valid(run) {
		t.Fatalf("unexpected run id %q", run)
	}
	if run == NewRun() {
		t.Fatal("expected distinct run ids")
	}
}
