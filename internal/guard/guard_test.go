package guard_test

import (
	"errors"
	"testing"

	"github.com/pegdao/policy-engine/internal/guard"
)

func TestAdmitOncePerBlock(t *testing.T) {
	g := guard.New()

	if err := g.Admit("alice", 10); err != nil {
		t.Fatalf("first admit failed: %v", err)
	}
	if err := g.Admit("alice", 10); !errors.Is(err, guard.ErrReentry) {
		t.Fatalf("expected ErrReentry, got %v", err)
	}
	// Next block clears the marker.
	if err := g.Admit("alice", 11); err != nil {
		t.Fatalf("next-block admit failed: %v", err)
	}
}

func TestAccountsAreIndependent(t *testing.T) {
	g := guard.New()

	if err := g.Admit("alice", 10); err != nil {
		t.Fatalf("admit alice: %v", err)
	}
	if err := g.Admit("bob", 10); err != nil {
		t.Fatalf("bob blocked by alice's admission: %v", err)
	}
}

func TestAdmittedReportsWithoutRecording(t *testing.T) {
	g := guard.New()

	if g.Admitted("alice", 10) {
		t.Error("admitted before any admit")
	}
	if err := g.Admit("alice", 10); err != nil {
		t.Fatalf("admit failed: %v", err)
	}
	if !g.Admitted("alice", 10) {
		t.Error("admission not reported")
	}
	if g.Admitted("alice", 11) {
		t.Error("admission leaked into the next block")
	}
	if g.Admitted("bob", 10) {
		t.Error("admission leaked across accounts")
	}
	// Checking must not count as acting.
	if err := g.Admit("bob", 10); err != nil {
		t.Errorf("admit after check failed: %v", err)
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	g := guard.New()

	g.Admit("alice", 10)
	g.Release("alice", 10)
	if err := g.Admit("alice", 10); err != nil {
		t.Fatalf("retry after release failed: %v", err)
	}
}

func TestReleaseIgnoresStaleBlock(t *testing.T) {
	g := guard.New()

	g.Admit("alice", 10)
	g.Admit("alice", 11)
	// Releasing the old block must not clear the newer admission.
	g.Release("alice", 10)
	if err := g.Admit("alice", 11); !errors.Is(err, guard.ErrReentry) {
		t.Fatalf("expected ErrReentry, got %v", err)
	}
}
