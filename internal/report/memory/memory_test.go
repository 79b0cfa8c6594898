package memory

import (
	"context"
	"testing"
	"time"

	"stash/internal/core"
	"stash/internal/report"
)

func TestAppendAndSnapshots(t *testing.T) {
	s := New()

	snap := report.Snapshot{
		AccountID:   "acc-1",
		AccountName: "Main",
		AccountType: "checking",
		Balance:     core.Money{Milliunits: 100_000_000},
		Taken:       time.Now(),
	}

	ref, err := s.Append(context.Background(), snap)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("ref = %q, want mem:1", ref)
	}

	got := s.Snapshots()
	if len(got) != 1 {
		t.Fatalf("len(Snapshots()) = %d, want 1", len(got))
	}
	if got[0].AccountID != "acc-1" {
		t.Errorf("AccountID = %q, want acc-1", got[0].AccountID)
	}

	// Mutating the returned slice must not affect the store.
	got[0].AccountID = "mutated"
	if s.Snapshots()[0].AccountID != "acc-1" {
		t.Error("Snapshots() should return a copy")
	}
}
