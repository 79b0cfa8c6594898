package report

import (
	"context"
	"time"

	"stash/internal/core"
)

// Snapshot is a point-in-time view of an account's balance and how the
// allocation rules distribute it across buckets.
type Snapshot struct {
	AccountID   string
	AccountName string
	AccountType string
	Balance     core.Money
	Result      core.AllocationResult
	Taken       time.Time
}

// Ports for outbound adapters.
type (
	SnapshotWriter interface {
		Append(ctx context.Context, s Snapshot) (rowRef string, err error)
	}
)
