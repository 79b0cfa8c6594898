package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"stash/internal/amqp"
	"stash/internal/config"
	"stash/internal/core"
	"stash/internal/report"
	"stash/internal/storage"
)

// ExportWorker exports allocation snapshots from SQLite to the report
// sink. It is driven by AMQP messages, with periodic sweeps of pending
// accounts as a backup for lost messages.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	writer    report.SnapshotWriter
	templates *config.RuleTemplates
	batchSize int
}

func NewExportWorker(storage *storage.SQLiteRepository, writer report.SnapshotWriter, templates *config.RuleTemplates, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		writer:    writer,
		templates: templates,
		batchSize: batchSize,
	}
}

// HandleExportMessage processes a single snapshot export message from AMQP
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.SnapshotExportMessage) error {
	slog.InfoContext(ctx, "Processing export message",
		"account_id", msg.AccountID,
		"version", msg.Version)

	account, err := w.storage.GetAccount(ctx, msg.AccountID)
	if err != nil {
		return fmt.Errorf("get account from storage: %w", err)
	}

	if err := w.exportSnapshot(ctx, account); err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	return nil
}

// ProcessPendingAccounts exports any accounts whose latest state has not
// been exported yet. This is a backup mechanism in case AMQP messages
// are lost. Accounts in a batch are exported concurrently.
func (w *ExportWorker) ProcessPendingAccounts(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportAccounts(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending accounts: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending accounts", "count", len(pending))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range pending {
		account := pending[i]
		g.Go(func() error {
			if err := w.exportSnapshot(ctx, &account); err != nil {
				slog.ErrorContext(ctx, "Failed to export snapshot",
					"account_id", account.ID, "error", err)
			}
			// Per-account failures are logged and marked, not fatal to the sweep.
			return nil
		})
	}
	return g.Wait()
}

// StartupExportCheck exports any pending accounts at worker startup.
// This is useful to recover from missed AMQP messages or worker downtime.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportAccounts(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending accounts for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0
	for i := range pending {
		if err := w.exportSnapshot(ctx, &pending[i]); err != nil {
			slog.ErrorContext(ctx, "Failed to export snapshot during startup",
				"account_id", pending[i].ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", successCount,
		"errors", errorCount)

	return nil
}

// ExportAll writes a snapshot for every account regardless of export
// state. Used by the scheduled daily report.
func (w *ExportWorker) ExportAll(ctx context.Context) error {
	accounts, err := w.storage.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	slog.InfoContext(ctx, "Exporting snapshots for all accounts", "count", len(accounts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range accounts {
		account := accounts[i]
		g.Go(func() error {
			if err := w.exportSnapshot(ctx, &account); err != nil {
				slog.ErrorContext(ctx, "Failed to export snapshot",
					"account_id", account.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *ExportWorker) exportSnapshot(ctx context.Context, account *storage.Account) error {
	rules, err := core.DecodeRules(account.AllocationRules)
	if err != nil {
		// Undecodable rules will never export. Mark and give up.
		if markErr := w.storage.MarkExportError(ctx, account.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error",
				"account_id", account.ID, "error", markErr)
		}
		return fmt.Errorf("decode rules: %w", err)
	}
	list := core.NewRuleList(rules, w.templates.DefaultBucket(account.AccountType))
	if rules == nil {
		list = w.templates.ForAccountType(account.AccountType)
	}

	balance := core.Money{Milliunits: account.BalanceMilliunits}
	snap := report.Snapshot{
		AccountID:   account.ID,
		AccountName: account.Name,
		AccountType: account.AccountType,
		Balance:     balance,
		Result:      core.Allocate(balance, list),
		Taken:       time.Now(),
	}

	ref, err := w.writer.Append(ctx, snap)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, account.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error",
				"account_id", account.ID, "error", markErr)
		}
		return fmt.Errorf("append to report: %w", err)
	}

	if err := w.storage.MarkExported(ctx, account.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as exported",
			"account_id", account.ID, "error", err)
		// Don't return error here - the export actually worked
	}

	slog.InfoContext(ctx, "Successfully exported snapshot",
		"account_id", account.ID,
		"report_ref", ref,
		"balance_milliunits", account.BalanceMilliunits)

	return nil
}
