package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var accountMigrationsFS embed.FS

// ErrAccountNotFound is returned when an account id has no row.
var ErrAccountNotFound = errors.New("account not found")

// Account is the persisted account record. AllocationRules holds the
// rule list in its JSON wire form; decoding and repair belong to the
// core package.
type Account struct {
	ID                string
	Name              string
	AccountType       string
	BalanceMilliunits int64
	AllocationRules   []byte
	Notes             string
	Exported          bool
	ExportError       bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows one writer at a time; a second connection hits
	// SQLITE_BUSY under the worker's concurrent sweep, so funnel all
	// statements through a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateAccounts(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate accounts store: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// migrateAccounts brings the accounts schema up to date. It opens its
// own short-lived connection because migrate closes the database it is
// handed.
func migrateAccounts(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open accounts store: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("prepare migration driver: %w", err)
	}

	src, err := iofs.New(accountMigrationsFS, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply accounts migrations: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const accountColumns = `id, name, account_type, balance_milliunits, allocation_rules, notes, exported, export_error, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var a Account
	var rules sql.NullString
	err := row.Scan(&a.ID, &a.Name, &a.AccountType, &a.BalanceMilliunits,
		&rules, &a.Notes, &a.Exported, &a.ExportError, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	if rules.Valid {
		a.AllocationRules = []byte(rules.String)
	}
	return a, nil
}

// CreateAccount inserts a new account with its initial rule list.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, account_type, balance_milliunits, allocation_rules, notes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.AccountType, a.BalanceMilliunits, nullableBytes(a.AllocationRules), a.Notes)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Account saved to SQLite",
		"id", a.ID,
		"name", a.Name,
		"account_type", a.AccountType,
		"balance_milliunits", a.BalanceMilliunits)

	return nil
}

// GetAccount returns one account by id.
func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// ListAccounts returns all accounts ordered by name.
func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateBalance sets an account's balance and marks it pending export.
func (r *SQLiteRepository) UpdateBalance(ctx context.Context, id string, balanceMilliunits int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET balance_milliunits = ?, exported = 0, export_error = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		balanceMilliunits, id)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return requireRow(res, id)
}

// SaveRules persists the encoded rule list for an account and marks it
// pending export so the worker pushes a fresh snapshot.
func (r *SQLiteRepository) SaveRules(ctx context.Context, id string, rulesJSON []byte) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET allocation_rules = ?, exported = 0, export_error = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		nullableBytes(rulesJSON), id)
	if err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Allocation rules saved to SQLite",
		"id", id,
		"rules_bytes", len(rulesJSON))

	return nil
}

// DeleteAccount removes an account and its rules.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireRow(res, id)
}

// GetPendingExportAccounts returns accounts whose latest state has not
// been pushed to the snapshot report yet.
func (r *SQLiteRepository) GetPendingExportAccounts(ctx context.Context, limit int) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE exported = 0
		ORDER BY updated_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending export accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get pending export accounts: %w", err)
	}
	return accounts, nil
}

// MarkExported marks an account's snapshot as successfully exported.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET exported = 1, export_error = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}

	slog.InfoContext(ctx, "Account snapshot marked as exported", "id", id)
	return nil
}

// MarkExportError marks an account as having failed its last export.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET export_error = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}

	slog.WarnContext(ctx, "Account snapshot marked with export error", "id", id)
	return nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
