package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownCategory = errors.New("unknown category")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows a single writer. One pooled connection keeps
	// concurrent callers serialized instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateAccount inserts a linked account and returns its ID.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (int64, error) {
	status := a.ConsentStatus
	if status == "" {
		status = "active"
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (bank_name, nickname, consent_status, is_active) VALUES (?, ?, ?, 1)`,
		a.BankName, a.Nickname, status)
	if err != nil {
		return 0, fmt.Errorf("create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("account insert id: %w", err)
	}

	slog.InfoContext(ctx, "Account linked", "account_id", id, "bank_name", a.BankName, "nickname", a.Nickname)
	return id, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, bank_name, nickname, consent_status, is_active, last_synced_at, created_at
		 FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// ListAccounts returns all accounts ordered by creation.
func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, bank_name, nickname, consent_status, is_active, last_synced_at, created_at
		 FROM accounts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account and every transaction tied to it.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete account: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("delete account transactions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete account: %w", err)
	}

	slog.InfoContext(ctx, "Account deleted", "account_id", id)
	return nil
}

// RenameAccount updates the nickname.
func (r *SQLiteRepository) RenameAccount(ctx context.Context, id int64, nickname string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET nickname = ? WHERE id = ?`, nickname, id)
	if err != nil {
		return fmt.Errorf("rename account: %w", err)
	}
	return checkAffected(res)
}

// ToggleAccount flips the active flag and returns the new state.
func (r *SQLiteRepository) ToggleAccount(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET is_active = 1 - is_active WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("toggle account: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return false, err
	}
	var active bool
	if err := r.db.QueryRowContext(ctx, `SELECT is_active FROM accounts WHERE id = ?`, id).Scan(&active); err != nil {
		return false, fmt.Errorf("read account active flag: %w", err)
	}
	return active, nil
}

// MarkAccountSynced stamps the last successful statement pull.
func (r *SQLiteRepository) MarkAccountSynced(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET last_synced_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark account synced: %w", err)
	}
	return checkAffected(res)
}

// AccountStats returns the transaction count and debit total for an account.
func (r *SQLiteRepository) AccountStats(ctx context.Context, id int64) (count int64, totalCents int64, err error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN transaction_type = 'debit' THEN amount_cents ELSE 0 END), 0)
		 FROM transactions WHERE account_id = ?`, id)
	if err := row.Scan(&count, &totalCents); err != nil {
		return 0, 0, fmt.Errorf("account stats: %w", err)
	}
	return count, totalCents, nil
}

// InsertTransaction stores a transaction and returns its ID.
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (account_id, category_id, date, description, amount_cents, transaction_type)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.AccountID, t.CategoryID, t.Date.Format(dateLayout), t.Description, t.Amount.Cents, string(t.Type))
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction insert id: %w", err)
	}
	return id, nil
}

// TransactionExists is the duplicate probe used by statement sync:
// same account, date, description and amount means already imported.
func (r *SQLiteRepository) TransactionExists(ctx context.Context, accountID int64, date time.Time, description string, amountCents int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions
		 WHERE account_id = ? AND date = ? AND description = ? AND amount_cents = ?`,
		accountID, date.Format(dateLayout), description, amountCents).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("transaction exists: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, category_id, date, description, amount_cents, transaction_type, created_at
		 FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// ListTransactions returns a month of transactions, newest first,
// optionally filtered to one account.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, month core.MonthKey, accountID *int64) ([]core.Transaction, error) {
	query := `SELECT id, account_id, category_id, date, description, amount_cents, transaction_type, created_at
		 FROM transactions WHERE substr(date, 1, 7) = ?`
	args := []any{month.String()}
	if accountID != nil {
		query += ` AND account_id = ?`
		args = append(args, *accountID)
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// DeleteAllTransactions wipes the ledger. Used by demo data generation
// before reseeding.
func (r *SQLiteRepository) DeleteAllTransactions(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("delete all transactions: %w", err)
	}
	return nil
}

// UpdateTransactionCategory reassigns a transaction's category. A nil
// categoryID clears it back to uncategorized. The category must exist.
func (r *SQLiteRepository) UpdateTransactionCategory(ctx context.Context, txID int64, categoryID *int64) error {
	if categoryID != nil {
		if _, err := r.GetCategory(ctx, *categoryID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnknownCategory
			}
			return err
		}
	}

	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET category_id = ? WHERE id = ?`, categoryID, txID)
	if err != nil {
		return fmt.Errorf("update transaction category: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction category updated", "transaction_id", txID, "category_id", categoryID)
	return nil
}

// ListCategories returns the taxonomy ordered by name.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// CategoryIDByName resolves a category name, used by auto-categorization.
func (r *SQLiteRepository) CategoryIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("category id by name: %w", err)
	}
	return id, nil
}

// SpendingByCategory aggregates a month's debits per category, with the
// uncategorized total as a separate bucket.
func (r *SQLiteRepository) SpendingByCategory(ctx context.Context, month core.MonthKey, accountID *int64) (core.SpendingSummary, error) {
	summary := core.SpendingSummary{Month: month}

	query := `SELECT c.name, SUM(t.amount_cents)
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.transaction_type = 'debit' AND substr(t.date, 1, 7) = ?`
	args := []any{month.String()}
	if accountID != nil {
		query += ` AND t.account_id = ?`
		args = append(args, *accountID)
	}
	query += ` GROUP BY c.name ORDER BY c.name ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return summary, fmt.Errorf("spending by category: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return summary, fmt.Errorf("scan spending row: %w", err)
		}
		summary.ByCategory = append(summary.ByCategory, ca)
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	uncatQuery := `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		 WHERE transaction_type = 'debit' AND category_id IS NULL AND substr(date, 1, 7) = ?`
	uncatArgs := []any{month.String()}
	if accountID != nil {
		uncatQuery += ` AND account_id = ?`
		uncatArgs = append(uncatArgs, *accountID)
	}
	if err := r.db.QueryRowContext(ctx, uncatQuery, uncatArgs...).Scan(&summary.Uncategorized.Cents); err != nil {
		return summary, fmt.Errorf("uncategorized spending: %w", err)
	}

	return summary, nil
}

// MonthsWithTransactions returns the distinct "YYYY-MM" keys present in
// the ledger, newest first, optionally filtered to one account.
func (r *SQLiteRepository) MonthsWithTransactions(ctx context.Context, accountID *int64) ([]string, error) {
	query := `SELECT DISTINCT substr(date, 1, 7) AS month FROM transactions`
	var args []any
	if accountID != nil {
		query += ` WHERE account_id = ?`
		args = append(args, *accountID)
	}
	query += ` ORDER BY month DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("months with transactions: %w", err)
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan month: %w", err)
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a          core.Account
		lastSynced sql.NullTime
	)
	err := row.Scan(&a.ID, &a.BankName, &a.Nickname, &a.ConsentStatus, &a.Active, &lastSynced, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	if lastSynced.Valid {
		a.LastSyncedAt = lastSynced.Time
	}
	return a, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t      core.Transaction
		date   string
		catID  sql.NullInt64
		txType string
	)
	err := row.Scan(&t.ID, &t.AccountID, &catID, &date, &t.Description, &t.Amount.Cents, &txType, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Type = core.TransactionType(txType)
	if catID.Valid {
		id := catID.Int64
		t.CategoryID = &id
	}
	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date %q: %w", date, err)
	}
	t.Date = parsed
	return t, nil
}

func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
