package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/bank"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// StatementSource fetches a month of statement entries for an account.
// The bank feed simulator implements it; a real aggregator client would
// slot in behind the same interface.
type StatementSource interface {
	GenerateMonthlyStatement(month core.MonthKey) []bank.StatementEntry
}

// SyncResult reports what a statement pull imported.
type SyncResult struct {
	AccountID int64
	Fetched   int
	Imported  int
	Skipped   int
}

// SyncService imports bank statements into the ledger, deduplicating
// and auto-categorizing along the way.
type SyncService struct {
	storage *storage.SQLiteRepository
	source  StatementSource
}

func NewSyncService(repo *storage.SQLiteRepository, source StatementSource) *SyncService {
	return &SyncService{storage: repo, source: source}
}

// SyncAccount pulls the current month's statement for one account and
// imports the entries not already in the ledger. Inactive accounts are
// skipped without error.
func (s *SyncService) SyncAccount(ctx context.Context, accountID int64, now time.Time) (SyncResult, error) {
	result := SyncResult{AccountID: accountID}

	account, err := s.storage.GetAccount(ctx, accountID)
	if err != nil {
		return result, fmt.Errorf("get account %d: %w", accountID, err)
	}
	if !account.Active {
		slog.InfoContext(ctx, "Skipping paused account", "account_id", accountID, "nickname", account.Nickname)
		return result, nil
	}

	entries := s.source.GenerateMonthlyStatement(core.CurrentMonth(now))
	result.Fetched = len(entries)

	imported, skipped, err := s.importEntries(ctx, accountID, entries)
	result.Imported = imported
	result.Skipped = skipped
	if err != nil {
		return result, err
	}

	if err := s.storage.MarkAccountSynced(ctx, accountID, now); err != nil {
		slog.WarnContext(ctx, "Failed to stamp account sync time", "account_id", accountID, "error", err)
	}

	slog.InfoContext(ctx, "Account synced",
		"account_id", accountID,
		"fetched", result.Fetched,
		"imported", result.Imported,
		"skipped", result.Skipped)

	return result, nil
}

// SyncAllAccounts runs SyncAccount over every account in turn and
// returns the aggregate counts. Per-account failures are logged and do
// not stop the remaining accounts.
func (s *SyncService) SyncAllAccounts(ctx context.Context, now time.Time) (int, error) {
	accounts, err := s.storage.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	total := 0
	for _, account := range accounts {
		res, err := s.SyncAccount(ctx, account.ID, now)
		if err != nil {
			slog.ErrorContext(ctx, "Account sync failed", "account_id", account.ID, "error", err)
			continue
		}
		total += res.Imported
	}
	return total, nil
}

func (s *SyncService) importEntries(ctx context.Context, accountID int64, entries []bank.StatementEntry) (imported, skipped int, err error) {
	for _, entry := range entries {
		exists, err := s.storage.TransactionExists(ctx, accountID, entry.Date, entry.Description, entry.Amount.Cents)
		if err != nil {
			return imported, skipped, fmt.Errorf("duplicate probe: %w", err)
		}
		if exists {
			skipped++
			continue
		}

		tx := core.Transaction{
			AccountID:   accountID,
			Date:        entry.Date,
			Description: entry.Description,
			Amount:      entry.Amount,
			Type:        core.Debit,
			CategoryID:  s.resolveCategory(ctx, entry.Description),
		}
		if err := tx.Validate(); err != nil {
			slog.WarnContext(ctx, "Dropping invalid statement entry",
				"account_id", accountID, "description", entry.Description, "error", err)
			continue
		}
		if _, err := s.storage.InsertTransaction(ctx, tx); err != nil {
			return imported, skipped, fmt.Errorf("insert transaction: %w", err)
		}
		imported++
	}
	return imported, skipped, nil
}

// resolveCategory maps a description to a category ID via the keyword
// table, or nil when no keyword matches or the category row is missing.
func (s *SyncService) resolveCategory(ctx context.Context, description string) *int64 {
	name, ok := core.CategorizeDescription(description)
	if !ok {
		return nil
	}
	id, err := s.storage.CategoryIDByName(ctx, name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Category lookup failed", "category", name, "error", err)
		}
		return nil
	}
	return &id
}
