package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// DemoService reseeds the ledger with generated statement history so a
// fresh install has something to look at.
type DemoService struct {
	storage *storage.SQLiteRepository
	sync    *SyncService
	months  int
}

func NewDemoService(repo *storage.SQLiteRepository, syncService *SyncService, months int) *DemoService {
	return &DemoService{storage: repo, sync: syncService, months: months}
}

// GenerateDemoData wipes all transactions, then fills the configured
// number of months of history for every account. Accounts are seeded
// concurrently; months within an account stay sequential so the
// duplicate probe sees earlier inserts.
func (d *DemoService) GenerateDemoData(ctx context.Context, now time.Time) (int, error) {
	accounts, err := d.storage.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	if err := d.storage.DeleteAllTransactions(ctx); err != nil {
		return 0, fmt.Errorf("clear transactions: %w", err)
	}

	current := core.CurrentMonth(now)

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, account := range accounts {
		g.Go(func() error {
			for offset := d.months - 1; offset >= 0; offset-- {
				month := current.Prev(offset)
				entries := d.sync.source.GenerateMonthlyStatement(month)
				imported, _, err := d.sync.importEntries(gctx, account.ID, entries)
				if err != nil {
					return fmt.Errorf("seed account %d month %s: %w", account.ID, month, err)
				}
				total.Add(int64(imported))
			}
			return d.storage.MarkAccountSynced(gctx, account.ID, now)
		})
	}
	if err := g.Wait(); err != nil {
		return int(total.Load()), err
	}

	slog.InfoContext(ctx, "Demo data generated",
		"accounts", len(accounts),
		"months", d.months,
		"transactions", total.Load())

	return int(total.Load()), nil
}
