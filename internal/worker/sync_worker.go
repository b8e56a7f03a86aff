// Package worker runs the background side of account sync: it drains
// queued sync requests and pulls statements into the ledger.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/services"
)

type SyncWorker struct {
	sync *services.SyncService
}

func NewSyncWorker(syncService *services.SyncService) *SyncWorker {
	return &SyncWorker{sync: syncService}
}

// HandleSyncMessage processes one queued account sync request.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.AccountSyncMessage) error {
	slog.InfoContext(ctx, "Processing account sync message",
		"account_id", msg.AccountID,
		"requested_at", msg.RequestedAt)

	res, err := w.sync.SyncAccount(ctx, msg.AccountID, time.Now())
	if err != nil {
		return fmt.Errorf("sync account %d: %w", msg.AccountID, err)
	}

	slog.InfoContext(ctx, "Account sync message handled",
		"account_id", msg.AccountID,
		"imported", res.Imported,
		"skipped", res.Skipped)

	return nil
}

// StartupSyncCheck pulls every account once at worker startup. It
// recovers from sync requests lost while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	imported, err := w.sync.SyncAllAccounts(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "imported", imported)
	return nil
}
