package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  statusError,
		"message": message,
	})
}

// parseMonthParam reads the ?month=YYYY-MM filter, defaulting to the
// current month on absence or malformed input.
func parseMonthParam(r *http.Request) core.MonthKey {
	return core.ParseMonthKey(r.URL.Query().Get("month"), time.Now())
}

// parseAccountParam reads the ?account= filter. "all" or absence means
// no filter; anything else must be a numeric account ID.
func parseAccountParam(r *http.Request) (*int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("account"))
	if raw == "" || raw == "all" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return nil, false
	}
	return &id, true
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

type transactionPayload struct {
	ID          int64   `json:"id"`
	AccountID   int64   `json:"account_id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	CategoryID  *int64  `json:"category_id"`
}

func toTransactionPayload(t core.Transaction) transactionPayload {
	return transactionPayload{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Date:        t.Date.Format("2006-01-02"),
		Description: t.Description,
		Amount:      t.Amount.Units(),
		Type:        string(t.Type),
		CategoryID:  t.CategoryID,
	}
}

type accountPayload struct {
	ID               int64   `json:"id"`
	BankName         string  `json:"bank_name"`
	Nickname         string  `json:"nickname"`
	Active           bool    `json:"is_active"`
	LastSyncedAt     string  `json:"last_synced_at,omitempty"`
	TransactionCount int64   `json:"transaction_count"`
	TotalSpent       float64 `json:"total_spent"`
}

func toAccountPayload(a core.Account, count, totalCents int64) accountPayload {
	p := accountPayload{
		ID:               a.ID,
		BankName:         a.BankName,
		Nickname:         a.Nickname,
		Active:           a.Active,
		TransactionCount: count,
		TotalSpent:       core.Money{Cents: totalCents}.Units(),
	}
	if !a.LastSyncedAt.IsZero() {
		p.LastSyncedAt = a.LastSyncedAt.UTC().Format(time.RFC3339)
	}
	return p
}
