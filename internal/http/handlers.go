package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	month := parseMonthParam(r)
	accountID, ok := parseAccountParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account filter")
		return
	}

	txs, err := s.storage.ListTransactions(r.Context(), month, accountID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List transactions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load transactions")
		return
	}

	payload := make([]transactionPayload, 0, len(txs))
	for _, t := range txs {
		payload = append(payload, toTransactionPayload(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       statusSuccess,
		"month":        month.String(),
		"transactions": payload,
	})
}

type categorizeBody struct {
	CategoryID *int64 `json:"category_id"`
}

// handleCategorize reassigns a transaction's category. Null clears it.
// Unknown transactions are 404; unknown categories are 400 with an
// application-level error status in the body.
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	txID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	var body categorizeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := s.storage.UpdateTransactionCategory(r.Context(), txID, body.CategoryID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Transaction not found")
		return
	case errors.Is(err, storage.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, "Invalid category")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Categorize failed", "transaction_id", txID, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not update category")
		return
	}

	s.invalidateSummaries()

	tx, err := s.storage.GetTransaction(r.Context(), txID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Reload transaction failed", "transaction_id", txID, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load updated transaction")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      statusSuccess,
		"message":     "Category updated",
		"transaction": toTransactionPayload(tx),
	})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.storage.ListCategories(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List categories failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load categories")
		return
	}

	type categoryPayload struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	payload := make([]categoryPayload, 0, len(cats))
	for _, c := range cats {
		payload = append(payload, categoryPayload{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     statusSuccess,
		"categories": payload,
	})
}

// handleSpendingByCategory serves the label/value series the spending
// chart renders. Aggregates are cached briefly per month/account pair.
func (s *Server) handleSpendingByCategory(w http.ResponseWriter, r *http.Request) {
	month := parseMonthParam(r)
	accountID, ok := parseAccountParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account filter")
		return
	}

	key := s.summaryCacheKey(month, accountID)
	summary, hit := s.summaryCache.Get(key)
	if hit {
		s.metrics.summaryCacheHits.Add(1)
	} else {
		s.metrics.summaryCacheMisses.Add(1)
		var err error
		summary, err = s.storage.SpendingByCategory(r.Context(), month, accountID)
		if err != nil {
			slog.ErrorContext(r.Context(), "Spending aggregate failed", "month", month.String(), "error", err)
			writeError(w, http.StatusInternalServerError, "Could not compute spending")
			return
		}
		s.summaryCache.Set(key, summary)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": statusSuccess,
		"month":  month.String(),
		"labels": summary.ChartLabels(),
		"data":   summary.ChartValues(),
		"total":  summary.Total().Units(),
	})
}

func (s *Server) handleListMonths(w http.ResponseWriter, r *http.Request) {
	accountID, ok := parseAccountParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account filter")
		return
	}

	months, err := s.storage.MonthsWithTransactions(r.Context(), accountID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List months failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load months")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": statusSuccess,
		"months": months,
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.storage.ListAccounts(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List accounts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load accounts")
		return
	}

	payload := make([]accountPayload, 0, len(accounts))
	for _, a := range accounts {
		count, totalCents, err := s.storage.AccountStats(r.Context(), a.ID)
		if err != nil {
			slog.WarnContext(r.Context(), "Account stats failed", "account_id", a.ID, "error", err)
		}
		payload = append(payload, toAccountPayload(a, count, totalCents))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   statusSuccess,
		"accounts": payload,
	})
}

type linkAccountBody struct {
	BankName string `json:"bank_name"`
	Nickname string `json:"nickname"`
}

func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	var body linkAccountBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account := core.Account{BankName: strings.TrimSpace(body.BankName), Nickname: strings.TrimSpace(body.Nickname)}
	if err := account.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.storage.CreateAccount(r.Context(), account)
	if err != nil {
		slog.ErrorContext(r.Context(), "Link account failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not link account")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":     statusSuccess,
		"message":    "Account linked",
		"account_id": id,
	})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	err := s.storage.DeleteAccount(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Delete account failed", "account_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not delete account")
		return
	}

	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  statusSuccess,
		"message": "Account and its transactions deleted",
	})
}

type renameAccountBody struct {
	Nickname string `json:"nickname"`
}

func (s *Server) handleRenameAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	var body renameAccountBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	nickname := strings.TrimSpace(body.Nickname)
	if nickname == "" {
		writeError(w, http.StatusBadRequest, "Nickname cannot be empty")
		return
	}

	err := s.storage.RenameAccount(r.Context(), id, nickname)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Rename account failed", "account_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not rename account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  statusSuccess,
		"message": "Account renamed",
	})
}

func (s *Server) handleToggleAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	active, err := s.storage.ToggleAccount(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Toggle account failed", "account_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not toggle account")
		return
	}

	message := "Account paused"
	if active {
		message = "Account resumed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    statusSuccess,
		"message":   message,
		"is_active": active,
	})
}

type bankSyncBody struct {
	AccountID *int64 `json:"account_id"`
}

// handleBankSync pulls the named account's statement. With a queue
// configured the pull is enqueued for the worker and the response
// reports acceptance; without one the sync runs inline. The request
// must name an account; syncing everything is the worker's startup
// concern, not an API operation.
func (s *Server) handleBankSync(w http.ResponseWriter, r *http.Request) {
	var body bankSyncBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AccountID == nil || *body.AccountID < 1 {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	accountID := *body.AccountID

	if s.enqueuer != nil {
		if _, err := s.storage.GetAccount(r.Context(), accountID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Account not found")
				return
			}
			slog.ErrorContext(r.Context(), "Account lookup for sync failed", "account_id", accountID, "error", err)
			writeError(w, http.StatusInternalServerError, "Could not start sync")
			return
		}
		if err := s.enqueuer.PublishAccountSync(r.Context(), accountID); err != nil {
			slog.ErrorContext(r.Context(), "Enqueue sync failed", "account_id", accountID, "error", err)
			writeError(w, http.StatusInternalServerError, "Could not queue sync")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":     statusSuccess,
			"message":    "Sync queued",
			"account_id": accountID,
		})
		return
	}

	result, err := s.syncSvc.SyncAccount(r.Context(), accountID, time.Now())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Inline sync failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "Sync failed")
		return
	}

	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           statusSuccess,
		"message":          "Sync complete",
		"account_id":       accountID,
		"new_transactions": result.Imported,
	})
}

// handleExportSpending pushes the month's aggregate to the configured
// report sheet.
func (s *Server) handleExportSpending(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "Spending export is not configured")
		return
	}

	month := parseMonthParam(r)
	accountID, ok := parseAccountParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account filter")
		return
	}

	summary, err := s.storage.SpendingByCategory(r.Context(), month, accountID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Spending aggregate failed", "month", month.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "Could not compute spending")
		return
	}

	if err := s.exporter.ExportMonthlySummary(r.Context(), summary); err != nil {
		slog.ErrorContext(r.Context(), "Spending export failed", "month", month.String(), "error", err)
		writeError(w, http.StatusBadGateway, "Export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  statusSuccess,
		"message": "Spending report exported",
		"month":   month.String(),
	})
}

func (s *Server) handleGenerateDemoData(w http.ResponseWriter, r *http.Request) {
	total, err := s.demoSvc.GenerateDemoData(r.Context(), time.Now())
	if err != nil {
		slog.ErrorContext(r.Context(), "Demo data generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not generate demo data")
		return
	}

	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                 statusSuccess,
		"message":                "Demo data generated",
		"transactions_generated": total,
	})
}
