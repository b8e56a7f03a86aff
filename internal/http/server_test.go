package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fintrack/internal/bank"
	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

type testEnv struct {
	server *Server
	repo   *storage.SQLiteRepository
}

func newTestEnv(t *testing.T, enqueuer SyncEnqueuer) *testEnv {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	syncSvc := services.NewSyncService(repo, bank.NewFeed(nil))
	demoSvc := services.NewDemoService(repo, syncSvc, 2)

	s := NewServer(":0", repo, syncSvc, demoSvc, enqueuer, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})

	return &testEnv{server: s, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func seedTransaction(t *testing.T, repo *storage.SQLiteRepository, date, desc string, cents int64) (accountID, txID int64) {
	t.Helper()
	ctx := context.Background()
	accountID, err := repo.CreateAccount(ctx, core.Account{BankName: "HDFC", Nickname: "Main"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	d, _ := time.Parse("2006-01-02", date)
	txID, err = repo.InsertTransaction(ctx, core.Transaction{
		AccountID:   accountID,
		Date:        d,
		Description: desc,
		Amount:      core.Money{Cents: cents},
		Type:        core.Debit,
	})
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	return accountID, txID
}

func TestCategorizeTransaction(t *testing.T) {
	env := newTestEnv(t, nil)
	_, txID := seedTransaction(t, env.repo, "2026-07-10", "Payment to Netflix", 19900)

	catID, err := env.repo.CategoryIDByName(context.Background(), "Subscriptions")
	if err != nil {
		t.Fatalf("CategoryIDByName: %v", err)
	}

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/categorize", txID), map[string]any{"category_id": catID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "success" {
		t.Fatalf("status field = %v", body["status"])
	}
	tx, ok := body["transaction"].(map[string]any)
	if !ok {
		t.Fatalf("missing transaction payload: %v", body)
	}
	if got := tx["category_id"].(float64); int64(got) != catID {
		t.Fatalf("category_id = %v, want %d", got, catID)
	}

	// Clearing back to uncategorized.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/categorize", txID), map[string]any{"category_id": nil})
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	tx = decodeBody(t, rec)["transaction"].(map[string]any)
	if tx["category_id"] != nil {
		t.Fatalf("category_id = %v, want null", tx["category_id"])
	}
}

func TestCategorizeUnknownTransaction(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/transactions/999/categorize", map[string]any{"category_id": nil})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "error" {
		t.Fatalf("status field = %v", body["status"])
	}
}

func TestCategorizeInvalidCategory(t *testing.T) {
	env := newTestEnv(t, nil)
	_, txID := seedTransaction(t, env.repo, "2026-07-10", "Payment to Uber", 35000)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/categorize", txID), map[string]any{"category_id": 99999})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "error" {
		t.Fatalf("status field = %v", body["status"])
	}
}

func TestSpendingByCategoryReflectsCategorize(t *testing.T) {
	env := newTestEnv(t, nil)
	_, txID := seedTransaction(t, env.repo, "2026-07-10", "Payment to Zomato", 45000)

	// First read: everything uncategorized.
	rec := env.do(t, http.MethodGet, "/api/spending-by-category?month=2026-07&account=all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	labels := body["labels"].([]any)
	if len(labels) != 1 || labels[0] != "Uncategorized" {
		t.Fatalf("labels = %v, want [Uncategorized]", labels)
	}
	if data := body["data"].([]any); data[0].(float64) != 450 {
		t.Fatalf("data = %v, want [450]", data)
	}

	// Categorize and re-read; the cached aggregate must be dropped.
	catID, _ := env.repo.CategoryIDByName(context.Background(), "Food & Drink")
	if rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/categorize", txID), map[string]any{"category_id": catID}); rec.Code != http.StatusOK {
		t.Fatalf("categorize status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/spending-by-category?month=2026-07&account=all", nil)
	body = decodeBody(t, rec)
	labels = body["labels"].([]any)
	if len(labels) != 1 || labels[0] != "Food & Drink" {
		t.Fatalf("labels after categorize = %v", labels)
	}
}

func TestSpendingByCategoryBadAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/spending-by-category?account=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAccountEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/accounts", map[string]any{"bank_name": "SBI", "nickname": "Joint"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("link status = %d, body = %s", rec.Code, rec.Body.String())
	}
	accountID := int64(decodeBody(t, rec)["account_id"].(float64))

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/accounts/%d/rename", accountID), map[string]any{"nickname": "Family"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/accounts/%d/toggle", accountID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["is_active"] != false {
		t.Fatalf("is_active = %v, want false", body["is_active"])
	}

	rec = env.do(t, http.MethodGet, "/api/accounts", nil)
	accounts := decodeBody(t, rec)["accounts"].([]any)
	if len(accounts) != 1 {
		t.Fatalf("accounts = %v", accounts)
	}
	account := accounts[0].(map[string]any)
	if account["nickname"] != "Family" || account["is_active"] != false {
		t.Fatalf("account payload = %v", account)
	}

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/accounts/%d/delete", accountID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/accounts/%d/delete", accountID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestLinkAccountValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/accounts", map[string]any{"bank_name": "", "nickname": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBankSyncInlineScopedToAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	first, err := env.repo.CreateAccount(ctx, core.Account{BankName: "HDFC", Nickname: "Main"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	second, err := env.repo.CreateAccount(ctx, core.Account{BankName: "SBI", Nickname: "Joint"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/bank/sync", map[string]any{"account_id": first})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "success" {
		t.Fatalf("status field = %v", body["status"])
	}
	if body["new_transactions"].(float64) == 0 {
		t.Fatalf("expected transactions imported")
	}

	// Only the named account gets a statement pull.
	count, _, err := env.repo.AccountStats(ctx, second)
	if err != nil {
		t.Fatalf("AccountStats: %v", err)
	}
	if count != 0 {
		t.Fatalf("account %d has %d transactions, want 0", second, count)
	}
}

func TestBankSyncRequiresAccountID(t *testing.T) {
	env := newTestEnv(t, nil)
	for name, body := range map[string]any{
		"empty body": nil,
		"no field":   map[string]any{},
		"zero id":    map[string]any{"account_id": 0},
	} {
		rec := env.do(t, http.MethodPost, "/api/bank/sync", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", name, rec.Code)
		}
	}
}

func TestBankSyncUnknownAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/bank/sync", map[string]any{"account_id": 999})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

type fakeEnqueuer struct {
	accountIDs []int64
}

func (f *fakeEnqueuer) PublishAccountSync(ctx context.Context, accountID int64) error {
	f.accountIDs = append(f.accountIDs, accountID)
	return nil
}

func TestBankSyncEnqueues(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	env := newTestEnv(t, enqueuer)
	ctx := context.Background()

	first, _ := env.repo.CreateAccount(ctx, core.Account{BankName: "HDFC", Nickname: "Main"})
	if _, err := env.repo.CreateAccount(ctx, core.Account{BankName: "SBI", Nickname: "Other"}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/bank/sync", map[string]any{"account_id": first})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(enqueuer.accountIDs) != 1 || enqueuer.accountIDs[0] != first {
		t.Fatalf("enqueued = %v, want only account %d", enqueuer.accountIDs, first)
	}

	rec = env.do(t, http.MethodPost, "/api/bank/sync", map[string]any{"account_id": 999})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown account status = %d, want 404", rec.Code)
	}
}

func TestGenerateDemoData(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.repo.CreateAccount(context.Background(), core.Account{BankName: "HDFC", Nickname: "Main"}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/demo/generate-data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["transactions_generated"].(float64) == 0 {
		t.Fatalf("expected demo transactions")
	}

	rec = env.do(t, http.MethodGet, "/api/months", nil)
	months := decodeBody(t, rec)["months"].([]any)
	if len(months) != 2 {
		t.Fatalf("months = %v, want 2 entries", months)
	}
}

type fakeExporter struct {
	summaries []core.SpendingSummary
	err       error
}

func (f *fakeExporter) ExportMonthlySummary(ctx context.Context, summary core.SpendingSummary) error {
	if f.err != nil {
		return f.err
	}
	f.summaries = append(f.summaries, summary)
	return nil
}

func TestExportSpending(t *testing.T) {
	env := newTestEnv(t, nil)
	exporter := &fakeExporter{}
	env.server.exporter = exporter
	seedTransaction(t, env.repo, "2026-07-10", "Payment to Zomato", 45000)

	rec := env.do(t, http.MethodPost, "/api/export/spending?month=2026-07", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(exporter.summaries) != 1 {
		t.Fatalf("exports = %d, want 1", len(exporter.summaries))
	}
	if got := exporter.summaries[0].Month.String(); got != "2026-07" {
		t.Fatalf("month = %s", got)
	}
}

func TestExportSpendingNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/export/spending", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := env.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	// Drive one counted request and one cache miss.
	if rec := env.do(t, http.MethodGet, "/api/spending-by-category", nil); rec.Code != http.StatusOK {
		t.Fatalf("spending status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	out := rec.Body.String()
	for _, line := range []string{
		"fintrack_http_requests_total 1",
		"fintrack_summary_cache_misses_total 1",
	} {
		if !strings.Contains(out, line) {
			t.Fatalf("metrics output missing %q:\n%s", line, out)
		}
	}
}
