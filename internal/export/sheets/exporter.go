// Package sheets exports monthly spending reports to a Google
// spreadsheet. The export is optional: without a configured
// spreadsheet the rest of the application runs unaffected.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
)

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	reportSheet   string
}

// NewFromEnv builds an exporter against the given spreadsheet using
// service account credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context, spreadsheetID, reportSheet string) (*Exporter, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(reportSheet) == "" {
		reportSheet = "Spending"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		reportSheet:   reportSheet,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportMonthlySummary replaces the report sheet's contents with one
// row per category bucket for the summary's month.
func (e *Exporter) ExportMonthlySummary(ctx context.Context, summary core.SpendingSummary) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	clearRange := fmt.Sprintf("%s!A:C", e.reportSheet)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear report sheet %s: %w", e.reportSheet, err)
	}

	labels := summary.ChartLabels()
	values := summary.ChartValues()

	rows := make([][]any, 0, len(labels)+2)
	rows = append(rows, []any{"Month", "Category", "Amount"})
	for i := range labels {
		rows = append(rows, []any{summary.Month.String(), labels[i], values[i]})
	}
	rows = append(rows, []any{summary.Month.String(), "Total", summary.Total().Units()})

	writeRange := fmt.Sprintf("%s!A1:C%d", e.reportSheet, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write report sheet %s: %w", e.reportSheet, err)
	}

	slog.InfoContext(ctx, "Spending report exported",
		"month", summary.Month.String(),
		"rows", len(rows),
		"sheet", e.reportSheet)

	return nil
}
