package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Debit  TransactionType = "debit"
	Credit TransactionType = "credit"
)

type (
	TransactionType string

	Money struct {
		Cents int64
	}

	// Transaction is a single spend pulled from a bank statement.
	// CategoryID is nil while the transaction is uncategorized.
	Transaction struct {
		ID          int64
		AccountID   int64
		Date        time.Time
		Description string
		Amount      Money
		Type        TransactionType
		CategoryID  *int64
		CreatedAt   time.Time
	}

	Category struct {
		ID   int64
		Name string
	}

	// Account is a linked bank account. LastSyncedAt is zero until the
	// first statement pull completes.
	Account struct {
		ID            int64
		BankName      string
		Nickname      string
		ConsentStatus string
		Active        bool
		LastSyncedAt  time.Time
		CreatedAt     time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrEmptyBankName    = errors.New("empty bank name")
	ErrEmptyNickname    = errors.New("empty account nickname")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	switch t.Type {
	case Debit, Credit:
	default:
		return fmt.Errorf("invalid transaction type %q", t.Type)
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.BankName) == "" {
		return ErrEmptyBankName
	}
	if strings.TrimSpace(a.Nickname) == "" {
		return ErrEmptyNickname
	}
	if len(a.BankName) > 255 || len(a.Nickname) > 255 {
		return errors.New("name too long (max 255 characters)")
	}
	return nil
}

// MonthKey identifies a calendar month, the granularity every listing
// and aggregate in the system is filtered by.
type MonthKey struct {
	Year  int
	Month int // 1-12
}

// CurrentMonth returns the MonthKey for the given instant.
func CurrentMonth(now time.Time) MonthKey {
	return MonthKey{Year: now.Year(), Month: int(now.Month())}
}

// ParseMonthKey parses "YYYY-MM". Malformed input falls back to the
// current month rather than failing, matching the query-parameter
// contract of the spending endpoints.
func ParseMonthKey(s string, now time.Time) MonthKey {
	var year, month int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%4d-%2d", &year, &month); err != nil || month < 1 || month > 12 || year < 1 {
		return CurrentMonth(now)
	}
	return MonthKey{Year: year, Month: month}
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// Prev returns the MonthKey offset months back, crossing year
// boundaries as needed.
func (k MonthKey) Prev(offset int) MonthKey {
	y, m := k.Year, k.Month-offset
	for m <= 0 {
		m += 12
		y--
	}
	return MonthKey{Year: y, Month: m}
}
