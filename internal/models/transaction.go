package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the monetary effect of a transaction.
type TransactionType string

const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
	TypeConvert  TransactionType = "convert"
)

// ValidTransactionType reports whether t is one of the known types.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer, TypeConvert:
		return true
	}
	return false
}

// Transaction is an immutable-once-committed financial event. Cancellation
// is a soft flag, never a physical delete.
type Transaction struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    int64           `json:"user_id"`
	Username  string          `json:"username"`
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`

	// Convert-only fields: target side of a currency conversion. The
	// exchange rate is caller-supplied and trusted, never recomputed.
	TargetCurrency string          `json:"target_currency,omitempty"`
	TargetAmount   decimal.Decimal `json:"target_amount,omitempty"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate,omitempty"`

	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Notes       string   `json:"notes,omitempty"`

	CountsToDailyLimit bool `json:"counts_to_daily_limit"`

	Canceled   bool       `json:"canceled"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
	CanceledBy int64      `json:"canceled_by,omitempty"`

	// Approval fields transition only from unset to set.
	RequiresAdminApproval bool       `json:"requires_admin_approval"`
	ApprovedBy            int64      `json:"approved_by,omitempty"`
	ApprovedAt            *time.Time `json:"approved_at,omitempty"`
}

// TransactionDraft is the unvalidated candidate produced by intent
// extraction, before the recorder assigns identity and flags.
type TransactionDraft struct {
	UserID         int64           `json:"user_id"`
	Username       string          `json:"username"`
	Type           TransactionType `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	TargetCurrency string          `json:"target_currency,omitempty"`
	TargetAmount   decimal.Decimal `json:"target_amount,omitempty"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate,omitempty"`
	Description    string          `json:"description"`
	Category       string          `json:"category,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// Wallet is a per-currency running balance owned by a group. Overdraft is
// allowed: no negative-balance constraint is enforced.
type Wallet struct {
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy int64           `json:"updated_by"`
}

// DailyLimit tracks cumulative spend for one calendar day.
type DailyLimit struct {
	Date            string          `json:"date"` // YYYY-MM-DD in group timezone
	Spent           decimal.Decimal `json:"spent"`
	Limit           decimal.Decimal `json:"limit"`
	Warnings        int             `json:"warnings"`
	LastTransaction string          `json:"last_transaction"`
}

// MonthlyLimit tracks cumulative spend for one calendar month.
type MonthlyLimit struct {
	Month     string          `json:"month"` // YYYY-MM in group timezone
	Spent     decimal.Decimal `json:"spent"`
	Limit     decimal.Decimal `json:"limit"`
	UpdatedAt time.Time       `json:"updated_at"`
}
