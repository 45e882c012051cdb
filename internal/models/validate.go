package models

import (
	"fmt"
	"strings"
)

// ValidationError describes one malformed or missing transaction field.
// It is always recoverable: callers convert it into a clarification
// request, never a crash.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateDraft checks a candidate transaction against the invariants that
// hold for every committed transaction: strictly positive amount, a
// recognized 3-letter currency code, a known type, and target fields for
// conversions.
func ValidateDraft(draft *TransactionDraft) error {
	if !ValidTransactionType(draft.Type) {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown transaction type %q", draft.Type)}
	}
	if !draft.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "amount must be a positive number"}
	}
	if !validCurrencyCode(draft.Currency) {
		return &ValidationError{Field: "currency", Reason: fmt.Sprintf("%q is not a 3-letter currency code", draft.Currency)}
	}
	if strings.TrimSpace(draft.Description) == "" {
		return &ValidationError{Field: "description", Reason: "description is required"}
	}
	if draft.Type == TypeConvert {
		if !validCurrencyCode(draft.TargetCurrency) {
			return &ValidationError{Field: "target_currency", Reason: "conversion requires a target currency"}
		}
		if !draft.TargetAmount.IsPositive() {
			return &ValidationError{Field: "target_amount", Reason: "conversion requires a positive target amount"}
		}
	}
	return nil
}

func validCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
