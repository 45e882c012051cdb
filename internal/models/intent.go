package models

import "encoding/json"

// IntentKind is the closed set of interpretations the pipeline acts on.
// Unknown intents from the model pass through as IntentUnknown with their
// entities preserved.
type IntentKind string

const (
	IntentCreateTransaction   IntentKind = "create_transaction"
	IntentClarificationNeeded IntentKind = "clarification_needed"
	IntentBalanceInquiry      IntentKind = "balance_inquiry"
	IntentHistoryInquiry      IntentKind = "history_inquiry"
	IntentCancelLast          IntentKind = "cancel_last"
	IntentChat                IntentKind = "chat"
	IntentHelp                IntentKind = "help"
	IntentUnknown             IntentKind = "unknown"
)

// Intent is the structured interpretation of a message.
type Intent struct {
	Kind       IntentKind `json:"intent"`
	Reply      string     `json:"reply"`
	Confidence float64    `json:"confidence"`

	// Draft is set only when Kind == IntentCreateTransaction, after the
	// extracted entities passed transaction validation.
	Draft *TransactionDraft `json:"draft,omitempty"`

	// Entities preserves the raw extracted fields for pass-through intents.
	Entities map[string]json.RawMessage `json:"entities,omitempty"`

	TokensUsed int    `json:"tokens_used,omitempty"`
	Model      string `json:"model,omitempty"`
}
