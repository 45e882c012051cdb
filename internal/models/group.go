package models

import "time"

// GroupStatus is the lifecycle state of a group. Groups are never deleted,
// only flagged.
type GroupStatus string

const (
	GroupActive   GroupStatus = "ACTIVE"
	GroupInactive GroupStatus = "INACTIVE"
	GroupBanned   GroupStatus = "BANNED"
)

// Group represents a messaging chat mapped 1:1 to its backing sheet.
type Group struct {
	ChatID      int64       `json:"chat_id"`
	Name        string      `json:"name"`
	OwnerUserID int64       `json:"owner_user_id"`
	SheetID     string      `json:"sheet_id"`
	Status      GroupStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// GroupSettings holds the per-group configuration stored in the Settings tab.
type GroupSettings struct {
	GroupName               string  `json:"group_name"`
	Currency                string  `json:"currency"`
	DailyLimit              float64 `json:"daily_limit"`
	MonthlyLimit            float64 `json:"monthly_limit"`
	Timezone                string  `json:"timezone"`
	EnableChat              bool    `json:"enable_chat"`
	RequireAdminApproval    bool    `json:"require_admin_approval"`
	BigTransactionThreshold float64 `json:"big_transaction_threshold"`
	ExchangeRate            float64 `json:"exchange_rate"`
}

// DefaultGroupSettings are applied when a group is auto-provisioned on its
// first message.
func DefaultGroupSettings(name string) GroupSettings {
	return GroupSettings{
		GroupName:               name,
		Currency:                "IDR",
		DailyLimit:              20,
		MonthlyLimit:            1000,
		Timezone:                "Asia/Jakarta",
		EnableChat:              true,
		RequireAdminApproval:    true,
		BigTransactionThreshold: 1000000,
		ExchangeRate:            15000,
	}
}
