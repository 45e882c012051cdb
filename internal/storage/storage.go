package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
)

// ErrNotFound is returned when a requested record does not exist. Callers
// that auto-provision (groups, users, wallets) check for it explicitly.
var ErrNotFound = errors.New("storage: not found")

// ErrorLog is one row in the error/audit log table.
type ErrorLog struct {
	Timestamp time.Time
	Level     string
	ChatID    int64
	UserID    int64
	Action    string
	Message   string
	ErrText   string
}

// Storage is the sheet-like system of record. Every table is addressed by
// the group's sheet locator; the groups table itself maps chat ids to
// locators. Caches are strictly derived from this layer.
type Storage interface {
	GetGroup(ctx context.Context, chatID int64) (*models.Group, error)
	CreateGroup(ctx context.Context, group *models.Group) error
	UpdateGroupStatus(ctx context.Context, chatID int64, status models.GroupStatus) error

	GetSettings(ctx context.Context, sheetID string) (*models.GroupSettings, error)
	SaveSettings(ctx context.Context, sheetID string, settings *models.GroupSettings) error

	GetUser(ctx context.Context, sheetID string, userID int64) (*models.User, error)
	SaveUser(ctx context.Context, sheetID string, user *models.User) error

	AppendTransaction(ctx context.Context, sheetID string, txn *models.Transaction) error
	GetTransactions(ctx context.Context, sheetID string, limit int) ([]*models.Transaction, error)
	GetTransactionsByCurrency(ctx context.Context, sheetID, currency string) ([]*models.Transaction, error)
	GetLastUserTransaction(ctx context.Context, sheetID string, userID int64) (*models.Transaction, error)
	CancelTransaction(ctx context.Context, sheetID, txnID string, byUser int64, at time.Time) error

	GetWallet(ctx context.Context, sheetID, currency string) (*models.Wallet, error)
	SaveWallet(ctx context.Context, sheetID string, wallet *models.Wallet) error

	GetDailyLimit(ctx context.Context, sheetID, date string) (*models.DailyLimit, error)
	SaveDailyLimit(ctx context.Context, sheetID string, limit *models.DailyLimit) error
	GetMonthlyLimit(ctx context.Context, sheetID, month string) (*models.MonthlyLimit, error)
	SaveMonthlyLimit(ctx context.Context, sheetID string, limit *models.MonthlyLimit) error

	AppendMemory(ctx context.Context, sheetID string, entry *models.MemoryEntry) error
	GetMemory(ctx context.Context, sheetID string, userID int64, threadID string, limit int) ([]models.MemoryEntry, error)
	ClearMemory(ctx context.Context, sheetID string, userID int64, threadID string) error

	AppendErrorLog(ctx context.Context, sheetID string, entry *ErrorLog) error

	Close() error
}
