// Package ledger commits confirmed transaction drafts: it validates,
// assigns identity, appends to the transaction ledger and then rolls the
// derived aggregates (wallets, daily and monthly counters). The ledger
// append is the only step that can fail a commit; aggregate updates are
// repaired on read when they drift.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/audit"
	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
	"github.com/ignite88-dev/finance-bot-cloud/internal/storage"
	"github.com/ignite88-dev/finance-bot-cloud/pkg/retry"
)

// ErrGroupInactive is returned when recording is attempted in a group that
// is not ACTIVE.
var ErrGroupInactive = errors.New("ledger: group is not active")

// Result reports the outcome of a successful commit: the stored
// transaction plus the aggregate state after the update, for the reply.
type Result struct {
	Transaction *models.Transaction
	Balance     decimal.Decimal
	// TargetBalance is set for conversions: the balance of the currency
	// that received funds.
	TargetBalance decimal.Decimal
	Daily         *models.DailyLimit
	Monthly       *models.MonthlyLimit
	// DailyExceeded and MonthlyExceeded flag that this commit pushed the
	// counter past its configured limit. A zero limit disables the check.
	DailyExceeded   bool
	MonthlyExceeded bool
	// AggregatesStale is set when a wallet or counter update failed after
	// the ledger append succeeded. The transaction is committed either way.
	AggregatesStale bool
}

type Recorder struct {
	storage  storage.Storage
	audit    *audit.Logger
	retryCfg retry.Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewRecorder(st storage.Storage, auditLog *audit.Logger, retryCfg retry.Config, logger *zap.Logger) *Recorder {
	return &Recorder{
		storage:  st,
		audit:    auditLog,
		retryCfg: retryCfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Record validates the draft and commits it. The ledger append is retried
// on transient failure and is authoritative: once it succeeds the
// transaction exists, even if the aggregate updates below it fail.
func (r *Recorder) Record(ctx context.Context, grp models.Group, settings models.GroupSettings, draft *models.TransactionDraft) (*Result, error) {
	if grp.Status != models.GroupActive {
		return nil, ErrGroupInactive
	}
	if err := models.ValidateDraft(draft); err != nil {
		return nil, err
	}

	txn := r.buildTransaction(settings, draft)

	err := retry.Do(ctx, r.retryCfg, func() error {
		return r.storage.AppendTransaction(ctx, grp.SheetID, txn)
	})
	if err != nil {
		r.audit.Record(ctx, audit.Event{
			Kind:    audit.KindTransactionFailed,
			ChatID:  grp.ChatID,
			UserID:  txn.UserID,
			SheetID: grp.SheetID,
			Message: "Failed to append transaction",
			Err:     err,
		})
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	result := &Result{Transaction: txn}
	r.applyAggregates(ctx, grp, settings, txn, result)

	r.audit.Record(ctx, audit.Event{
		Kind:    audit.KindTransactionCreated,
		ChatID:  grp.ChatID,
		UserID:  txn.UserID,
		SheetID: grp.SheetID,
		Message: fmt.Sprintf("Recorded %s %s %s", txn.Type, txn.Amount, txn.Currency),
	})
	return result, nil
}

func (r *Recorder) buildTransaction(settings models.GroupSettings, draft *models.TransactionDraft) *models.Transaction {
	txn := &models.Transaction{
		ID:             "txn_" + uuid.New().String(),
		Timestamp:      r.now(),
		UserID:         draft.UserID,
		Username:       draft.Username,
		Type:           draft.Type,
		Amount:         draft.Amount,
		Currency:       draft.Currency,
		TargetCurrency: draft.TargetCurrency,
		TargetAmount:   draft.TargetAmount,
		ExchangeRate:   draft.ExchangeRate,
		Description:    draft.Description,
		Category:       draft.Category,
		Tags:           draft.Tags,
		Notes:          draft.Notes,
	}
	txn.CountsToDailyLimit = txn.Type == models.TypeExpense

	big := settings.BigTransactionThreshold > 0 &&
		txn.Amount.GreaterThanOrEqual(decimal.NewFromFloat(settings.BigTransactionThreshold))
	txn.RequiresAdminApproval = settings.RequireAdminApproval && big

	return txn
}

func (r *Recorder) applyAggregates(ctx context.Context, grp models.Group, settings models.GroupSettings, txn *models.Transaction, result *Result) {
	balance, err := r.applyWallet(ctx, grp.SheetID, txn.Currency, r.walletDelta(txn, txn.Currency), txn.UserID)
	if err != nil {
		r.reportAggregateFailure(ctx, grp, txn, "wallet", err)
		result.AggregatesStale = true
	} else {
		result.Balance = balance
	}

	if txn.Type == models.TypeConvert {
		target, err := r.applyWallet(ctx, grp.SheetID, txn.TargetCurrency, txn.TargetAmount, txn.UserID)
		if err != nil {
			r.reportAggregateFailure(ctx, grp, txn, "target wallet", err)
			result.AggregatesStale = true
		} else {
			result.TargetBalance = target
		}
	}

	if !txn.CountsToDailyLimit {
		return
	}

	loc := groupLocation(settings.Timezone)
	ts := txn.Timestamp.In(loc)

	daily, err := r.bumpDailyLimit(ctx, grp.SheetID, settings, txn, ts.Format("2006-01-02"))
	if err != nil {
		r.reportAggregateFailure(ctx, grp, txn, "daily limit", err)
		result.AggregatesStale = true
	} else {
		result.Daily = daily
		result.DailyExceeded = limitExceeded(daily.Spent, daily.Limit)
	}

	monthly, err := r.bumpMonthlyLimit(ctx, grp.SheetID, settings, txn, ts.Format("2006-01"))
	if err != nil {
		r.reportAggregateFailure(ctx, grp, txn, "monthly limit", err)
		result.AggregatesStale = true
	} else {
		result.Monthly = monthly
		result.MonthlyExceeded = limitExceeded(monthly.Spent, monthly.Limit)
	}
}

// walletDelta is the signed effect of txn on the wallet for currency.
func (r *Recorder) walletDelta(txn *models.Transaction, currency string) decimal.Decimal {
	switch txn.Type {
	case models.TypeIncome:
		return txn.Amount
	case models.TypeExpense, models.TypeTransfer:
		return txn.Amount.Neg()
	case models.TypeConvert:
		if txn.Currency == currency {
			return txn.Amount.Neg()
		}
		return txn.TargetAmount
	}
	return decimal.Zero
}

func (r *Recorder) applyWallet(ctx context.Context, sheetID, currency string, delta decimal.Decimal, userID int64) (decimal.Decimal, error) {
	wallet, err := r.storage.GetWallet(ctx, sheetID, currency)
	if errors.Is(err, storage.ErrNotFound) {
		wallet = &models.Wallet{Currency: currency}
	} else if err != nil {
		return decimal.Zero, err
	}

	wallet.Balance = wallet.Balance.Add(delta)
	wallet.UpdatedAt = r.now()
	wallet.UpdatedBy = userID
	if err := r.storage.SaveWallet(ctx, sheetID, wallet); err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

func (r *Recorder) bumpDailyLimit(ctx context.Context, sheetID string, settings models.GroupSettings, txn *models.Transaction, date string) (*models.DailyLimit, error) {
	limit, err := r.storage.GetDailyLimit(ctx, sheetID, date)
	if errors.Is(err, storage.ErrNotFound) {
		limit = &models.DailyLimit{
			Date:  date,
			Limit: decimal.NewFromFloat(settings.DailyLimit),
		}
	} else if err != nil {
		return nil, err
	}

	limit.Spent = limit.Spent.Add(txn.Amount)
	limit.LastTransaction = txn.ID
	if limitExceeded(limit.Spent, limit.Limit) {
		limit.Warnings++
	}
	if err := r.storage.SaveDailyLimit(ctx, sheetID, limit); err != nil {
		return nil, err
	}
	return limit, nil
}

func (r *Recorder) bumpMonthlyLimit(ctx context.Context, sheetID string, settings models.GroupSettings, txn *models.Transaction, month string) (*models.MonthlyLimit, error) {
	limit, err := r.storage.GetMonthlyLimit(ctx, sheetID, month)
	if errors.Is(err, storage.ErrNotFound) {
		limit = &models.MonthlyLimit{
			Month: month,
			Limit: decimal.NewFromFloat(settings.MonthlyLimit),
		}
	} else if err != nil {
		return nil, err
	}

	limit.Spent = limit.Spent.Add(txn.Amount)
	limit.UpdatedAt = r.now()
	if err := r.storage.SaveMonthlyLimit(ctx, sheetID, limit); err != nil {
		return nil, err
	}
	return limit, nil
}

func (r *Recorder) reportAggregateFailure(ctx context.Context, grp models.Group, txn *models.Transaction, what string, err error) {
	r.audit.Record(ctx, audit.Event{
		Kind:    audit.KindTransactionFailed,
		ChatID:  grp.ChatID,
		UserID:  txn.UserID,
		SheetID: grp.SheetID,
		Message: fmt.Sprintf("Transaction %s committed but %s update failed", txn.ID, what),
		Err:     err,
	})
}

// Balance returns the current wallet balance, recomputing it from the
// ledger and repairing the stored row when the two disagree. The ledger is
// the source of truth; the wallet row is derived state.
func (r *Recorder) Balance(ctx context.Context, grp models.Group, currency string) (decimal.Decimal, error) {
	computed, err := r.RecomputeWallet(ctx, grp, currency, 0)
	if err != nil {
		return decimal.Zero, err
	}
	return computed, nil
}

// RecomputeWallet folds all non-canceled transactions touching currency
// and writes the result back when the stored balance has drifted.
func (r *Recorder) RecomputeWallet(ctx context.Context, grp models.Group, currency string, byUser int64) (decimal.Decimal, error) {
	txns, err := r.storage.GetTransactionsByCurrency(ctx, grp.SheetID, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load transactions for %s: %w", currency, err)
	}

	balance := decimal.Zero
	for _, txn := range txns {
		if txn.Canceled {
			continue
		}
		balance = balance.Add(r.walletDelta(txn, currency))
	}

	wallet, err := r.storage.GetWallet(ctx, grp.SheetID, currency)
	if errors.Is(err, storage.ErrNotFound) {
		wallet = &models.Wallet{Currency: currency}
	} else if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load wallet %s: %w", currency, err)
	}

	if !wallet.Balance.Equal(balance) {
		stored := wallet.Balance
		wallet.Balance = balance
		wallet.UpdatedAt = r.now()
		wallet.UpdatedBy = byUser
		if err := r.storage.SaveWallet(ctx, grp.SheetID, wallet); err != nil {
			return decimal.Zero, fmt.Errorf("failed to repair wallet %s: %w", currency, err)
		}
		r.audit.Record(ctx, audit.Event{
			Kind:    audit.KindAggregateRepair,
			ChatID:  grp.ChatID,
			SheetID: grp.SheetID,
			Message: fmt.Sprintf("Repaired %s wallet: stored %s, computed %s", currency, stored, balance),
		})
	}
	return balance, nil
}

// LastUserTransaction returns the user's most recent non-canceled
// transaction, the one Cancel would act on.
func (r *Recorder) LastUserTransaction(ctx context.Context, grp models.Group, userID int64) (*models.Transaction, error) {
	return r.storage.GetLastUserTransaction(ctx, grp.SheetID, userID)
}

// Cancel soft-cancels the user's most recent transaction and reverses its
// wallet and counter effects. Returns the canceled transaction.
func (r *Recorder) Cancel(ctx context.Context, grp models.Group, settings models.GroupSettings, userID int64) (*models.Transaction, error) {
	txn, err := r.storage.GetLastUserTransaction(ctx, grp.SheetID, userID)
	if err != nil {
		return nil, err
	}
	if txn.Canceled {
		return nil, storage.ErrNotFound
	}

	at := r.now()
	if err := r.storage.CancelTransaction(ctx, grp.SheetID, txn.ID, userID, at); err != nil {
		return nil, fmt.Errorf("failed to cancel transaction %s: %w", txn.ID, err)
	}
	txn.Canceled = true
	txn.CanceledAt = &at
	txn.CanceledBy = userID

	if _, err := r.applyWallet(ctx, grp.SheetID, txn.Currency, r.walletDelta(txn, txn.Currency).Neg(), userID); err != nil {
		r.reportAggregateFailure(ctx, grp, txn, "wallet", err)
	}
	if txn.Type == models.TypeConvert {
		if _, err := r.applyWallet(ctx, grp.SheetID, txn.TargetCurrency, txn.TargetAmount.Neg(), userID); err != nil {
			r.reportAggregateFailure(ctx, grp, txn, "target wallet", err)
		}
	}

	if txn.CountsToDailyLimit {
		loc := groupLocation(settings.Timezone)
		ts := txn.Timestamp.In(loc)
		if err := r.rollbackDaily(ctx, grp.SheetID, txn, ts.Format("2006-01-02")); err != nil {
			r.reportAggregateFailure(ctx, grp, txn, "daily limit", err)
		}
		if err := r.rollbackMonthly(ctx, grp.SheetID, txn, ts.Format("2006-01")); err != nil {
			r.reportAggregateFailure(ctx, grp, txn, "monthly limit", err)
		}
	}

	r.audit.Record(ctx, audit.Event{
		Kind:    audit.KindTransactionCancel,
		ChatID:  grp.ChatID,
		UserID:  userID,
		SheetID: grp.SheetID,
		Message: fmt.Sprintf("Canceled transaction %s", txn.ID),
	})
	return txn, nil
}

func (r *Recorder) rollbackDaily(ctx context.Context, sheetID string, txn *models.Transaction, date string) error {
	limit, err := r.storage.GetDailyLimit(ctx, sheetID, date)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	limit.Spent = limit.Spent.Sub(txn.Amount)
	return r.storage.SaveDailyLimit(ctx, sheetID, limit)
}

func (r *Recorder) rollbackMonthly(ctx context.Context, sheetID string, txn *models.Transaction, month string) error {
	limit, err := r.storage.GetMonthlyLimit(ctx, sheetID, month)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	limit.Spent = limit.Spent.Sub(txn.Amount)
	limit.UpdatedAt = r.now()
	return r.storage.SaveMonthlyLimit(ctx, sheetID, limit)
}

// History returns the most recent transactions, newest first, skipping
// canceled entries.
func (r *Recorder) History(ctx context.Context, grp models.Group, limit int) ([]*models.Transaction, error) {
	txns, err := r.storage.GetTransactions(ctx, grp.SheetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	active := txns[:0]
	for _, txn := range txns {
		if !txn.Canceled {
			active = append(active, txn)
		}
	}
	return active, nil
}

func limitExceeded(spent, limit decimal.Decimal) bool {
	return limit.IsPositive() && spent.GreaterThan(limit)
}

func groupLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
