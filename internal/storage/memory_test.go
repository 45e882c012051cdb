package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
)

func TestGroupLifecycle(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	if _, err := s.GetGroup(ctx, -100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for unknown group, got %v", err)
	}

	grp := &models.Group{
		ChatID:  -100,
		Name:    "Keluarga",
		SheetID: "sheet_a",
		Status:  models.GroupActive,
	}
	if err := s.CreateGroup(ctx, grp); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	got, err := s.GetGroup(ctx, -100)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if got.SheetID != "sheet_a" {
		t.Errorf("Expected sheet_a, got %s", got.SheetID)
	}

	if err := s.UpdateGroupStatus(ctx, -100, models.GroupInactive); err != nil {
		t.Fatalf("UpdateGroupStatus failed: %v", err)
	}
	got, _ = s.GetGroup(ctx, -100)
	if got.Status != models.GroupInactive {
		t.Errorf("Expected INACTIVE, got %s", got.Status)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	settings := models.DefaultGroupSettings("Keluarga")
	settings.DailyLimit = 150000
	settings.EnableChat = false

	if err := s.SaveSettings(ctx, "sheet_a", &settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	got, err := s.GetSettings(ctx, "sheet_a")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if got.DailyLimit != 150000 {
		t.Errorf("Expected daily limit 150000, got %v", got.DailyLimit)
	}
	if got.EnableChat {
		t.Error("Expected chat disabled")
	}
	if got.Timezone != "Asia/Jakarta" {
		t.Errorf("Expected default timezone kept, got %s", got.Timezone)
	}
}

func TestTransactionQueries(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	base := time.Now()

	for i, amount := range []int64{100, 200, 300} {
		err := s.AppendTransaction(ctx, "sheet_a", &models.Transaction{
			ID:        "txn_" + string(rune('a'+i)),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			UserID:    1,
			Type:      models.TypeExpense,
			Amount:    decimal.NewFromInt(amount),
			Currency:  "IDR",
		})
		if err != nil {
			t.Fatalf("AppendTransaction failed: %v", err)
		}
	}

	txns, err := s.GetTransactions(ctx, "sheet_a", 2)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(txns))
	}
	if !txns[0].Amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected newest first, got %s", txns[0].Amount)
	}

	last, err := s.GetLastUserTransaction(ctx, "sheet_a", 1)
	if err != nil {
		t.Fatalf("GetLastUserTransaction failed: %v", err)
	}
	if !last.Amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected latest transaction, got %s", last.Amount)
	}

	if err := s.CancelTransaction(ctx, "sheet_a", last.ID, 1, time.Now()); err != nil {
		t.Fatalf("CancelTransaction failed: %v", err)
	}
	last, err = s.GetLastUserTransaction(ctx, "sheet_a", 1)
	if err != nil {
		t.Fatalf("GetLastUserTransaction after cancel failed: %v", err)
	}
	if !last.Amount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Canceled transaction must be skipped, got %s", last.Amount)
	}

	// Canceling twice fails.
	if err := s.CancelTransaction(ctx, "sheet_a", "txn_c", 1, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on double cancel, got %v", err)
	}
}

func TestGetTransactionsByCurrencyIncludesTargetSide(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	err := s.AppendTransaction(ctx, "sheet_a", &models.Transaction{
		ID:             "txn_conv",
		Timestamp:      time.Now(),
		UserID:         1,
		Type:           models.TypeConvert,
		Amount:         decimal.NewFromInt(100),
		Currency:       "USD",
		TargetCurrency: "IDR",
		TargetAmount:   decimal.NewFromInt(1500000),
	})
	if err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}

	forIDR, err := s.GetTransactionsByCurrency(ctx, "sheet_a", "IDR")
	if err != nil {
		t.Fatalf("GetTransactionsByCurrency failed: %v", err)
	}
	if len(forIDR) != 1 {
		t.Errorf("Conversion must be visible from the target currency, got %d rows", len(forIDR))
	}
}

func TestWalletRoundTrip(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	if _, err := s.GetWallet(ctx, "sheet_a", "IDR"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	wallet := &models.Wallet{Currency: "IDR", Balance: decimal.NewFromInt(5000), UpdatedAt: time.Now()}
	if err := s.SaveWallet(ctx, "sheet_a", wallet); err != nil {
		t.Fatalf("SaveWallet failed: %v", err)
	}

	got, err := s.GetWallet(ctx, "sheet_a", "IDR")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Expected balance 5000, got %s", got.Balance)
	}

	// Sheets are isolated.
	if _, err := s.GetWallet(ctx, "sheet_b", "IDR"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected isolation between sheets, got %v", err)
	}
}

func TestMemoryEntriesFilteredAndCleared(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 4; i++ {
		userID := int64(1)
		if i%2 == 1 {
			userID = 2
		}
		err := s.AppendMemory(ctx, "sheet_a", &models.MemoryEntry{
			ID:        "mem_" + string(rune('a'+i)),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			UserID:    userID,
			ThreadID:  "default",
			Message:   "pesan",
		})
		if err != nil {
			t.Fatalf("AppendMemory failed: %v", err)
		}
	}

	entries, err := s.GetMemory(ctx, "sheet_a", 1, "default", 10)
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries for user 1, got %d", len(entries))
	}

	if err := s.ClearMemory(ctx, "sheet_a", 1, "default"); err != nil {
		t.Fatalf("ClearMemory failed: %v", err)
	}
	entries, _ = s.GetMemory(ctx, "sheet_a", 1, "default", 10)
	if len(entries) != 0 {
		t.Errorf("Expected user 1 memory cleared, got %d", len(entries))
	}
	entries, _ = s.GetMemory(ctx, "sheet_a", 2, "default", 10)
	if len(entries) != 2 {
		t.Errorf("Expected user 2 memory untouched, got %d", len(entries))
	}
}
