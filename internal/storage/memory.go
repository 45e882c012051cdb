package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
)

// MemoryStorage is an in-process Storage used for tests and for running
// without a database (database.use_in_memory).
type MemoryStorage struct {
	mu            sync.RWMutex
	groups        map[int64]models.Group
	settings      map[string]models.GroupSettings
	users         map[string]map[int64]models.User
	transactions  map[string][]models.Transaction
	wallets       map[string]map[string]models.Wallet
	dailyLimits   map[string]map[string]models.DailyLimit
	monthlyLimits map[string]map[string]models.MonthlyLimit
	memory        map[string][]models.MemoryEntry
	errorLogs     map[string][]ErrorLog
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		groups:        make(map[int64]models.Group),
		settings:      make(map[string]models.GroupSettings),
		users:         make(map[string]map[int64]models.User),
		transactions:  make(map[string][]models.Transaction),
		wallets:       make(map[string]map[string]models.Wallet),
		dailyLimits:   make(map[string]map[string]models.DailyLimit),
		monthlyLimits: make(map[string]map[string]models.MonthlyLimit),
		memory:        make(map[string][]models.MemoryEntry),
		errorLogs:     make(map[string][]ErrorLog),
	}
}

func (s *MemoryStorage) GetGroup(ctx context.Context, chatID int64) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if group, exists := s.groups[chatID]; exists {
		g := group
		return &g, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups[group.ChatID] = *group
	return nil
}

func (s *MemoryStorage) UpdateGroupStatus(ctx context.Context, chatID int64, status models.GroupStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.groups[chatID]
	if !exists {
		return ErrNotFound
	}
	group.Status = status
	s.groups[chatID] = group
	return nil
}

func (s *MemoryStorage) GetSettings(ctx context.Context, sheetID string) (*models.GroupSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if settings, exists := s.settings[sheetID]; exists {
		cp := settings
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveSettings(ctx context.Context, sheetID string, settings *models.GroupSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[sheetID] = *settings
	return nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, sheetID string, userID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, exists := s.users[sheetID][userID]; exists {
		cp := user
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveUser(ctx context.Context, sheetID string, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.users[sheetID] == nil {
		s.users[sheetID] = make(map[int64]models.User)
	}
	s.users[sheetID][user.ID] = *user
	return nil
}

func (s *MemoryStorage) AppendTransaction(ctx context.Context, sheetID string, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions[sheetID] = append(s.transactions[sheetID], *txn)
	return nil
}

func (s *MemoryStorage) GetTransactions(ctx context.Context, sheetID string, limit int) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.transactions[sheetID]
	txns := make([]*models.Transaction, 0, len(all))
	for i := range all {
		cp := all[i]
		txns = append(txns, &cp)
	}
	sort.Slice(txns, func(i, j int) bool {
		return txns[i].Timestamp.After(txns[j].Timestamp)
	})
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

func (s *MemoryStorage) GetTransactionsByCurrency(ctx context.Context, sheetID, currency string) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txns []*models.Transaction
	for _, txn := range s.transactions[sheetID] {
		if txn.Currency == currency || txn.TargetCurrency == currency {
			cp := txn
			txns = append(txns, &cp)
		}
	}
	sort.Slice(txns, func(i, j int) bool {
		return txns[i].Timestamp.Before(txns[j].Timestamp)
	})
	return txns, nil
}

func (s *MemoryStorage) GetLastUserTransaction(ctx context.Context, sheetID string, userID int64) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *models.Transaction
	for _, txn := range s.transactions[sheetID] {
		if txn.UserID != userID || txn.Canceled {
			continue
		}
		if last == nil || txn.Timestamp.After(last.Timestamp) {
			cp := txn
			last = &cp
		}
	}
	if last == nil {
		return nil, ErrNotFound
	}
	return last, nil
}

func (s *MemoryStorage) CancelTransaction(ctx context.Context, sheetID, txnID string, byUser int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txns := s.transactions[sheetID]
	for i := range txns {
		if txns[i].ID == txnID && !txns[i].Canceled {
			txns[i].Canceled = true
			txns[i].CanceledAt = &at
			txns[i].CanceledBy = byUser
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStorage) GetWallet(ctx context.Context, sheetID, currency string) (*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if wallet, exists := s.wallets[sheetID][currency]; exists {
		cp := wallet
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveWallet(ctx context.Context, sheetID string, wallet *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wallets[sheetID] == nil {
		s.wallets[sheetID] = make(map[string]models.Wallet)
	}
	s.wallets[sheetID][wallet.Currency] = *wallet
	return nil
}

func (s *MemoryStorage) GetDailyLimit(ctx context.Context, sheetID, date string) (*models.DailyLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit, exists := s.dailyLimits[sheetID][date]; exists {
		cp := limit
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveDailyLimit(ctx context.Context, sheetID string, limit *models.DailyLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dailyLimits[sheetID] == nil {
		s.dailyLimits[sheetID] = make(map[string]models.DailyLimit)
	}
	s.dailyLimits[sheetID][limit.Date] = *limit
	return nil
}

func (s *MemoryStorage) GetMonthlyLimit(ctx context.Context, sheetID, month string) (*models.MonthlyLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit, exists := s.monthlyLimits[sheetID][month]; exists {
		cp := limit
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveMonthlyLimit(ctx context.Context, sheetID string, limit *models.MonthlyLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.monthlyLimits[sheetID] == nil {
		s.monthlyLimits[sheetID] = make(map[string]models.MonthlyLimit)
	}
	s.monthlyLimits[sheetID][limit.Month] = *limit
	return nil
}

func (s *MemoryStorage) AppendMemory(ctx context.Context, sheetID string, entry *models.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory[sheetID] = append(s.memory[sheetID], *entry)
	return nil
}

func (s *MemoryStorage) GetMemory(ctx context.Context, sheetID string, userID int64, threadID string, limit int) ([]models.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []models.MemoryEntry
	for _, entry := range s.memory[sheetID] {
		if entry.UserID == userID && entry.ThreadID == threadID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemoryStorage) ClearMemory(ctx context.Context, sheetID string, userID int64, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []models.MemoryEntry
	for _, entry := range s.memory[sheetID] {
		if userID != 0 && entry.UserID != userID {
			kept = append(kept, entry)
			continue
		}
		if threadID != "" && entry.ThreadID != threadID {
			kept = append(kept, entry)
			continue
		}
	}
	s.memory[sheetID] = kept
	return nil
}

func (s *MemoryStorage) AppendErrorLog(ctx context.Context, sheetID string, entry *ErrorLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errorLogs[sheetID] = append(s.errorLogs[sheetID], *entry)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
