package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetGroup(ctx context.Context, chatID int64) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx, `
		SELECT chat_id, name, owner_user_id, sheet_id, status, created_at
		FROM groups WHERE chat_id = $1`, chatID).Scan(
		&group.ChatID, &group.Name, &group.OwnerUserID, &group.SheetID, &group.Status, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying group: %v", err)
	}
	return group, nil
}

func (s *PostgresStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (chat_id, name, owner_user_id, sheet_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		group.ChatID, group.Name, group.OwnerUserID, group.SheetID, group.Status, group.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating group: %v", err)
	}
	return nil
}

func (s *PostgresStorage) UpdateGroupStatus(ctx context.Context, chatID int64, status models.GroupStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE groups SET status = $1 WHERE chat_id = $2`, status, chatID)
	if err != nil {
		return fmt.Errorf("error updating group status: %v", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// settingsPairs flattens settings into the key/value rows used by the
// settings table, mirroring the Settings tab layout.
func settingsPairs(settings *models.GroupSettings) map[string]string {
	return map[string]string{
		"group_name":                settings.GroupName,
		"currency":                  settings.Currency,
		"daily_limit":               strconv.FormatFloat(settings.DailyLimit, 'f', -1, 64),
		"monthly_limit":             strconv.FormatFloat(settings.MonthlyLimit, 'f', -1, 64),
		"timezone":                  settings.Timezone,
		"enable_chat":               strconv.FormatBool(settings.EnableChat),
		"require_admin_approval":    strconv.FormatBool(settings.RequireAdminApproval),
		"big_transaction_threshold": strconv.FormatFloat(settings.BigTransactionThreshold, 'f', -1, 64),
		"exchange_rate":             strconv.FormatFloat(settings.ExchangeRate, 'f', -1, 64),
	}
}

func settingsFromPairs(pairs map[string]string) *models.GroupSettings {
	settings := &models.GroupSettings{}
	settings.GroupName = pairs["group_name"]
	settings.Currency = pairs["currency"]
	settings.DailyLimit, _ = strconv.ParseFloat(pairs["daily_limit"], 64)
	settings.MonthlyLimit, _ = strconv.ParseFloat(pairs["monthly_limit"], 64)
	settings.Timezone = pairs["timezone"]
	settings.EnableChat, _ = strconv.ParseBool(pairs["enable_chat"])
	settings.RequireAdminApproval, _ = strconv.ParseBool(pairs["require_admin_approval"])
	settings.BigTransactionThreshold, _ = strconv.ParseFloat(pairs["big_transaction_threshold"], 64)
	settings.ExchangeRate, _ = strconv.ParseFloat(pairs["exchange_rate"], 64)
	return settings
}

func (s *PostgresStorage) GetSettings(ctx context.Context, sheetID string) (*models.GroupSettings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM group_settings WHERE sheet_id = $1`, sheetID)
	if err != nil {
		return nil, fmt.Errorf("error querying settings: %v", err)
	}
	defer rows.Close()

	pairs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("error scanning setting: %v", err)
		}
		pairs[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %v", err)
	}
	if len(pairs) == 0 {
		return nil, ErrNotFound
	}
	return settingsFromPairs(pairs), nil
}

func (s *PostgresStorage) SaveSettings(ctx context.Context, sheetID string, settings *models.GroupSettings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting settings transaction: %v", err)
	}
	defer tx.Rollback()

	for key, value := range settingsPairs(settings) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_settings (sheet_id, key, value, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (sheet_id, key) DO UPDATE SET value = $3, updated_at = NOW()`,
			sheetID, key, value)
		if err != nil {
			return fmt.Errorf("error saving setting %s: %v", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing settings: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, sheetID string, userID int64) (*models.User, error) {
	user := &models.User{}
	var amounts []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, first_name, role, joined_at, last_active_at, total_transactions, total_amounts
		FROM users WHERE sheet_id = $1 AND user_id = $2`, sheetID, userID).Scan(
		&user.ID, &user.Username, &user.FirstName, &user.Role,
		&user.JoinedAt, &user.LastActiveAt, &user.TotalTransactions, &amounts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %v", err)
	}
	if err := json.Unmarshal(amounts, &user.TotalAmounts); err != nil {
		return nil, fmt.Errorf("error decoding user amounts: %v", err)
	}
	return user, nil
}

func (s *PostgresStorage) SaveUser(ctx context.Context, sheetID string, user *models.User) error {
	amounts, err := json.Marshal(user.TotalAmounts)
	if err != nil {
		return fmt.Errorf("error encoding user amounts: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (sheet_id, user_id, username, first_name, role, joined_at, last_active_at, total_transactions, total_amounts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (sheet_id, user_id) DO UPDATE SET
			username = $3, first_name = $4, role = $5,
			last_active_at = $7, total_transactions = $8, total_amounts = $9`,
		sheetID, user.ID, user.Username, user.FirstName, user.Role,
		user.JoinedAt, user.LastActiveAt, user.TotalTransactions, amounts)
	if err != nil {
		return fmt.Errorf("error saving user: %v", err)
	}
	return nil
}

func (s *PostgresStorage) AppendTransaction(ctx context.Context, sheetID string, txn *models.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, sheet_id, ts, user_id, username, type, amount, currency,
			target_currency, target_amount, exchange_rate, description, category,
			tags, notes, counts_to_daily_limit, canceled, canceled_at, canceled_by,
			requires_admin_approval, approved_by, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		txn.ID, sheetID, txn.Timestamp, txn.UserID, txn.Username, txn.Type, txn.Amount, txn.Currency,
		txn.TargetCurrency, txn.TargetAmount, txn.ExchangeRate, txn.Description, txn.Category,
		pq.Array(txn.Tags), txn.Notes, txn.CountsToDailyLimit, txn.Canceled, txn.CanceledAt, txn.CanceledBy,
		txn.RequiresAdminApproval, txn.ApprovedBy, txn.ApprovedAt)
	if err != nil {
		return fmt.Errorf("error appending transaction: %v", err)
	}
	return nil
}

const transactionColumns = `
	id, ts, user_id, username, type, amount, currency,
	target_currency, target_amount, exchange_rate, description, category,
	tags, notes, counts_to_daily_limit, canceled, canceled_at, canceled_by,
	requires_admin_approval, approved_by, approved_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	txn := &models.Transaction{}
	var tags pq.StringArray
	var canceledAt, approvedAt sql.NullTime
	err := row.Scan(
		&txn.ID, &txn.Timestamp, &txn.UserID, &txn.Username, &txn.Type, &txn.Amount, &txn.Currency,
		&txn.TargetCurrency, &txn.TargetAmount, &txn.ExchangeRate, &txn.Description, &txn.Category,
		&tags, &txn.Notes, &txn.CountsToDailyLimit, &txn.Canceled, &canceledAt, &txn.CanceledBy,
		&txn.RequiresAdminApproval, &txn.ApprovedBy, &approvedAt)
	if err != nil {
		return nil, err
	}
	txn.Tags = tags
	if canceledAt.Valid {
		t := canceledAt.Time
		txn.CanceledAt = &t
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		txn.ApprovedAt = &t
	}
	return txn, nil
}

func (s *PostgresStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %v", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning transaction: %v", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %v", err)
	}
	return txns, nil
}

func (s *PostgresStorage) GetTransactions(ctx context.Context, sheetID string, limit int) ([]*models.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT`+transactionColumns+`
		FROM transactions WHERE sheet_id = $1
		ORDER BY ts DESC LIMIT $2`, sheetID, limit)
}

func (s *PostgresStorage) GetTransactionsByCurrency(ctx context.Context, sheetID, currency string) ([]*models.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT`+transactionColumns+`
		FROM transactions
		WHERE sheet_id = $1 AND (currency = $2 OR target_currency = $2)
		ORDER BY ts ASC`, sheetID, currency)
}

func (s *PostgresStorage) GetLastUserTransaction(ctx context.Context, sheetID string, userID int64) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+transactionColumns+`
		FROM transactions
		WHERE sheet_id = $1 AND user_id = $2 AND NOT canceled
		ORDER BY ts DESC LIMIT 1`, sheetID, userID)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying last transaction: %v", err)
	}
	return txn, nil
}

func (s *PostgresStorage) CancelTransaction(ctx context.Context, sheetID, txnID string, byUser int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET canceled = TRUE, canceled_at = $1, canceled_by = $2
		WHERE sheet_id = $3 AND id = $4 AND NOT canceled`,
		at, byUser, sheetID, txnID)
	if err != nil {
		return fmt.Errorf("error canceling transaction: %v", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) GetWallet(ctx context.Context, sheetID, currency string) (*models.Wallet, error) {
	wallet := &models.Wallet{}
	err := s.db.QueryRowContext(ctx, `
		SELECT currency, balance, updated_at, updated_by
		FROM wallets WHERE sheet_id = $1 AND currency = $2`, sheetID, currency).Scan(
		&wallet.Currency, &wallet.Balance, &wallet.UpdatedAt, &wallet.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying wallet: %v", err)
	}
	return wallet, nil
}

func (s *PostgresStorage) SaveWallet(ctx context.Context, sheetID string, wallet *models.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (sheet_id, currency, balance, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sheet_id, currency) DO UPDATE SET
			balance = $3, updated_at = $4, updated_by = $5`,
		sheetID, wallet.Currency, wallet.Balance, wallet.UpdatedAt, wallet.UpdatedBy)
	if err != nil {
		return fmt.Errorf("error saving wallet: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetDailyLimit(ctx context.Context, sheetID, date string) (*models.DailyLimit, error) {
	limit := &models.DailyLimit{}
	err := s.db.QueryRowContext(ctx, `
		SELECT date, spent, limit_amount, warnings, last_transaction
		FROM daily_limits WHERE sheet_id = $1 AND date = $2`, sheetID, date).Scan(
		&limit.Date, &limit.Spent, &limit.Limit, &limit.Warnings, &limit.LastTransaction)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying daily limit: %v", err)
	}
	return limit, nil
}

func (s *PostgresStorage) SaveDailyLimit(ctx context.Context, sheetID string, limit *models.DailyLimit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_limits (sheet_id, date, spent, limit_amount, warnings, last_transaction)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sheet_id, date) DO UPDATE SET
			spent = $3, limit_amount = $4, warnings = $5, last_transaction = $6`,
		sheetID, limit.Date, limit.Spent, limit.Limit, limit.Warnings, limit.LastTransaction)
	if err != nil {
		return fmt.Errorf("error saving daily limit: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetMonthlyLimit(ctx context.Context, sheetID, month string) (*models.MonthlyLimit, error) {
	limit := &models.MonthlyLimit{}
	err := s.db.QueryRowContext(ctx, `
		SELECT month, spent, limit_amount, updated_at
		FROM monthly_limits WHERE sheet_id = $1 AND month = $2`, sheetID, month).Scan(
		&limit.Month, &limit.Spent, &limit.Limit, &limit.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying monthly limit: %v", err)
	}
	return limit, nil
}

func (s *PostgresStorage) SaveMonthlyLimit(ctx context.Context, sheetID string, limit *models.MonthlyLimit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monthly_limits (sheet_id, month, spent, limit_amount, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sheet_id, month) DO UPDATE SET
			spent = $3, limit_amount = $4, updated_at = $5`,
		sheetID, limit.Month, limit.Spent, limit.Limit, limit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error saving monthly limit: %v", err)
	}
	return nil
}

func (s *PostgresStorage) AppendMemory(ctx context.Context, sheetID string, entry *models.MemoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_memory (
			id, sheet_id, ts, chat_id, user_id, username, message, ai_response,
			intent, context_hash, thread_id, message_type, tokens_used, model, sentiment, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		entry.ID, sheetID, entry.Timestamp, entry.ChatID, entry.UserID, entry.Username,
		entry.Message, entry.AIResponse, entry.Intent, entry.ContextHash, entry.ThreadID,
		entry.MessageType, entry.TokensUsed, entry.Model, entry.Sentiment, entry.Confidence)
	if err != nil {
		return fmt.Errorf("error appending memory: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetMemory(ctx context.Context, sheetID string, userID int64, threadID string, limit int) ([]models.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, chat_id, user_id, username, message, ai_response,
		       intent, context_hash, thread_id, message_type, tokens_used, model, sentiment, confidence
		FROM ai_memory
		WHERE sheet_id = $1 AND user_id = $2 AND thread_id = $3
		ORDER BY ts DESC LIMIT $4`, sheetID, userID, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying memory: %v", err)
	}
	defer rows.Close()

	var entries []models.MemoryEntry
	for rows.Next() {
		var entry models.MemoryEntry
		err := rows.Scan(
			&entry.ID, &entry.Timestamp, &entry.ChatID, &entry.UserID, &entry.Username,
			&entry.Message, &entry.AIResponse, &entry.Intent, &entry.ContextHash, &entry.ThreadID,
			&entry.MessageType, &entry.TokensUsed, &entry.Model, &entry.Sentiment, &entry.Confidence)
		if err != nil {
			return nil, fmt.Errorf("error scanning memory entry: %v", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memory: %v", err)
	}
	return entries, nil
}

func (s *PostgresStorage) ClearMemory(ctx context.Context, sheetID string, userID int64, threadID string) error {
	query := `DELETE FROM ai_memory WHERE sheet_id = $1`
	args := []any{sheetID}
	if userID != 0 {
		args = append(args, userID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if threadID != "" {
		args = append(args, threadID)
		query += fmt.Sprintf(" AND thread_id = $%d", len(args))
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error clearing memory: %v", err)
	}
	return nil
}

func (s *PostgresStorage) AppendErrorLog(ctx context.Context, sheetID string, entry *ErrorLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_logs (sheet_id, ts, level, chat_id, user_id, action, message, err_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sheetID, entry.Timestamp, entry.Level, entry.ChatID, entry.UserID, entry.Action, entry.Message, entry.ErrText)
	if err != nil {
		return fmt.Errorf("error appending error log: %v", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
