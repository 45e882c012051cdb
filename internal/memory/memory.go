// Package memory implements the per-user conversation memory window used to
// build AI context and detect corrections ("salah tadi").
//
// Memory is best-effort: any storage failure degrades to an empty bundle so
// conversation continuity never blocks the transaction pipeline.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/cache"
	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
	"github.com/ignite88-dev/finance-bot-cloud/internal/storage"
)

// DefaultThread is the sentinel thread id used when a message arrives
// outside any thread.
const DefaultThread = "default"

// DefaultWindow is the recency window returned when the caller passes no
// limit.
const DefaultWindow = 10

type Store struct {
	storage  storage.Storage
	cache    *cache.Cache
	cacheTTL time.Duration
	window   int
	logger   *zap.Logger

	// mu guards cached, the set of cache keys written per chat. A
	// chat-wide clear cannot derive the (user, thread) keys it has to
	// invalidate, so the store remembers what it cached.
	mu     sync.Mutex
	cached map[int64]map[string]struct{}
}

func NewStore(st storage.Storage, c *cache.Cache, cacheTTL time.Duration, window int, logger *zap.Logger) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{
		storage:  st,
		cache:    c,
		cacheTTL: cacheTTL,
		window:   window,
		logger:   logger,
		cached:   make(map[int64]map[string]struct{}),
	}
}

func (s *Store) track(chatID int64, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.cached[chatID]
	if keys == nil {
		keys = make(map[string]struct{})
		s.cached[chatID] = keys
	}
	keys[key] = struct{}{}
}

// GetRecent returns the most-recent-first window of entries for the
// (chat, user, thread) triple, with a context hash over the latest texts.
// Failures never propagate: the caller gets an empty bundle.
func (s *Store) GetRecent(ctx context.Context, chatID int64, sheetID string, userID int64, threadID string) models.MemoryBundle {
	if threadID == "" {
		threadID = DefaultThread
	}
	key := cache.MemoryKey(chatID, userID, threadID)

	if cached, ok := s.cache.Get(key); ok {
		if bundle, ok := cached.(models.MemoryBundle); ok {
			return bundle
		}
	}

	entries, err := s.storage.GetMemory(ctx, sheetID, userID, threadID, s.window)
	if err != nil {
		s.logger.Warn("Failed to load conversation memory, degrading to empty",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", userID))
		return EmptyBundle()
	}

	bundle := models.MemoryBundle{
		Messages:    entries,
		Summary:     summarize(entries),
		ContextHash: ContextHash(entries),
	}
	s.cache.Set(key, bundle, s.cacheTTL)
	s.track(chatID, key)
	return bundle
}

// Append records one processed exchange and invalidates exactly the cache
// key it wrote to. A storage failure is reported as false, never an error.
func (s *Store) Append(ctx context.Context, sheetID string, entry *models.MemoryEntry) bool {
	if entry.ThreadID == "" {
		entry.ThreadID = DefaultThread
	}
	if entry.ID == "" {
		entry.ID = "mem_" + uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Sentiment == "" {
		entry.Sentiment = "neutral"
	}
	entry.ContextHash = ContextHash([]models.MemoryEntry{*entry})

	if err := s.storage.AppendMemory(ctx, sheetID, entry); err != nil {
		s.logger.Warn("Failed to append conversation memory",
			zap.Error(err),
			zap.Int64("chat_id", entry.ChatID),
			zap.Int64("user_id", entry.UserID))
		return false
	}

	s.cache.Invalidate(cache.MemoryKey(entry.ChatID, entry.UserID, entry.ThreadID))
	return true
}

// Clear removes stored entries for the chat, optionally narrowed to a user
// and thread, and drops the matching cached bundles.
func (s *Store) Clear(ctx context.Context, chatID int64, sheetID string, userID int64, threadID string) bool {
	if err := s.storage.ClearMemory(ctx, sheetID, userID, threadID); err != nil {
		s.logger.Warn("Failed to clear conversation memory",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
		return false
	}
	if userID != 0 {
		s.cache.Invalidate(cache.MemoryKey(chatID, userID, threadID))
		return true
	}

	// Chat-wide clear: drop every bundle cached for this chat.
	s.mu.Lock()
	keys := s.cached[chatID]
	delete(s.cached, chatID)
	s.mu.Unlock()
	for key := range keys {
		s.cache.Invalidate(key)
	}
	return true
}

// EmptyBundle is the degraded result for memory failures.
func EmptyBundle() models.MemoryBundle {
	return models.MemoryBundle{
		Messages:    nil,
		Summary:     "No conversation history",
		ContextHash: hashText("empty"),
	}
}

// ContextHash digests the most recent few message texts so the intent
// extractor can tell whether retrying with identical context is pointless.
func ContextHash(entries []models.MemoryEntry) string {
	if len(entries) == 0 {
		return hashText("empty")
	}
	n := len(entries)
	if n > 3 {
		n = 3
	}
	text := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			text += "|"
		}
		text += entries[i].Message
	}
	return hashText(text)
}

func summarize(entries []models.MemoryEntry) string {
	if len(entries) == 0 {
		return "No conversation history"
	}
	intent := entries[0].Intent
	if intent == "" {
		intent = "unknown"
	}
	return fmt.Sprintf("Last intent: %s, %d messages in memory", intent, len(entries))
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}
