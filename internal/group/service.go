// Package group resolves per-conversation context: the group record, its
// settings and participant profiles, cached in front of storage with
// synchronous invalidation on every write.
package group

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/cache"
	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
	"github.com/ignite88-dev/finance-bot-cloud/internal/storage"
)

// Context bundles the group record with its settings for one request.
type Context struct {
	Group    models.Group
	Settings models.GroupSettings
}

// TTLs configures how long each derived view stays cached.
type TTLs struct {
	Group    time.Duration
	Settings time.Duration
	User     time.Duration
}

type Service struct {
	storage     storage.Storage
	cache       *cache.Cache
	ttls        TTLs
	superAdmins map[int64]bool
	logger      *zap.Logger
}

func NewService(st storage.Storage, c *cache.Cache, ttls TTLs, superAdminIDs []int64, logger *zap.Logger) *Service {
	admins := make(map[int64]bool, len(superAdminIDs))
	for _, id := range superAdminIDs {
		admins[id] = true
	}
	return &Service{
		storage:     st,
		cache:       c,
		ttls:        ttls,
		superAdmins: admins,
		logger:      logger,
	}
}

// GetOrCreate loads the group for chatID, auto-provisioning it on first
// contact. A new group gets a fresh sheet locator, ACTIVE status and
// default settings.
func (s *Service) GetOrCreate(ctx context.Context, chatID int64, name string, ownerID int64) (*Context, error) {
	if cached, ok := s.cache.Get(cache.GroupKey(chatID)); ok {
		if gctx, ok := cached.(Context); ok {
			return &gctx, nil
		}
	}

	grp, err := s.storage.GetGroup(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return s.provision(ctx, chatID, name, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group %d: %w", chatID, err)
	}

	settings, err := s.getSettings(ctx, grp.SheetID)
	if err != nil {
		return nil, err
	}

	gctx := Context{Group: *grp, Settings: *settings}
	s.cache.Set(cache.GroupKey(chatID), gctx, s.ttls.Group)
	return &gctx, nil
}

func (s *Service) provision(ctx context.Context, chatID int64, name string, ownerID int64) (*Context, error) {
	if name == "" {
		name = fmt.Sprintf("Group %d", chatID)
	}
	grp := &models.Group{
		ChatID:      chatID,
		Name:        name,
		OwnerUserID: ownerID,
		SheetID:     "sheet_" + uuid.New().String(),
		Status:      models.GroupActive,
		CreatedAt:   time.Now(),
	}
	settings := models.DefaultGroupSettings(name)

	if err := s.storage.CreateGroup(ctx, grp); err != nil {
		return nil, fmt.Errorf("failed to provision group %d: %w", chatID, err)
	}
	if err := s.storage.SaveSettings(ctx, grp.SheetID, &settings); err != nil {
		return nil, fmt.Errorf("failed to initialize settings for group %d: %w", chatID, err)
	}

	s.logger.Info("Provisioned new group",
		zap.Int64("chat_id", chatID),
		zap.String("sheet_id", grp.SheetID))

	gctx := Context{Group: *grp, Settings: settings}
	s.cache.Set(cache.GroupKey(chatID), gctx, s.ttls.Group)
	return &gctx, nil
}

func (s *Service) getSettings(ctx context.Context, sheetID string) (*models.GroupSettings, error) {
	if cached, ok := s.cache.Get(cache.SettingsKey(sheetID)); ok {
		if settings, ok := cached.(models.GroupSettings); ok {
			return &settings, nil
		}
	}

	settings, err := s.storage.GetSettings(ctx, sheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for %s: %w", sheetID, err)
	}
	s.cache.Set(cache.SettingsKey(sheetID), *settings, s.ttls.Settings)
	return settings, nil
}

// UpdateSettings persists new settings and invalidates both the settings
// key and the group bundle before acknowledging, so no reader observes the
// old value after this returns.
func (s *Service) UpdateSettings(ctx context.Context, gctx *Context, settings models.GroupSettings) error {
	if err := s.storage.SaveSettings(ctx, gctx.Group.SheetID, &settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	s.cache.Invalidate(cache.SettingsKey(gctx.Group.SheetID))
	s.cache.Invalidate(cache.GroupKey(gctx.Group.ChatID))
	return nil
}

// SetStatus flags the group lifecycle state. Groups are never deleted.
func (s *Service) SetStatus(ctx context.Context, chatID int64, status models.GroupStatus) error {
	if err := s.storage.UpdateGroupStatus(ctx, chatID, status); err != nil {
		return fmt.Errorf("failed to update group status: %w", err)
	}
	s.cache.Invalidate(cache.GroupKey(chatID))
	return nil
}

// TouchUser returns the participant profile, creating it on first
// interaction and refreshing the activity timestamp. The stored role is
// overridden by the super-admin allow-list.
func (s *Service) TouchUser(ctx context.Context, sheetID string, userID int64, username, firstName string) (*models.User, error) {
	key := cache.UserKey(sheetID, userID)
	if cached, ok := s.cache.Get(key); ok {
		if user, ok := cached.(models.User); ok {
			return s.applyRole(&user), nil
		}
	}

	user, err := s.storage.GetUser(ctx, sheetID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		user = &models.User{
			ID:           userID,
			Username:     username,
			FirstName:    firstName,
			Role:         models.RoleUser,
			JoinedAt:     time.Now(),
			LastActiveAt: time.Now(),
			TotalAmounts: make(map[string]float64),
		}
		if err := s.storage.SaveUser(ctx, sheetID, user); err != nil {
			return nil, fmt.Errorf("failed to create user %d: %w", userID, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	} else {
		user.LastActiveAt = time.Now()
	}

	s.cache.Set(key, *user, s.ttls.User)
	return s.applyRole(user), nil
}

// RecordTransactionStats bumps the participant's cumulative counters after
// a commit, invalidating the cached profile before acknowledging.
func (s *Service) RecordTransactionStats(ctx context.Context, sheetID string, user *models.User, currency string, amount float64) error {
	if user.TotalAmounts == nil {
		user.TotalAmounts = make(map[string]float64)
	}
	user.TotalTransactions++
	user.TotalAmounts[currency] += amount
	user.LastActiveAt = time.Now()

	if err := s.storage.SaveUser(ctx, sheetID, user); err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}
	s.cache.Invalidate(cache.UserKey(sheetID, user.ID))
	return nil
}

// SetRole stores a new role for the participant. Super-admin cannot be
// granted this way; it is derived from the allow-list only.
func (s *Service) SetRole(ctx context.Context, sheetID string, user *models.User, role models.Role) error {
	if role == models.RoleSuperAdmin {
		return fmt.Errorf("super_admin is derived from configuration, not assignable")
	}
	user.Role = role
	if err := s.storage.SaveUser(ctx, sheetID, user); err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	s.cache.Invalidate(cache.UserKey(sheetID, user.ID))
	return nil
}

func (s *Service) applyRole(user *models.User) *models.User {
	if s.superAdmins[user.ID] {
		user.Role = models.RoleSuperAdmin
	}
	return user
}
