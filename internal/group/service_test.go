package group

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/cache"
	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
	"github.com/ignite88-dev/finance-bot-cloud/internal/storage"
)

func setupService(t *testing.T, superAdmins ...int64) (*Service, *storage.MemoryStorage) {
	t.Helper()

	store := storage.NewMemoryStorage()
	c, err := cache.New()
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	t.Cleanup(c.Close)

	ttls := TTLs{Group: time.Minute, Settings: time.Minute, User: time.Minute}
	return NewService(store, c, ttls, superAdmins, zap.NewNop()), store
}

func TestGetOrCreateProvisionsNewGroup(t *testing.T) {
	s, store := setupService(t)
	ctx := context.Background()

	gctx, err := s.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if gctx.Group.SheetID == "" {
		t.Error("Expected a sheet locator to be assigned")
	}
	if gctx.Group.Status != models.GroupActive {
		t.Errorf("Expected ACTIVE status, got %s", gctx.Group.Status)
	}
	if gctx.Settings.Currency != "IDR" {
		t.Errorf("Expected default currency IDR, got %s", gctx.Settings.Currency)
	}

	// The group must be durable, not only cached.
	stored, err := store.GetGroup(ctx, -100)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if stored.SheetID != gctx.Group.SheetID {
		t.Errorf("Stored sheet %s differs from returned %s", stored.SheetID, gctx.Group.SheetID)
	}
}

func TestGetOrCreateIsStable(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("First GetOrCreate failed: %v", err)
	}
	second, err := s.GetOrCreate(ctx, -100, "Keluarga", 2)
	if err != nil {
		t.Fatalf("Second GetOrCreate failed: %v", err)
	}
	if first.Group.SheetID != second.Group.SheetID {
		t.Error("Repeated lookups must resolve the same group")
	}
}

func TestTouchUserCreatesProfile(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	gctx, err := s.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	user, err := s.TouchUser(ctx, gctx.Group.SheetID, 7, "budi", "Budi")
	if err != nil {
		t.Fatalf("TouchUser failed: %v", err)
	}
	if user.Role != models.RoleUser {
		t.Errorf("Expected default role user, got %s", user.Role)
	}
	if user.Username != "budi" {
		t.Errorf("Expected username budi, got %q", user.Username)
	}
}

func TestSuperAdminRoleDerivedFromAllowList(t *testing.T) {
	s, _ := setupService(t, 7)
	ctx := context.Background()

	gctx, err := s.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	user, err := s.TouchUser(ctx, gctx.Group.SheetID, 7, "budi", "Budi")
	if err != nil {
		t.Fatalf("TouchUser failed: %v", err)
	}
	if user.Role != models.RoleSuperAdmin {
		t.Errorf("Expected super_admin from allow-list, got %s", user.Role)
	}
}

func TestUpdateSettingsVisibleAfterAck(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	gctx, err := s.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	settings := gctx.Settings
	settings.DailyLimit = 250000
	if err := s.UpdateSettings(ctx, gctx, settings); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}

	reloaded, err := s.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.Settings.DailyLimit != 250000 {
		t.Errorf("Expected new limit visible immediately, got %v", reloaded.Settings.DailyLimit)
	}
}

func TestRecordTransactionStats(t *testing.T) {
	s, store := setupService(t)
	ctx := context.Background()

	gctx, err := s.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	user, err := s.TouchUser(ctx, gctx.Group.SheetID, 7, "budi", "Budi")
	if err != nil {
		t.Fatalf("TouchUser failed: %v", err)
	}

	if err := s.RecordTransactionStats(ctx, gctx.Group.SheetID, user, "IDR", 75000); err != nil {
		t.Fatalf("RecordTransactionStats failed: %v", err)
	}
	if err := s.RecordTransactionStats(ctx, gctx.Group.SheetID, user, "IDR", 25000); err != nil {
		t.Fatalf("RecordTransactionStats failed: %v", err)
	}

	stored, err := store.GetUser(ctx, gctx.Group.SheetID, 7)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if stored.TotalTransactions != 2 {
		t.Errorf("Expected 2 transactions, got %d", stored.TotalTransactions)
	}
	if stored.TotalAmounts["IDR"] != 100000 {
		t.Errorf("Expected cumulative 100000, got %v", stored.TotalAmounts["IDR"])
	}
}

func TestSetRoleRejectsSuperAdmin(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	gctx, err := s.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	user, err := s.TouchUser(ctx, gctx.Group.SheetID, 7, "budi", "Budi")
	if err != nil {
		t.Fatalf("TouchUser failed: %v", err)
	}

	if err := s.SetRole(ctx, gctx.Group.SheetID, user, models.RoleSuperAdmin); err == nil {
		t.Error("Expected super_admin assignment to be rejected")
	}
	if err := s.SetRole(ctx, gctx.Group.SheetID, user, models.RoleAdmin); err != nil {
		t.Errorf("Admin assignment failed: %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	s, store := setupService(t)
	ctx := context.Background()

	if _, err := s.GetOrCreate(ctx, -100, "Keluarga", 1); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if err := s.SetStatus(ctx, -100, models.GroupBanned); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	grp, err := store.GetGroup(ctx, -100)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if grp.Status != models.GroupBanned {
		t.Errorf("Expected BANNED, got %s", grp.Status)
	}

	gctx, err := s.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("GetOrCreate after ban failed: %v", err)
	}
	if gctx.Group.Status != models.GroupBanned {
		t.Errorf("Expected cached view refreshed to BANNED, got %s", gctx.Group.Status)
	}
}
