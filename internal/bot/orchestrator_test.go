package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/ai"
	"github.com/ignite88-dev/finance-bot-cloud/internal/audit"
	"github.com/ignite88-dev/finance-bot-cloud/internal/cache"
	"github.com/ignite88-dev/finance-bot-cloud/internal/confirm"
	"github.com/ignite88-dev/finance-bot-cloud/internal/group"
	"github.com/ignite88-dev/finance-bot-cloud/internal/ledger"
	"github.com/ignite88-dev/finance-bot-cloud/internal/memory"
	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
	"github.com/ignite88-dev/finance-bot-cloud/internal/ratelimit"
	"github.com/ignite88-dev/finance-bot-cloud/internal/storage"
	"github.com/ignite88-dev/finance-bot-cloud/pkg/retry"
)

// stubParser returns a canned intent and records what it was asked.
type stubParser struct {
	intent   *models.Intent
	lastText string
}

func (p *stubParser) ParseMessage(ctx context.Context, text string, pctx ai.PromptContext) *models.Intent {
	p.lastText = text
	if p.intent != nil {
		return p.intent
	}
	return &models.Intent{Kind: models.IntentChat, Reply: "Halo!"}
}

type testEnv struct {
	orchestrator *Orchestrator
	parser       *stubParser
	store        *storage.MemoryStorage
	groups       *group.Service
	recorder     *ledger.Recorder
}

func setupEnv(t *testing.T, rateMax int) *testEnv {
	t.Helper()

	store := storage.NewMemoryStorage()
	c, err := cache.New()
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	t.Cleanup(c.Close)

	logger := zap.NewNop()
	auditLog := audit.NewLogger(store, logger)
	ttls := group.TTLs{Group: time.Minute, Settings: time.Minute, User: time.Minute}
	groups := group.NewService(store, c, ttls, nil, logger)
	mem := memory.NewStore(store, c, time.Minute, 10, logger)
	recorder := ledger.NewRecorder(store, auditLog, retry.Config{MaxAttempts: 1}, logger)
	confirms := confirm.NewRegistry(time.Minute)
	limiter := ratelimit.NewLimiter(rateMax, time.Minute)
	parser := &stubParser{}

	return &testEnv{
		orchestrator: NewOrchestrator(groups, mem, parser, recorder, confirms, limiter, auditLog, logger),
		parser:       parser,
		store:        store,
		groups:       groups,
		recorder:     recorder,
	}
}

func incoming() Incoming {
	return Incoming{
		ChatID:      -100,
		ChatTitle:   "Keluarga",
		UserID:      1,
		Username:    "budi",
		FirstName:   "Budi",
		Text:        "makan siang 75rb",
		MessageType: "text",
	}
}

func expenseIntent(amount int64) *models.Intent {
	return &models.Intent{
		Kind:       models.IntentCreateTransaction,
		Reply:      "Siap, saya catat ya!",
		Confidence: 0.95,
		Draft: &models.TransactionDraft{
			UserID:      1,
			Username:    "budi",
			Type:        models.TypeExpense,
			Amount:      decimal.NewFromInt(amount),
			Currency:    "IDR",
			Description: "makan siang",
		},
	}
}

func TestTextProposesConfirmation(t *testing.T) {
	env := setupEnv(t, 30)
	env.parser.intent = expenseIntent(75000)
	ctx := context.Background()

	reply := env.orchestrator.HandleText(ctx, incoming())

	if reply.ConfirmToken == "" {
		t.Fatal("Expected a confirmation token")
	}
	if !strings.Contains(reply.Text, "Mohon konfirmasi") {
		t.Errorf("Expected confirmation prompt, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "Rp 75.000") {
		t.Errorf("Expected formatted amount, got %q", reply.Text)
	}

	// Nothing is committed before confirmation.
	grp, err := env.store.GetGroup(ctx, -100)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	txns, err := env.store.GetTransactions(ctx, grp.SheetID, 10)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txns) != 0 {
		t.Errorf("Expected no transactions before confirm, got %d", len(txns))
	}
}

func TestConfirmCommitsOnce(t *testing.T) {
	env := setupEnv(t, 30)
	env.parser.intent = expenseIntent(75000)
	ctx := context.Background()

	proposed := env.orchestrator.HandleText(ctx, incoming())
	token := proposed.ConfirmToken

	// A different user pressing confirm is rejected and does not consume
	// the token.
	other := incoming()
	other.UserID = 99
	other.Username = "siti"
	reply := env.orchestrator.HandleCallback(ctx, other, callbackConfirm+token)
	if reply.Text != "Ini bukan konfirmasi untuk Anda." {
		t.Errorf("Expected ownership rejection, got %q", reply.Text)
	}

	// The owner confirms: the transaction commits and the reply carries
	// amount and balance.
	reply = env.orchestrator.HandleCallback(ctx, incoming(), callbackConfirm+token)
	if !strings.Contains(reply.Text, "Rp 75.000") {
		t.Errorf("Expected amount in commit reply, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "Saldo") {
		t.Errorf("Expected balance in commit reply, got %q", reply.Text)
	}

	grp, err := env.store.GetGroup(ctx, -100)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	txns, err := env.store.GetTransactions(ctx, grp.SheetID, 10)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("Expected exactly 1 transaction, got %d", len(txns))
	}

	// Pressing confirm again finds nothing: exactly one commit per token.
	reply = env.orchestrator.HandleCallback(ctx, incoming(), callbackConfirm+token)
	if !strings.Contains(reply.Text, "kedaluwarsa") {
		t.Errorf("Expected expired message on replay, got %q", reply.Text)
	}
	txns, _ = env.store.GetTransactions(ctx, grp.SheetID, 10)
	if len(txns) != 1 {
		t.Errorf("Replay must not create a second transaction, got %d", len(txns))
	}
}

func TestCancelButtonDiscards(t *testing.T) {
	env := setupEnv(t, 30)
	env.parser.intent = expenseIntent(75000)
	ctx := context.Background()

	proposed := env.orchestrator.HandleText(ctx, incoming())
	reply := env.orchestrator.HandleCallback(ctx, incoming(), callbackCancel+proposed.ConfirmToken)
	if reply.Text != "Transaksi dibatalkan." {
		t.Errorf("Expected cancel acknowledgement, got %q", reply.Text)
	}

	grp, err := env.store.GetGroup(ctx, -100)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	txns, err := env.store.GetTransactions(ctx, grp.SheetID, 10)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txns) != 0 {
		t.Errorf("Expected no transactions after cancel, got %d", len(txns))
	}

	// Confirming a discarded token fails.
	reply = env.orchestrator.HandleCallback(ctx, incoming(), callbackConfirm+proposed.ConfirmToken)
	if !strings.Contains(reply.Text, "kedaluwarsa") {
		t.Errorf("Expected expired message, got %q", reply.Text)
	}
}

func TestClarificationPassedVerbatim(t *testing.T) {
	env := setupEnv(t, 30)
	env.parser.intent = &models.Intent{
		Kind:  models.IntentClarificationNeeded,
		Reply: "Berapa jumlahnya?",
	}

	reply := env.orchestrator.HandleText(context.Background(), incoming())
	if reply.Text != "Berapa jumlahnya?" {
		t.Errorf("Expected clarification verbatim, got %q", reply.Text)
	}
	if reply.ConfirmToken != "" {
		t.Error("Clarification must not carry a confirmation token")
	}
}

func TestMessageAppendedToMemory(t *testing.T) {
	env := setupEnv(t, 30)
	env.parser.intent = &models.Intent{Kind: models.IntentChat, Reply: "Halo!"}
	ctx := context.Background()

	env.orchestrator.HandleText(ctx, incoming())

	grp, err := env.store.GetGroup(ctx, -100)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	entries, err := env.store.GetMemory(ctx, grp.SheetID, 1, memory.DefaultThread, 10)
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 memory entry, got %d", len(entries))
	}
	if entries[0].Message != "makan siang 75rb" {
		t.Errorf("Expected message text stored, got %q", entries[0].Message)
	}
	if entries[0].Intent != string(models.IntentChat) {
		t.Errorf("Expected intent stored, got %q", entries[0].Intent)
	}
}

func TestRateLimitDenies(t *testing.T) {
	env := setupEnv(t, 1)
	ctx := context.Background()

	env.orchestrator.HandleText(ctx, incoming())
	reply := env.orchestrator.HandleText(ctx, incoming())
	if !strings.Contains(reply.Text, "Terlalu banyak permintaan") {
		t.Errorf("Expected rate-limit message, got %q", reply.Text)
	}
}

func TestViewerCannotRecord(t *testing.T) {
	env := setupEnv(t, 30)
	env.parser.intent = expenseIntent(75000)
	ctx := context.Background()

	gctx, err := env.groups.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if err := env.store.SaveUser(ctx, gctx.Group.SheetID, &models.User{
		ID:       1,
		Username: "budi",
		Role:     models.RoleViewer,
	}); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	reply := env.orchestrator.HandleText(ctx, incoming())
	if reply.ConfirmToken != "" {
		t.Error("Viewer must not receive a confirmation token")
	}
	if !strings.Contains(reply.Text, "peran Anda") {
		t.Errorf("Expected role rejection, got %q", reply.Text)
	}
}

func TestBannedGroupIsSilent(t *testing.T) {
	env := setupEnv(t, 30)
	ctx := context.Background()

	if _, err := env.groups.GetOrCreate(ctx, -100, "Keluarga", 1); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if err := env.groups.SetStatus(ctx, -100, models.GroupBanned); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	reply := env.orchestrator.HandleText(ctx, incoming())
	if reply.Text != "" {
		t.Errorf("Expected no reply for banned group, got %q", reply.Text)
	}
}

func TestBalanceInquiry(t *testing.T) {
	env := setupEnv(t, 30)
	ctx := context.Background()

	// Commit one income so the balance is non-trivial.
	env.parser.intent = &models.Intent{
		Kind:  models.IntentCreateTransaction,
		Reply: "Ok",
		Draft: &models.TransactionDraft{
			UserID:      1,
			Username:    "budi",
			Type:        models.TypeIncome,
			Amount:      decimal.NewFromInt(500000),
			Currency:    "IDR",
			Description: "gaji",
		},
	}
	proposed := env.orchestrator.HandleText(ctx, incoming())
	env.orchestrator.HandleCallback(ctx, incoming(), callbackConfirm+proposed.ConfirmToken)

	env.parser.intent = &models.Intent{Kind: models.IntentBalanceInquiry, Reply: "..."}
	in := incoming()
	in.Text = "saldo"
	reply := env.orchestrator.HandleText(ctx, in)
	if !strings.Contains(reply.Text, "Rp 500.000") {
		t.Errorf("Expected balance Rp 500.000, got %q", reply.Text)
	}
}

func TestCancelLastFlow(t *testing.T) {
	env := setupEnv(t, 30)
	ctx := context.Background()

	env.parser.intent = expenseIntent(75000)
	proposed := env.orchestrator.HandleText(ctx, incoming())
	env.orchestrator.HandleCallback(ctx, incoming(), callbackConfirm+proposed.ConfirmToken)

	env.parser.intent = &models.Intent{Kind: models.IntentCancelLast, Reply: "..."}
	in := incoming()
	in.Text = "salah tadi"
	reply := env.orchestrator.HandleText(ctx, in)
	if reply.ConfirmToken == "" {
		t.Fatal("Expected cancellation to ask for confirmation")
	}

	reply = env.orchestrator.HandleCallback(ctx, incoming(), callbackConfirm+reply.ConfirmToken)
	if !strings.Contains(reply.Text, "dibatalkan") {
		t.Errorf("Expected cancellation acknowledgement, got %q", reply.Text)
	}

	grp, _ := env.store.GetGroup(ctx, -100)
	txns, err := env.store.GetTransactions(ctx, grp.SheetID, 10)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txns) != 1 || !txns[0].Canceled {
		t.Errorf("Expected one soft-canceled transaction, got %+v", txns)
	}
}

func TestCancelPromptShowsOwnTransaction(t *testing.T) {
	env := setupEnv(t, 30)
	ctx := context.Background()

	// User 1 records lunch, then user 2 records a much larger purchase,
	// so the group's newest transaction is not user 1's.
	env.parser.intent = expenseIntent(75000)
	proposed := env.orchestrator.HandleText(ctx, incoming())
	env.orchestrator.HandleCallback(ctx, incoming(), callbackConfirm+proposed.ConfirmToken)

	other := incoming()
	other.UserID = 2
	other.Username = "siti"
	other.Text = "beli laptop 5jt"
	env.parser.intent = &models.Intent{
		Kind:  models.IntentCreateTransaction,
		Reply: "Ok",
		Draft: &models.TransactionDraft{
			UserID:      2,
			Username:    "siti",
			Type:        models.TypeExpense,
			Amount:      decimal.NewFromInt(5000000),
			Currency:    "IDR",
			Description: "beli laptop",
		},
	}
	proposed = env.orchestrator.HandleText(ctx, other)
	env.orchestrator.HandleCallback(ctx, other, callbackConfirm+proposed.ConfirmToken)

	// User 1 asks to cancel: the prompt must show user 1's transaction,
	// the one confirming will actually cancel.
	env.parser.intent = &models.Intent{Kind: models.IntentCancelLast, Reply: "..."}
	in := incoming()
	in.Text = "salah tadi"
	reply := env.orchestrator.HandleText(ctx, in)
	if reply.ConfirmToken == "" {
		t.Fatal("Expected cancellation to ask for confirmation")
	}
	if !strings.Contains(reply.Text, "Rp 75.000") {
		t.Errorf("Prompt must show the caller's transaction, got %q", reply.Text)
	}
	if strings.Contains(reply.Text, "Rp 5.000.000") {
		t.Errorf("Prompt must not show another user's transaction, got %q", reply.Text)
	}

	reply = env.orchestrator.HandleCallback(ctx, incoming(), callbackConfirm+reply.ConfirmToken)
	if !strings.Contains(reply.Text, "Rp 75.000") {
		t.Errorf("Expected user 1's transaction canceled, got %q", reply.Text)
	}

	grp, _ := env.store.GetGroup(ctx, -100)
	txns, err := env.store.GetTransactions(ctx, grp.SheetID, 10)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	for _, txn := range txns {
		if txn.UserID == 1 && !txn.Canceled {
			t.Error("User 1's transaction should be canceled")
		}
		if txn.UserID == 2 && txn.Canceled {
			t.Error("User 2's transaction must stay intact")
		}
	}
}

func TestCallbackConsumedOnlyOnResolution(t *testing.T) {
	env := setupEnv(t, 30)
	env.parser.intent = expenseIntent(75000)
	ctx := context.Background()

	proposed := env.orchestrator.HandleText(ctx, incoming())
	token := proposed.ConfirmToken

	// A non-owner press leaves the entry pending, so the keyboard must
	// survive for the owner.
	other := incoming()
	other.UserID = 99
	reply := env.orchestrator.HandleCallback(ctx, other, callbackConfirm+token)
	if reply.Consumed {
		t.Error("Non-owner press must not consume the entry")
	}
	reply = env.orchestrator.HandleCallback(ctx, other, callbackCancel+token)
	if reply.Consumed {
		t.Error("Non-owner cancel press must not consume the entry")
	}

	// The owner can still confirm afterwards.
	reply = env.orchestrator.HandleCallback(ctx, incoming(), callbackConfirm+token)
	if !reply.Consumed {
		t.Error("Owner confirmation must consume the entry")
	}
	if !strings.Contains(reply.Text, "Rp 75.000") {
		t.Errorf("Expected commit reply, got %q", reply.Text)
	}

	// A replay finds nothing; the dead keyboard can go.
	reply = env.orchestrator.HandleCallback(ctx, incoming(), callbackConfirm+token)
	if !reply.Consumed {
		t.Error("Replay of a resolved token should report the entry gone")
	}

	// The cancel button consumes on discard.
	env.parser.intent = expenseIntent(10000)
	proposed = env.orchestrator.HandleText(ctx, incoming())
	reply = env.orchestrator.HandleCallback(ctx, incoming(), callbackCancel+proposed.ConfirmToken)
	if !reply.Consumed {
		t.Error("Discard must consume the entry")
	}
}

// perUserParser builds an expense draft from the prompt context, with no
// shared state between calls.
type perUserParser struct{}

func (perUserParser) ParseMessage(ctx context.Context, text string, pctx ai.PromptContext) *models.Intent {
	return &models.Intent{
		Kind:  models.IntentCreateTransaction,
		Reply: "Ok",
		Draft: &models.TransactionDraft{
			UserID:      pctx.UserID,
			Username:    pctx.Username,
			Type:        models.TypeExpense,
			Amount:      decimal.NewFromInt(1000),
			Currency:    "IDR",
			Description: text,
		},
	}
}

func TestConcurrentUsersKeepLedgerConsistent(t *testing.T) {
	env := setupEnv(t, 1000)
	env.orchestrator.parser = perUserParser{}
	ctx := context.Background()

	const users = 8
	const perUser = 5

	var wg sync.WaitGroup
	for u := 1; u <= users; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				in := incoming()
				in.UserID = userID
				in.Username = fmt.Sprintf("user%d", userID)
				proposed := env.orchestrator.HandleText(ctx, in)
				if proposed.ConfirmToken == "" {
					t.Errorf("User %d got no confirmation token: %q", userID, proposed.Text)
					return
				}
				env.orchestrator.HandleCallback(ctx, in, callbackConfirm+proposed.ConfirmToken)
			}
		}(int64(u))
	}
	wg.Wait()

	grp, err := env.store.GetGroup(ctx, -100)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	txns, err := env.store.GetTransactions(ctx, grp.SheetID, users*perUser+10)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txns) != users*perUser {
		t.Fatalf("Expected %d transactions, got %d", users*perUser, len(txns))
	}

	// The ledger stays reconstructable whatever the interleaving: the
	// recomputed balance reflects every committed expense exactly once.
	balance, err := env.recorder.Balance(ctx, *grp, "IDR")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	want := decimal.NewFromInt(-1000 * users * perUser)
	if !balance.Equal(want) {
		t.Errorf("Expected balance %s, got %s", want, balance)
	}
}

func TestCommandHelp(t *testing.T) {
	env := setupEnv(t, 30)

	reply := env.orchestrator.HandleCommand(context.Background(), incoming(), "help", "")
	if !strings.Contains(reply.Text, "/saldo") {
		t.Errorf("Expected command list, got %q", reply.Text)
	}
}

func TestCommandSetLimitRequiresAdmin(t *testing.T) {
	env := setupEnv(t, 30)
	ctx := context.Background()

	reply := env.orchestrator.HandleCommand(ctx, incoming(), "setlimit", "harian 500rb")
	if !strings.Contains(reply.Text, "admin") {
		t.Errorf("Expected admin rejection, got %q", reply.Text)
	}
}

func TestCommandSetLimitAsAdmin(t *testing.T) {
	env := setupEnv(t, 30)
	ctx := context.Background()

	gctx, err := env.groups.GetOrCreate(ctx, -100, "Keluarga", 1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if err := env.store.SaveUser(ctx, gctx.Group.SheetID, &models.User{
		ID:       1,
		Username: "budi",
		Role:     models.RoleAdmin,
	}); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	reply := env.orchestrator.HandleCommand(ctx, incoming(), "setlimit", "harian 500rb")
	if !strings.Contains(reply.Text, "Rp 500.000") {
		t.Errorf("Expected new limit echoed, got %q", reply.Text)
	}

	settings, err := env.store.GetSettings(ctx, gctx.Group.SheetID)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings.DailyLimit != 500000 {
		t.Errorf("Expected stored daily limit 500000, got %v", settings.DailyLimit)
	}
}
