// Package bot wires the message pipeline: rate limiting, group and user
// resolution, intent extraction, the pending-confirmation flow and the
// ledger commit, plus the Telegram transport around it.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/ai"
	"github.com/ignite88-dev/finance-bot-cloud/internal/audit"
	"github.com/ignite88-dev/finance-bot-cloud/internal/confirm"
	"github.com/ignite88-dev/finance-bot-cloud/internal/format"
	"github.com/ignite88-dev/finance-bot-cloud/internal/group"
	"github.com/ignite88-dev/finance-bot-cloud/internal/ledger"
	"github.com/ignite88-dev/finance-bot-cloud/internal/memory"
	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
	"github.com/ignite88-dev/finance-bot-cloud/internal/ratelimit"
	"github.com/ignite88-dev/finance-bot-cloud/internal/storage"
)

// Incoming is one normalized inbound message, decoupled from the transport.
type Incoming struct {
	ChatID    int64
	ChatTitle string
	UserID    int64
	Username  string
	FirstName string
	Text      string
	ThreadID  string
	// MessageType is "text" or "voice" (after transcription).
	MessageType string
}

// Reply is the orchestrator's answer. When ConfirmToken is set the
// transport attaches a confirm/cancel keyboard carrying that token.
type Reply struct {
	Text         string
	ConfirmToken string
	// Consumed reports that a callback removed its pending entry. The
	// transport strips the inline keyboard only then; a rejected press
	// leaves the owner's buttons in place.
	Consumed bool
}

// IntentParser extracts a typed intent from free text. Satisfied by
// ai.Client; tests substitute a stub.
type IntentParser interface {
	ParseMessage(ctx context.Context, text string, pctx ai.PromptContext) *models.Intent
}

// Orchestrator runs the pipeline from normalized message to reply. It has
// no knowledge of the Telegram API.
type Orchestrator struct {
	groups   *group.Service
	memory   *memory.Store
	parser   IntentParser
	recorder *ledger.Recorder
	confirms *confirm.Registry
	limiter  *ratelimit.Limiter
	audit    *audit.Logger
	logger   *zap.Logger
}

func NewOrchestrator(
	groups *group.Service,
	mem *memory.Store,
	parser IntentParser,
	recorder *ledger.Recorder,
	confirms *confirm.Registry,
	limiter *ratelimit.Limiter,
	auditLog *audit.Logger,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		groups:   groups,
		memory:   mem,
		parser:   parser,
		recorder: recorder,
		confirms: confirms,
		limiter:  limiter,
		audit:    auditLog,
		logger:   logger,
	}
}

// HandleText runs the full message pipeline. Every processed message is
// appended to memory, whatever branch it takes afterwards.
func (o *Orchestrator) HandleText(ctx context.Context, in Incoming) Reply {
	if res := o.limiter.Check(in.UserID); !res.Allowed {
		return Reply{Text: fmt.Sprintf("Terlalu banyak permintaan. Coba lagi dalam %d detik.", int(res.Wait.Seconds())+1)}
	}

	gctx, user, reply, ok := o.resolveContext(ctx, in)
	if !ok {
		return reply
	}

	bundle := o.memory.GetRecent(ctx, in.ChatID, gctx.Group.SheetID, in.UserID, in.ThreadID)
	intent := o.parser.ParseMessage(ctx, in.Text, ai.PromptContext{
		Settings: &gctx.Settings,
		Memory:   bundle,
		Role:     user.Role,
		UserID:   in.UserID,
		Username: in.Username,
	})

	o.appendMemory(ctx, gctx.Group.SheetID, in, intent)

	switch intent.Kind {
	case models.IntentCreateTransaction:
		return o.proposeTransaction(in, user, intent)
	case models.IntentClarificationNeeded:
		return Reply{Text: intent.Reply}
	case models.IntentBalanceInquiry:
		return o.replyBalance(ctx, gctx)
	case models.IntentHistoryInquiry:
		return o.replyHistory(ctx, gctx)
	case models.IntentCancelLast:
		return o.proposeCancel(ctx, gctx, in)
	case models.IntentChat:
		if !gctx.Settings.EnableChat {
			return Reply{Text: "Fitur obrolan dinonaktifkan di grup ini."}
		}
		return Reply{Text: intent.Reply}
	default:
		return Reply{Text: intent.Reply}
	}
}

// resolveContext loads group and user, rejecting inactive groups. ok is
// false when the returned reply should be sent as-is.
func (o *Orchestrator) resolveContext(ctx context.Context, in Incoming) (*group.Context, *models.User, Reply, bool) {
	gctx, err := o.groups.GetOrCreate(ctx, in.ChatID, in.ChatTitle, in.UserID)
	if err != nil {
		o.logger.Error("Failed to resolve group",
			zap.Error(err),
			zap.Int64("chat_id", in.ChatID))
		return nil, nil, Reply{Text: "Maaf, terjadi kesalahan. Silakan coba lagi."}, false
	}

	switch gctx.Group.Status {
	case models.GroupBanned:
		return nil, nil, Reply{}, false
	case models.GroupInactive:
		return nil, nil, Reply{Text: "Grup ini sedang tidak aktif."}, false
	}

	user, err := o.groups.TouchUser(ctx, gctx.Group.SheetID, in.UserID, in.Username, in.FirstName)
	if err != nil {
		o.logger.Error("Failed to resolve user",
			zap.Error(err),
			zap.Int64("user_id", in.UserID))
		return nil, nil, Reply{Text: "Maaf, terjadi kesalahan. Silakan coba lagi."}, false
	}
	return gctx, user, Reply{}, true
}

func (o *Orchestrator) appendMemory(ctx context.Context, sheetID string, in Incoming, intent *models.Intent) {
	serialized, _ := json.Marshal(intent)
	o.memory.Append(ctx, sheetID, &models.MemoryEntry{
		ChatID:      in.ChatID,
		UserID:      in.UserID,
		Username:    in.Username,
		Message:     in.Text,
		AIResponse:  string(serialized),
		Intent:      string(intent.Kind),
		ThreadID:    in.ThreadID,
		MessageType: in.MessageType,
		TokensUsed:  intent.TokensUsed,
		Model:       intent.Model,
		Confidence:  intent.Confidence,
	})
}

// proposeTransaction registers a pending confirmation. Nothing is written
// to the ledger until the owner confirms.
func (o *Orchestrator) proposeTransaction(in Incoming, user *models.User, intent *models.Intent) Reply {
	if !user.Role.CanRecord() {
		return Reply{Text: "Maaf, peran Anda tidak mengizinkan mencatat transaksi."}
	}

	token, err := o.confirms.Create(in.UserID, in.ChatID, confirm.ActionCreateTransaction, intent.Draft)
	if err != nil {
		o.logger.Error("Failed to create confirmation", zap.Error(err))
		return Reply{Text: "Maaf, terjadi kesalahan. Silakan coba lagi."}
	}

	return Reply{
		Text:         format.ConfirmationPrompt(intent.Draft),
		ConfirmToken: token,
	}
}

// proposeCancel shows the caller's own last transaction, the exact one a
// confirm will cancel.
func (o *Orchestrator) proposeCancel(ctx context.Context, gctx *group.Context, in Incoming) Reply {
	last, err := o.recorder.LastUserTransaction(ctx, gctx.Group, in.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return Reply{Text: "Tidak ada transaksi yang bisa dibatalkan."}
	}
	if err != nil {
		o.logger.Error("Failed to load last transaction",
			zap.Error(err),
			zap.Int64("user_id", in.UserID))
		return Reply{Text: "Maaf, terjadi kesalahan. Silakan coba lagi."}
	}

	token, err := o.confirms.Create(in.UserID, in.ChatID, confirm.ActionCancelTransaction, nil)
	if err != nil {
		o.logger.Error("Failed to create confirmation", zap.Error(err))
		return Reply{Text: "Maaf, terjadi kesalahan. Silakan coba lagi."}
	}

	return Reply{
		Text:         "Batalkan transaksi terakhir Anda?\n" + format.TransactionLine(last, gctx.Settings.Timezone),
		ConfirmToken: token,
	}
}

func (o *Orchestrator) replyBalance(ctx context.Context, gctx *group.Context) Reply {
	balance, err := o.recorder.Balance(ctx, gctx.Group, gctx.Settings.Currency)
	if err != nil {
		o.logger.Error("Failed to compute balance",
			zap.Error(err),
			zap.Int64("chat_id", gctx.Group.ChatID))
		return Reply{Text: "Maaf, saldo tidak dapat diambil saat ini."}
	}
	return Reply{Text: fmt.Sprintf("Saldo saat ini: %s", format.Currency(balance, gctx.Settings.Currency))}
}

func (o *Orchestrator) replyHistory(ctx context.Context, gctx *group.Context) Reply {
	txns, err := o.recorder.History(ctx, gctx.Group, 10)
	if err != nil {
		o.logger.Error("Failed to load history",
			zap.Error(err),
			zap.Int64("chat_id", gctx.Group.ChatID))
		return Reply{Text: "Maaf, riwayat transaksi tidak dapat diambil saat ini."}
	}
	if len(txns) == 0 {
		return Reply{Text: "Belum ada transaksi tercatat."}
	}

	lines := make([]string, 0, len(txns)+1)
	lines = append(lines, "Transaksi terakhir:")
	for _, txn := range txns {
		lines = append(lines, format.TransactionLine(txn, gctx.Settings.Timezone))
	}
	return Reply{Text: strings.Join(lines, "\n")}
}

// Callback data prefixes used by the inline keyboard.
const (
	callbackConfirm = "confirm:"
	callbackCancel  = "cancel:"
)

// HandleCallback resolves a confirm/cancel button press. Resolution is
// terminal: a second press of the same button finds nothing.
func (o *Orchestrator) HandleCallback(ctx context.Context, in Incoming, data string) Reply {
	switch {
	case strings.HasPrefix(data, callbackConfirm):
		return o.handleConfirm(ctx, in, strings.TrimPrefix(data, callbackConfirm))
	case strings.HasPrefix(data, callbackCancel):
		return o.handleDiscard(in, strings.TrimPrefix(data, callbackCancel))
	default:
		return Reply{Text: "Aksi tidak dikenali."}
	}
}

func (o *Orchestrator) handleConfirm(ctx context.Context, in Incoming, token string) Reply {
	entry, err := o.confirms.Resolve(token, in.UserID)
	if errors.Is(err, confirm.ErrNotOwner) {
		return Reply{Text: "Ini bukan konfirmasi untuk Anda."}
	}
	if err != nil {
		return Reply{Text: "Konfirmasi sudah kedaluwarsa atau tidak ditemukan.", Consumed: true}
	}

	reply := o.runConfirmed(ctx, in, entry)
	reply.Consumed = true
	return reply
}

func (o *Orchestrator) runConfirmed(ctx context.Context, in Incoming, entry confirm.Entry) Reply {
	gctx, user, reply, ok := o.resolveContext(ctx, in)
	if !ok {
		return reply
	}

	switch entry.Kind {
	case confirm.ActionCreateTransaction:
		draft, ok := entry.Payload.(*models.TransactionDraft)
		if !ok {
			return Reply{Text: "Konfirmasi sudah kedaluwarsa atau tidak ditemukan."}
		}
		return o.commitTransaction(ctx, gctx, user, draft)
	case confirm.ActionCancelTransaction:
		return o.cancelLast(ctx, gctx, in.UserID)
	default:
		return Reply{Text: "Aksi tidak dikenali."}
	}
}

func (o *Orchestrator) handleDiscard(in Incoming, token string) Reply {
	entry, ok := o.confirms.Get(token)
	if !ok {
		return Reply{Text: "Konfirmasi sudah kedaluwarsa atau tidak ditemukan.", Consumed: true}
	}
	if entry.OwnerID != in.UserID {
		return Reply{Text: "Ini bukan konfirmasi untuk Anda."}
	}
	o.confirms.Discard(token)
	return Reply{Text: "Transaksi dibatalkan.", Consumed: true}
}

func (o *Orchestrator) commitTransaction(ctx context.Context, gctx *group.Context, user *models.User, draft *models.TransactionDraft) Reply {
	result, err := o.recorder.Record(ctx, gctx.Group, gctx.Settings, draft)
	if err != nil {
		o.logger.Error("Failed to record transaction",
			zap.Error(err),
			zap.Int64("chat_id", gctx.Group.ChatID),
			zap.Int64("user_id", draft.UserID))
		return Reply{Text: "Maaf, transaksi gagal disimpan. Silakan coba lagi."}
	}

	if err := o.groups.RecordTransactionStats(ctx, gctx.Group.SheetID, user, draft.Currency, draft.Amount.InexactFloat64()); err != nil {
		o.logger.Warn("Failed to update user stats",
			zap.Error(err),
			zap.Int64("user_id", user.ID))
	}

	txn := result.Transaction
	lines := []string{fmt.Sprintf("✅ %s tercatat: %s (%s)",
		format.TypeLabel(txn.Type), format.Currency(txn.Amount, txn.Currency), txn.Description)}
	if !result.AggregatesStale {
		lines = append(lines, fmt.Sprintf("Saldo %s: %s", txn.Currency, format.Currency(result.Balance, txn.Currency)))
		if txn.Type == models.TypeConvert {
			lines = append(lines, fmt.Sprintf("Saldo %s: %s", txn.TargetCurrency, format.Currency(result.TargetBalance, txn.TargetCurrency)))
		}
	}
	if result.DailyExceeded {
		lines = append(lines, fmt.Sprintf("⚠️ Pengeluaran hari ini %s melebihi batas harian %s.",
			format.Currency(result.Daily.Spent, txn.Currency), format.Currency(result.Daily.Limit, txn.Currency)))
	}
	if result.MonthlyExceeded {
		lines = append(lines, fmt.Sprintf("⚠️ Pengeluaran bulan ini %s melebihi batas bulanan %s.",
			format.Currency(result.Monthly.Spent, txn.Currency), format.Currency(result.Monthly.Limit, txn.Currency)))
	}
	if txn.RequiresAdminApproval {
		lines = append(lines, "Transaksi besar: menunggu persetujuan admin.")
	}
	return Reply{Text: strings.Join(lines, "\n")}
}

func (o *Orchestrator) cancelLast(ctx context.Context, gctx *group.Context, userID int64) Reply {
	txn, err := o.recorder.Cancel(ctx, gctx.Group, gctx.Settings, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Reply{Text: "Tidak ada transaksi yang bisa dibatalkan."}
	}
	if err != nil {
		o.logger.Error("Failed to cancel transaction",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return Reply{Text: "Maaf, pembatalan gagal. Silakan coba lagi."}
	}
	return Reply{Text: fmt.Sprintf("Transaksi %s (%s) dibatalkan.",
		format.Currency(txn.Amount, txn.Currency), txn.Description)}
}
