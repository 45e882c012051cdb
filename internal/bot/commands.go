package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shopspring/decimal"

	"github.com/ignite88-dev/finance-bot-cloud/internal/audit"
	"github.com/ignite88-dev/finance-bot-cloud/internal/format"
	"github.com/ignite88-dev/finance-bot-cloud/internal/group"
	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
)

const welcomeText = `Halo! Saya asisten keuangan grup ini. 💰

Cukup tulis transaksi dengan bahasa sehari-hari, misalnya:
"makan siang 75rb" atau "terima gaji 5 juta"

Saya akan minta konfirmasi sebelum mencatat. Pesan suara juga bisa!
Gunakan /help untuk daftar perintah.`

const helpText = `Perintah yang tersedia:
/start - Mulai bot
/help - Tampilkan bantuan ini
/saldo - Lihat saldo saat ini
/laporan - Lihat transaksi terakhir
/batal - Batalkan transaksi terakhir Anda
/config - Lihat pengaturan grup
/setlimit harian|bulanan <jumlah> - Ubah batas pengeluaran (admin)

Atau kirim pesan biasa:
"beli pulsa 50rb" - catat pengeluaran
"terima transfer 2 juta" - catat pemasukan
"saldo" - tanya saldo`

// HandleCommand dispatches slash commands. Unknown commands fall through to
// a hint.
func (o *Orchestrator) HandleCommand(ctx context.Context, in Incoming, command, args string) Reply {
	switch command {
	case "start":
		return Reply{Text: welcomeText}
	case "help":
		return Reply{Text: helpText}
	}

	gctx, user, reply, ok := o.resolveContext(ctx, in)
	if !ok {
		return reply
	}

	switch command {
	case "saldo":
		return o.replyBalance(ctx, gctx)
	case "laporan":
		return o.replyHistory(ctx, gctx)
	case "batal":
		return o.proposeCancel(ctx, gctx, in)
	case "config":
		return o.replyConfig(gctx)
	case "setlimit":
		return o.handleSetLimit(ctx, gctx, user, args)
	default:
		return Reply{Text: "Perintah tidak dikenali. Gunakan /help untuk daftar perintah."}
	}
}

func (o *Orchestrator) replyConfig(gctx *group.Context) Reply {
	s := gctx.Settings
	lines := []string{
		"Pengaturan grup:",
		fmt.Sprintf("Mata uang: %s", s.Currency),
		fmt.Sprintf("Batas harian: %s", format.Currency(decimal.NewFromFloat(s.DailyLimit), s.Currency)),
		fmt.Sprintf("Batas bulanan: %s", format.Currency(decimal.NewFromFloat(s.MonthlyLimit), s.Currency)),
		fmt.Sprintf("Zona waktu: %s", s.Timezone),
		fmt.Sprintf("Obrolan AI: %s", onOff(s.EnableChat)),
		fmt.Sprintf("Persetujuan admin: %s", onOff(s.RequireAdminApproval)),
		fmt.Sprintf("Ambang transaksi besar: %s", format.Currency(decimal.NewFromFloat(s.BigTransactionThreshold), s.Currency)),
	}
	return Reply{Text: strings.Join(lines, "\n")}
}

func (o *Orchestrator) handleSetLimit(ctx context.Context, gctx *group.Context, user *models.User, args string) Reply {
	if !user.Role.IsAdmin() {
		return Reply{Text: "Hanya admin yang dapat mengubah batas pengeluaran."}
	}

	fields := strings.Fields(args)
	if len(fields) < 2 {
		return Reply{Text: "Format: /setlimit harian|bulanan <jumlah>"}
	}

	amount, ok := format.ParseAmount(strings.Join(fields[1:], " "))
	if !ok {
		return Reply{Text: "Jumlah tidak terbaca. Contoh: /setlimit harian 500rb"}
	}

	settings := gctx.Settings
	var label string
	switch strings.ToLower(fields[0]) {
	case "harian", "daily":
		settings.DailyLimit = amount.InexactFloat64()
		label = "harian"
	case "bulanan", "monthly":
		settings.MonthlyLimit = amount.InexactFloat64()
		label = "bulanan"
	default:
		return Reply{Text: "Format: /setlimit harian|bulanan <jumlah>"}
	}

	if err := o.groups.UpdateSettings(ctx, gctx, settings); err != nil {
		o.logger.Error("Failed to update settings",
			zap.Error(err),
			zap.Int64("chat_id", gctx.Group.ChatID))
		return Reply{Text: "Maaf, pengaturan gagal disimpan. Silakan coba lagi."}
	}

	o.audit.Record(ctx, audit.Event{
		Kind:    audit.KindSettingsChanged,
		ChatID:  gctx.Group.ChatID,
		UserID:  user.ID,
		SheetID: gctx.Group.SheetID,
		Message: fmt.Sprintf("Limit %s set to %s by %s", label, amount, user.Username),
	})
	return Reply{Text: fmt.Sprintf("Batas %s diubah menjadi %s.", label, format.Currency(amount, settings.Currency))}
}

func onOff(b bool) string {
	if b {
		return "aktif"
	}
	return "nonaktif"
}
