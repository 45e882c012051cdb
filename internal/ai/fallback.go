package ai

import (
	"strings"

	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
)

// fallbackIntent is the deterministic rule-based interpreter used when
// every provider is exhausted. It matches keywords on the raw text so the
// user never sees a hard error for a language-understanding failure. The
// reply is always non-empty.
func fallbackIntent(text string) *models.Intent {
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, "saldo", "balance"):
		return &models.Intent{
			Kind:  models.IntentBalanceInquiry,
			Reply: "Untuk melihat saldo, ketik /saldo atau 'cek saldo'.",
		}
	case containsAny(lower, "transaksi", "history", "laporan", "riwayat"):
		return &models.Intent{
			Kind:  models.IntentHistoryInquiry,
			Reply: "Untuk melihat transaksi terakhir, ketik /laporan.",
		}
	case containsAny(lower, "salah tadi", "batal", "hapus tadi"):
		return &models.Intent{
			Kind:  models.IntentCancelLast,
			Reply: "Ingin membatalkan transaksi terakhir? Ketik /batal.",
		}
	case containsAny(lower, "bantuan", "help", "tolong"):
		return &models.Intent{
			Kind: models.IntentHelp,
			Reply: "Contoh perintah:\n" +
				"• 'gajian 5 juta'\n" +
				"• 'makan 75rb'\n" +
				"• 'salah tadi' untuk membatalkan\n" +
				"• /saldo untuk cek saldo",
		}
	default:
		return &models.Intent{
			Kind:  models.IntentChat,
			Reply: "Saya agak bingung nih. Coba ketik 'bantuan' untuk panduan ya!",
		}
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
