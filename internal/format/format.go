// Package format renders amounts, dates and transaction summaries for user
// replies, and parses colloquial Indonesian amount phrases.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
)

// Currency renders an amount for display: "Rp 75.000" for IDR (dot
// thousands separator, no decimals), "$75.00" for USD, "CODE amount" for
// anything else.
func Currency(amount decimal.Decimal, code string) string {
	switch code {
	case "IDR":
		return "Rp " + groupThousands(amount.Round(0).String(), ".")
	case "USD":
		return "$" + groupThousands(amount.StringFixed(2), ",")
	default:
		return code + " " + amount.String()
	}
}

// groupThousands inserts sep between thousand groups of the integer part.
func groupThousands(s, sep string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(sep)
		}
		b.WriteRune(r)
	}
	out := b.String() + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// Date renders a timestamp in the group's timezone.
func Date(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02 Jan 2006, 15:04")
}

var amountRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(juta|jt|ribu|rb|k)?`)

// ParseAmount parses colloquial amount phrases: "75rb" and "75k" mean
// 75000, "5 juta" means 5000000. The suffix must follow the number, so
// "makan 500" is not scaled by the k in "makan". Returns ok=false when no
// number is present.
func ParseAmount(text string) (decimal.Decimal, bool) {
	match := amountRe.FindStringSubmatch(strings.ToLower(text))
	if match == nil {
		return decimal.Zero, false
	}

	number, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
	if err != nil {
		return decimal.Zero, false
	}

	multiplier := decimal.NewFromInt(1)
	switch match[2] {
	case "juta", "jt":
		multiplier = decimal.NewFromInt(1_000_000)
	case "ribu", "rb", "k":
		multiplier = decimal.NewFromInt(1_000)
	}
	return decimal.NewFromFloat(number).Mul(multiplier), true
}

// typeLabels are the Indonesian display names for transaction types.
var typeLabels = map[models.TransactionType]string{
	models.TypeIncome:   "Pemasukan",
	models.TypeExpense:  "Pengeluaran",
	models.TypeTransfer: "Transfer",
	models.TypeConvert:  "Konversi",
}

// TypeLabel returns the display name for a transaction type.
func TypeLabel(t models.TransactionType) string {
	if label, ok := typeLabels[t]; ok {
		return label
	}
	return string(t)
}

// ConfirmationPrompt renders the confirmation request for a draft.
func ConfirmationPrompt(draft *models.TransactionDraft) string {
	lines := []string{
		"Mohon konfirmasi transaksi berikut:",
		fmt.Sprintf("Jenis: %s", TypeLabel(draft.Type)),
		fmt.Sprintf("Jumlah: %s", Currency(draft.Amount, draft.Currency)),
		fmt.Sprintf("Deskripsi: %s", draft.Description),
	}
	if draft.Category != "" {
		lines = append(lines, fmt.Sprintf("Kategori: %s", draft.Category))
	}
	if draft.Type == models.TypeConvert {
		lines = append(lines, fmt.Sprintf("Menjadi: %s", Currency(draft.TargetAmount, draft.TargetCurrency)))
	}
	return strings.Join(lines, "\n")
}

// TransactionLine renders one history row.
func TransactionLine(txn *models.Transaction, tz string) string {
	line := fmt.Sprintf("%s · %s · %s · %s",
		Date(txn.Timestamp, tz), TypeLabel(txn.Type), Currency(txn.Amount, txn.Currency), txn.Description)
	if txn.Canceled {
		line += " (dibatalkan)"
	}
	return line
}
