package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func GenerateID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func GenerateSessionID() string {
	return fmt.Sprintf("session_%s_%d", GenerateID()[:8], time.Now().Unix())
}

func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// ValidateMessage rejects empty bodies and bodies beyond the Telegram limit.
func ValidateMessage(content string) bool {
	if len(content) == 0 || len(content) > 4096 {
		return false
	}
	return true
}

// NormalizeEmail lower-cases and trims an email address. Applied both on
// write and on lookup so order searches match regardless of input casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CSVField double-quotes a field, escaping embedded quotes.
func CSVField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// FormatCents renders a cent amount as a dollar string.
func FormatCents(cents int) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
