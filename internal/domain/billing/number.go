package billing

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// FormatPlainNumber builds INV-{YYYY}{MM}-{SEQ4}
func FormatPlainNumber(year, month int, seq int64) string {
	return fmt.Sprintf("INV-%04d%02d-%04d", year, month, seq)
}

// FormatConsolidatedNumber builds INV-{DevInit2}-{DevIdTail4}-{YYYY}{MM}
func FormatConsolidatedNumber(developerName string, developerID uuid.UUID, year, month int) string {
	hex := strings.ReplaceAll(developerID.String(), "-", "")
	return fmt.Sprintf("INV-%s-%s-%04d%02d", developerInitials(developerName), strings.ToUpper(hex[len(hex)-4:]), year, month)
}

func developerInitials(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	var out []rune
	switch {
	case len(words) >= 2:
		out = append(out, []rune(words[0])[0], []rune(words[1])[0])
	case len(words) == 1:
		out = []rune(words[0])
		if len(out) > 2 {
			out = out[:2]
		}
	}
	for len(out) < 2 {
		out = append(out, 'X')
	}
	return strings.ToUpper(string(out))
}

// StartMonth returns the first month a newly added property is billed for.
// Properties added after cutoffDay start next month; ok is false when that
// runs past December.
func StartMonth(addedAt time.Time, cutoffDay int) (month int, ok bool) {
	month = int(addedAt.Month())
	if addedAt.Day() > cutoffDay {
		month++
	}
	if month > 12 {
		return 0, false
	}
	return month, true
}
