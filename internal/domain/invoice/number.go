package invoice

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// PropertyPrefix returns the first three letters or digits of a property
// name in upper case, padded with X.
func PropertyPrefix(propertyName string) string {
	var b strings.Builder
	for _, r := range propertyName {
		if b.Len() == 3 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	for b.Len() < 3 {
		b.WriteByte('X')
	}
	return b.String()
}

// FormatNumber builds {PROP3}-{YY}{MM}-{SEQ3}-{TS4}. seq is the count of
// invoices the property already has for the period plus one; the timestamp
// tail separates concurrent generators that computed the same seq.
func FormatNumber(propertyName string, p Period, seq int64, now time.Time) string {
	return fmt.Sprintf("%s-%02d%02d-%03d-%04d",
		PropertyPrefix(propertyName),
		p.Year%100,
		p.Month,
		seq,
		now.UnixMilli()%10000,
	)
}

// FormatReceiptNumber builds a receipt number for a manually recorded payment
func FormatReceiptNumber(invoiceNumber string, paidAt time.Time) string {
	return fmt.Sprintf("RCT-%s-%s", paidAt.Format("060102"), invoiceNumber)
}
