// Package bootfmt formats quantities for the boot log: byte counts and
// other large numbers rendered with grouped thousands, so a human
// scanning console output can read "4,294,967,296" instead of counting
// zeroes.
package bootfmt

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

// Bytes renders n as a grouped-thousands decimal count of bytes.
func Bytes(n uint64) string {
	return printer.Sprintf("%v bytes", number.Decimal(n))
}

// Count renders n as a grouped-thousands decimal integer, with no unit
// suffix — used for segment and page counts.
func Count(n uint64) string {
	return printer.Sprintf("%v", number.Decimal(n))
}
