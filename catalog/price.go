package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatPrice renders an amount in minor units with between zero and two
// fraction digits, e.g. 100 -> "€1", 499 -> "€4.99", 150 -> "€1.5".
func FormatPrice(cents int64, cur string) string {
	return formatMinor(cents, cur, false)
}

// FormatAmount renders an amount in minor units with exactly two fraction
// digits, as printed on receipts.
func FormatAmount(cents int64, cur string) string {
	return formatMinor(cents, cur, true)
}

func formatMinor(cents int64, cur string, fixed bool) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	major, minor := cents/100, cents%100

	var b strings.Builder
	b.WriteString(sign)
	b.WriteString(Symbol(cur))
	b.WriteString(printer.Sprint(number.Decimal(major)))
	switch {
	case fixed:
		fmt.Fprintf(&b, ".%02d", minor)
	case minor == 0:
	case minor%10 == 0:
		fmt.Fprintf(&b, ".%d", minor/10)
	default:
		fmt.Fprintf(&b, ".%02d", minor)
	}
	return b.String()
}

// Symbol returns the narrow currency symbol for an ISO 4217 code. Unknown
// codes are rendered as the upper-cased code followed by a space.
func Symbol(cur string) string {
	code := strings.ToUpper(strings.TrimSpace(cur))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code + " "
	}
	return printer.Sprint(currency.NarrowSymbol(unit))
}

// ParsePrice is the inverse of FormatPrice and FormatAmount. It accepts an
// optional sign, any currency prefix, comma grouping and up to two fraction
// digits.
func ParsePrice(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	start := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return 0, fmt.Errorf("no digits in price %q", s)
	}
	digits := strings.ReplaceAll(s[start:], ",", "")

	whole, frac := digits, ""
	if i := strings.IndexByte(digits, '.'); i >= 0 {
		whole, frac = digits[:i], digits[i+1:]
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("price %q has more than two fraction digits", s)
	}
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	var minor int64
	if frac != "" {
		minor, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid price %q: %w", s, err)
		}
		if len(frac) == 1 {
			minor *= 10
		}
	}
	cents := major*100 + minor
	if neg {
		cents = -cents
	}
	return cents, nil
}
