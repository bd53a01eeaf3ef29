package domain

import (
	"math"
	"strconv"
	"strings"
)

// Format selects how a measurement variable's values are parsed and rendered.
type Format string

// Supported value formats. Anything else falls back to FormatDecimal.
const (
	// FormatDecimal accepts an optional leading minus, digits and at most
	// one decimal point. No exponents, signs other than minus, or grouping
	// separators.
	FormatDecimal Format = ""
	// FormatHex accepts an optional leading minus, an optional 0x/0X prefix
	// and base-16 digits. Values are stored and compared as plain numbers.
	FormatHex Format = "hex"
)

// ParseValue parses user-entered text under the given format. The boolean
// result reports whether the text was a well-formed value; the numeric
// result is only meaningful when it is true.
func ParseValue(text string, format Format) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	switch format {
	case FormatHex:
		return parseBased(text, 16)
	default:
		return parseDecimal(text)
	}
}

// FormatValue renders a numeric value as the text a user would enter for it
// under the given format.
func FormatValue(value float64, format Format) string {
	if format == FormatHex {
		n := int64(value)
		if n < 0 {
			return "-0x" + strconv.FormatInt(-n, 16)
		}
		return "0x" + strconv.FormatInt(n, 16)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// parseDecimal accepts the strict grammar: optional minus, decimal digits,
// at most one point, at least one digit overall.
func parseDecimal(text string) (float64, bool) {
	negative := false
	if strings.HasPrefix(text, "-") {
		negative = true
		text = text[1:]
	}
	if text == "" {
		return 0, false
	}
	digits := 0
	points := 0
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			points++
		default:
			return 0, false
		}
	}
	if digits == 0 || points > 1 {
		return 0, false
	}
	// The grammar above is a strict subset of what ParseFloat accepts.
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// parseBased converts text as a base-N integer, 2 <= base <= 36. An optional
// minus applies outside the 0x/0X prefix, which is only recognised for base
// 16. Digits are accumulated from the least significant position upward.
func parseBased(text string, base int) (float64, bool) {
	if base < 2 || base > 36 {
		return 0, false
	}
	negative := false
	if strings.HasPrefix(text, "-") {
		negative = true
		text = text[1:]
	}
	if base == 16 && (strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X")) {
		text = text[2:]
	}
	if text == "" {
		return 0, false
	}
	total := 0.0
	for position, i := 0, len(text)-1; i >= 0; position, i = position+1, i-1 {
		digit, ok := digitValue(text[i])
		if !ok || digit >= base {
			return 0, false
		}
		total += float64(digit) * math.Pow(float64(base), float64(position))
	}
	if negative {
		total = -total
	}
	return total, true
}

func digitValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}
