// Package normalize holds the pure input normalizers shared by validation,
// storage migration and exports.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	lineBreaks    = regexp.MustCompile(`[\r\n]+`)
	dateJunk      = regexp.MustCompile(`[^0-9/.\-\s]`)
	spaceRuns     = regexp.MustCompile(`\s+`)
	dateSeparator = regexp.MustCompile(`[/.\- ]+`)
	clockPattern  = regexp.MustCompile(`^[0-9]{2}:[0-9]{2}$`)
)

// Text collapses line breaks into a single space and trims the result.
func Text(raw string) string {
	return strings.TrimSpace(lineBreaks.ReplaceAllString(raw, " "))
}

// Identifier produces the uniqueness key for a player: no whitespace at
// all, upper-cased.
func Identifier(raw string) string {
	s := Text(raw)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.ToUpper(s)
}

func Email(raw string) string {
	return strings.ToLower(Text(raw))
}

// Date parses a loosely typed day/month/year and returns the canonical
// DD/MM/YY form. Years are read within 2000-2099.
func Date(raw string) (string, bool) {
	s := dateJunk.ReplaceAllString(raw, "")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "/.- ")

	parts := dateSeparator.Split(s, -1)
	if len(parts) != 3 {
		return "", false
	}
	for _, p := range parts {
		if p == "" {
			return "", false
		}
	}

	dd, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", false
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", false
	}
	yy, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", false
	}
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return "", false
	}

	switch len(parts[2]) {
	case 4:
		yy %= 100
	case 1, 2:
	default:
		return "", false
	}

	t := time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	if t.Year() != 2000+yy || int(t.Month()) != mm || t.Day() != dd {
		return "", false
	}
	return fmt.Sprintf("%02d/%02d/%02d", dd, mm, yy), true
}

// CalendarDate turns a canonical DD/MM/YY string back into a date.
func CalendarDate(canonical string) (time.Time, bool) {
	t, err := time.Parse("02/01/06", canonical)
	if err != nil {
		return time.Time{}, false
	}
	if t.Year() < 2000 {
		t = t.AddDate(100, 0, 0)
	}
	return t, true
}

// IsValidTime accepts HH:MM on a 24-hour clock.
func IsValidTime(raw string) bool {
	if !clockPattern.MatchString(raw) {
		return false
	}
	h, _ := strconv.Atoi(raw[:2])
	m, _ := strconv.Atoi(raw[3:])
	return h <= 23 && m <= 59
}

// maxExactInt is the largest integer a float64 represents exactly.
const maxExactInt = 1 << 53

// AsInteger converts raw to an integer truncated toward zero. ok is false
// for empty input or anything that is not a finite number.
func AsInteger(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Trunc(f)
	if math.Abs(f) > maxExactInt {
		return 0, false
	}
	return int(f), true
}

// AsAmount parses a decimal money amount; a comma is read as the decimal
// separator.
func AsAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var moneyPrinter = message.NewPrinter(language.Croatian)

// FormatEUR renders an amount for display, e.g. "1.234,50 €".
func FormatEUR(amount float64) string {
	return moneyPrinter.Sprintf("%.2f €", amount)
}
