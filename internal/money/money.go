// Package money converts between integer minor units and human input or display strings.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ErrInvalidAmount is returned by ParseMajor for input that is not a non-negative decimal.
var ErrInvalidAmount = errors.New("money: invalid amount")

// ParseMajor parses an amount written in major units ("3500,00", "3500.00", "3.500,00") and
// returns round(x*100) minor units. Empty input is zero.
func ParseMajor(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(strings.ReplaceAll(s, " ", ""))
	if s == "" {
		return 0, nil
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, raw)
	}
	return int64(math.Round(value * 100)), nil
}

// Formatter renders minor units for one locale and currency.
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
	scale   int
	symbol  string
}

// NewFormatter returns a Formatter for the BCP 47 language tag and ISO 4217 currency code.
func NewFormatter(lang, code string) (*Formatter, error) {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return nil, fmt.Errorf("money: parse language %q: %w", lang, err)
	}
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("money: parse currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	printer := message.NewPrinter(tag)
	return &Formatter{
		printer: printer,
		unit:    unit,
		scale:   scale,
		symbol:  printer.Sprint(currency.Symbol(unit)),
	}, nil
}

// MustFormatter is NewFormatter that panics on error, for package level defaults.
func MustFormatter(lang, code string) *Formatter {
	f, err := NewFormatter(lang, code)
	if err != nil {
		panic(err)
	}
	return f
}

// BRL is the store default: Brazilian real in pt-BR.
var BRL = MustFormatter("pt-BR", "BRL")

// Currency returns the ISO code.
func (f *Formatter) Currency() string {
	return f.unit.String()
}

// Format renders minor units, e.g. 350000 as "R$ 3.500,00" (non-breaking space).
func (f *Formatter) Format(minor int64) string {
	major := float64(minor) / math.Pow10(f.scale)
	return f.symbol + "\u00a0" + f.printer.Sprint(number.Decimal(major, number.Scale(f.scale)))
}
