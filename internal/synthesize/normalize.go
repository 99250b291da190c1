package synthesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

// Deterministic per-type normalization. Model output format is not
// guaranteed structured; this layer is the seam where format drift is
// absorbed without re-prompting.

var (
	reCurrencyCode = regexp.MustCompile(`^[A-Z]{3}$`)
	reMoneyJunk    = regexp.MustCompile(`[^\d.,\-]`)
	reQuantity     = regexp.MustCompile(`^(-?\d+(?:[.,]\d+)?)\s*([\p{L}%/]*)$`)
)

// NormalizeMoney turns "1,234.56", "$1,234.56" or "1234.5" into a
// two-decimal amount string. Negative amounts pass through; whether
// credits are allowed is the validator's call, not a parsing concern.
func NormalizeMoney(raw, currency string) (*fact.Money, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	neg := strings.HasPrefix(s, "-") || (strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))
	s = reMoneyJunk.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return nil, fmt.Errorf("no digits in amount %q", raw)
	}

	// "1.234,56" (comma decimal) vs "1,234.56" (comma thousands)
	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		// the final comma is a decimal separator only when followed by
		// 1-2 digits ("99,50"); a 3-digit tail means thousands grouping
		// ("1,234", "12,345,678")
		head, tail := s[:lastComma], s[lastComma+1:]
		if len(tail) >= 1 && len(tail) <= 2 {
			head = strings.ReplaceAll(head, ".", "")
			head = strings.ReplaceAll(head, ",", "")
			s = head + "." + tail
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if neg {
		f = -f
	}

	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur != "" && !reCurrencyCode.MatchString(cur) {
		cur = ""
	}
	return &fact.Money{Amount: strconv.FormatFloat(f, 'f', 2, 64), Currency: cur}, nil
}

// dateLayouts in order of preference. Day-first slashed/dotted dates are
// tried before month-first, matching the invoice corpora this pipeline
// was built against; genuinely invalid calendar dates fail every layout.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	"02.01.2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// NormalizeDate resolves raw to an ISO calendar date, failing on
// nonsense dates (e.g. "31/02/2024" resolves under no layout).
func NormalizeDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("no valid calendar date in %q", raw)
}

// NormalizeText trims and collapses runs of whitespace.
func NormalizeText(raw string) (string, error) {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return "", fmt.Errorf("empty text")
	}
	return s, nil
}

// NormalizeQuantity parses a number with an optional trailing unit
// ("3", "2.5 kg", "12 pcs").
func NormalizeQuantity(raw, unitHint string) (*fact.Quantity, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty quantity")
	}
	m := reQuantity.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("no numeric quantity in %q", raw)
	}
	n, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return nil, fmt.Errorf("parse quantity %q: %w", raw, err)
	}
	unit := m[2]
	if unit == "" {
		unit = strings.TrimSpace(unitHint)
	}
	return &fact.Quantity{Number: n, Unit: unit}, nil
}

// NormalizeValue dispatches on the declared type. A failure here is a
// type-check failure: the value never reaches semantic validation.
func NormalizeValue(t fact.ValueType, raw RawValue) (fact.Value, error) {
	switch t {
	case fact.TypeMoney:
		m, err := NormalizeMoney(raw.Value, raw.Currency)
		if err != nil {
			return fact.Value{}, err
		}
		return fact.Value{Type: fact.TypeMoney, Money: m}, nil
	case fact.TypeDate:
		d, err := NormalizeDate(raw.Value)
		if err != nil {
			return fact.Value{}, err
		}
		return fact.Value{Type: fact.TypeDate, Date: d}, nil
	case fact.TypeText:
		s, err := NormalizeText(raw.Value)
		if err != nil {
			return fact.Value{}, err
		}
		return fact.Value{Type: fact.TypeText, Text: s}, nil
	case fact.TypeQuantity:
		q, err := NormalizeQuantity(raw.Value, raw.Unit)
		if err != nil {
			return fact.Value{}, err
		}
		return fact.Value{Type: fact.TypeQuantity, Quantity: q}, nil
	default:
		return fact.Value{}, fmt.Errorf("unknown value type %q", t)
	}
}
