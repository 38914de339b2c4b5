package core

// convert.go turns raw CSV cells into typed record fields.
//
// These functions handle the messy reality of bank and spreadsheet exports:
//   - Multiple date formats (US, ISO, dotted, compact)
//   - Currency symbols and thousand separators in amounts
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - Excel formula prefixes (="value")
//
// Parse* functions return an error wrapping ErrInvalidCell for input they
// cannot interpret; empty input yields the zero value and no error.

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ErrInvalidCell is returned when a cell cannot be converted to its column type.
var ErrInvalidCell = errors.New("invalid cell value")

// numericRegex validates that a string is a valid numeric format after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
)

// Cents is a currency amount in hundredths.
type Cents int64

// String formats the amount with two decimals.
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// ParseText trims a cell. It never fails.
func ParseText(s string) string {
	return strings.TrimSpace(s)
}

// ParseDate converts a cell to a date.
// Supports multiple date formats and handles 2-digit years with pivot.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot

	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrInvalidCell, s)
}

// ParseNumeric converts a cell to pgtype.Numeric.
// Handles currency symbols, thousands separators, and accounting format
// (parentheses for negative). Returns Valid=false for an empty cell.
func ParseNumeric(s string) (pgtype.Numeric, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{Valid: false}, nil
	}
	raw := s

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{}, fmt.Errorf("%w: %q is not a number", ErrInvalidCell, raw)
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("%w: %q: %v", ErrInvalidCell, raw, err)
	}
	return n, nil
}

// ParseCents converts a currency cell to Cents, rounding half away from zero.
func ParseCents(s string) (Cents, error) {
	n, err := ParseNumeric(s)
	if err != nil || !n.Valid {
		return 0, err
	}
	return numericToCents(n), nil
}

func numericToCents(n pgtype.Numeric) Cents {
	v := new(big.Int).Set(n.Int)
	exp := int64(n.Exp) + 2

	if exp >= 0 {
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil))
		return Cents(v.Int64())
	}

	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(-exp), nil)
	q, r := new(big.Int).QuoRem(v, div, new(big.Int))
	// |r|*2 >= div rounds away from zero
	r.Abs(r).Mul(r, big.NewInt(2))
	if r.Cmp(div) >= 0 {
		if v.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return Cents(q.Int64())
}

// ParseBool converts a cell to a bool.
// Accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func ParseBool(s string) (bool, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "false", "f", "no", "n", "0":
		return false, nil
	case "true", "t", "yes", "y", "1":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidCell, s)
	}
}

// ParseInt converts a cell to an integer. Thousands separators are allowed.
func ParseInt(s string) (int64, error) {
	n, err := ParseNumeric(s)
	if err != nil || !n.Valid {
		return 0, err
	}
	if n.Exp < 0 {
		return 0, fmt.Errorf("%w: %q is not a whole number", ErrInvalidCell, strings.TrimSpace(s))
	}
	v := new(big.Int).Mul(n.Int, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	if !v.IsInt64() {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidCell, strings.TrimSpace(s))
	}
	return v.Int64(), nil
}

// HeaderIndex maps normalized header names to column positions.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching. The first occurrence of
// a duplicate header wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(CleanCell(h)), ""))
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}
