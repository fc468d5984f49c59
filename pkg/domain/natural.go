package domain

import (
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collators keep scratch buffers and are not safe for concurrent use.
var collators = sync.Pool{
	New: func() any {
		return collate.New(language.Und, collate.IgnoreCase, collate.IgnoreWidth)
	},
}

// NaturalCompare orders display names the way people expect:
// case-insensitive, locale-aware, with digit runs compared by numeric value
// ("node2" < "node10"). Names that collate equal fall back to a byte-wise
// comparison so the order stays total.
func NaturalCompare(a, b string) int {
	if a == b {
		return 0
	}
	c := collators.Get().(*collate.Collator)
	defer collators.Put(c)

	ca, cb := chunks(a), chunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		x, y := ca[i], cb[i]
		var r int
		if isDigits(x) && isDigits(y) {
			r = compareNumeric(x, y)
		} else {
			r = c.CompareString(x, y)
		}
		if r != 0 {
			return r
		}
	}
	switch {
	case len(ca) < len(cb):
		return -1
	case len(ca) > len(cb):
		return 1
	}
	return strings.Compare(a, b)
}

func chunks(s string) []string {
	var out []string
	start := 0
	var digit bool
	for i, r := range s {
		d := isDigit(r)
		if i > 0 && d != digit {
			out = append(out, s[start:i])
			start = i
		}
		digit = d
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isDigits(s string) bool {
	for _, r := range s {
		if !isDigit(r) {
			return false
		}
	}
	return s != ""
}

// compareNumeric compares two digit runs by value without parsing,
// so arbitrarily long runs never overflow. Leading zeros break ties.
func compareNumeric(x, y string) int {
	tx, ty := strings.TrimLeft(x, "0"), strings.TrimLeft(y, "0")
	if len(tx) != len(ty) {
		if len(tx) < len(ty) {
			return -1
		}
		return 1
	}
	if r := strings.Compare(tx, ty); r != 0 {
		return r
	}
	switch {
	case len(x) < len(y):
		return -1
	case len(x) > len(y):
		return 1
	}
	return 0
}
