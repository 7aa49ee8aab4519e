package currency

import (
	"strings"
)

const (
	RUB = "RUB"
	USD = "USD"
	EUR = "EUR"
	CNY = "CNY"
	GBP = "GBP"
	JPY = "JPY"
)

// Hot is the short list offered to users before the full table.
var Hot = []string{USD, EUR, CNY, RUB, GBP, JPY}

const codeLen = 3

// Normalize upper-cases and trims a user supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code looks like an ISO 4217 alphabetic code.
func ValidCode(code string) bool {
	if len(code) != codeLen {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

type Pair struct {
	Source string `json:"source_currency"`
	Target string `json:"target_currency"`
}

func (p Pair) Swapped() Pair {
	return Pair{Source: p.Target, Target: p.Source}
}

func (p Pair) String() string {
	return p.Source + "/" + p.Target
}
