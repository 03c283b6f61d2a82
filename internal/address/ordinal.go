// Package address repairs street names and assembles one-line postal
// addresses for geocoding.
package address

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// numberToken matches an integer token together with an optional ordinal
// suffix that already follows it ("144", "144th", "2ND").
var numberToken = regexp.MustCompile(`(?i)\b(\d+)(st|nd|rd|th)?\b`)

// Ordinal renders n with its English ordinal suffix: 1st, 2nd, 3rd, 4th,
// 11th, 12th, 13th, 21st, 111th, 102nd.
func Ordinal(n int) string {
	return strconv.Itoa(n) + suffix(n)
}

func suffix(n int) string {
	if n < 0 {
		n = -n
	}
	if m := n % 100; m >= 11 && m <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

// NormalizeStreet rewrites every bare integer token of a street name into
// ordinal form ("W 144 St" becomes "W 144th St"). Tokens that already carry a
// two-letter ordinal suffix are kept as they are, and names without a numeric
// token pass through unchanged.
func NormalizeStreet(name string) string {
	return numberToken.ReplaceAllStringFunc(name, func(tok string) string {
		m := numberToken.FindStringSubmatch(tok)
		if m == nil || m[2] != "" {
			return tok
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return tok
		}
		return m[1] + suffix(n)
	})
}

// bareNumbers returns the integer tokens of s that have no ordinal suffix.
func bareNumbers(s string) []string {
	var out []string
	for _, m := range numberToken.FindAllStringSubmatch(s, -1) {
		if m[2] == "" {
			out = append(out, m[1])
		}
	}
	return out
}

// ConsistencyError lists bare numbers that were rewritten to more than one
// ordinal form, or that survived normalization.
type ConsistencyError struct {
	Conflicts map[string][]string
	Leftover  []string
}

func (e *ConsistencyError) Error() string {
	var parts []string
	keys := make([]string, 0, len(e.Conflicts))
	for k := range e.Conflicts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+" -> "+strings.Join(e.Conflicts[k], "|"))
	}
	if len(e.Leftover) > 0 {
		parts = append(parts, "bare numbers left in: "+strings.Join(e.Leftover, "; "))
	}
	return "address: inconsistent ordinal rewrite: " + strings.Join(parts, ", ")
}

// CheckConsistency normalizes each raw street name and verifies that every
// row containing the same bare number received the same ordinal, and that
// no bare number remains afterwards.
func CheckConsistency(raw []string) error {
	forms := make(map[string]map[string]struct{})
	var leftover []string

	for _, name := range raw {
		fixed := NormalizeStreet(name)
		if left := bareNumbers(fixed); len(left) > 0 {
			leftover = append(leftover, fixed)
		}

		bare := bareNumbers(name)
		if len(bare) == 0 {
			continue
		}
		// Corrected tokens appear in the same order as the bare ones.
		var rewritten []string
		for _, m := range numberToken.FindAllStringSubmatch(fixed, -1) {
			rewritten = append(rewritten, m[0])
		}
		all := numberToken.FindAllStringSubmatch(name, -1)
		if len(all) != len(rewritten) {
			return eris.Errorf("address: token count changed rewriting %q", name)
		}
		for i, m := range all {
			if m[2] != "" {
				continue
			}
			if forms[m[1]] == nil {
				forms[m[1]] = make(map[string]struct{})
			}
			forms[m[1]][rewritten[i]] = struct{}{}
		}
	}

	conflicts := make(map[string][]string)
	for n, set := range forms {
		if len(set) <= 1 {
			continue
		}
		for f := range set {
			conflicts[n] = append(conflicts[n], f)
		}
		sort.Strings(conflicts[n])
	}

	if len(conflicts) > 0 || len(leftover) > 0 {
		return &ConsistencyError{Conflicts: conflicts, Leftover: leftover}
	}
	return nil
}
