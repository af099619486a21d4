package signal

import (
	"regexp"
	"strconv"
	"strings"
)

// Separator joins the scope, base and sequence parts of an id.
const Separator = "."

// ScopePrefix is the prefix every id owned by scope starts with, e.g. "3.".
func ScopePrefix(scope int) string {
	return strconv.Itoa(scope) + Separator
}

// FamilyPrefix is the sequence-less prefix of a broadcaster family,
// e.g. "3.17." or "17." when unscoped.
func FamilyPrefix(scope int, scoped bool, base string) string {
	if scoped {
		return ScopePrefix(scope) + base + Separator
	}
	return base + Separator
}

// FamilyID builds the full id of one emission, e.g. "3.17.4".
func FamilyID(scope int, scoped bool, base string, seq int) string {
	return FamilyPrefix(scope, scoped, base) + strconv.Itoa(seq)
}

// FamilyPattern matches every id of the family rooted at base, with an
// optional numeric scope and a mandatory numeric sequence.
func FamilyPattern(base string) *regexp.Regexp {
	return regexp.MustCompile(`^(?:\d+\.)?` + regexp.QuoteMeta(base) + `\.\d+$`)
}

// HasPrefix reports whether id starts with prefix. An empty prefix matches
// nothing.
func HasPrefix(id, prefix string) bool {
	return prefix != "" && strings.HasPrefix(id, prefix)
}
