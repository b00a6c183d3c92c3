package remote

import (
	"regexp"
	"strings"
)

var safeToken = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// Quote returns s quoted for a POSIX shell. Tokens made only of characters
// the shell treats literally are returned unchanged.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if safeToken.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, `'`, `'"'"'`) + "'"
}

// QuoteCommand joins argv into a single shell command line.
func QuoteCommand(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}
