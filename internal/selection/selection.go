// Package selection parses human selection expressions such as "1,3,5",
// "2-4" or "1 3-5, 8" into validated candidate positions.
package selection

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/starford/gleaner/internal/apperr"
)

// Set is an ascending, duplicate-free list of 1-based positions.
type Set []int

// ParseError reports an expression that selected nothing.
type ParseError struct {
	Expression string
	Count      int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("selection %q: no valid positions in 1-%d", e.Expression, e.Count)
}

// Unwrap lets errors.Is match apperr.ErrNoValidSelection.
func (e *ParseError) Unwrap() error { return apperr.ErrNoValidSelection }

// Parse expands expr into the positions it names within [1, count].
//
// Tokens are separated by commas and/or whitespace. A token with a hyphen
// is an inclusive range; a reversed range contributes nothing. Tokens that
// are not integers and positions out of bounds are dropped silently. An
// empty result is reported as *ParseError.
func Parse(expr string, count int) (Set, error) {
	seen := make(map[int]struct{})
	tokens := strings.FieldsFunc(expr, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	for _, tok := range tokens {
		lo, hi, ok := parseToken(tok)
		if !ok {
			continue
		}
		lo = max(lo, 1)
		hi = min(hi, count)
		for i := lo; i <= hi; i++ {
			seen[i] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil, &ParseError{Expression: expr, Count: count}
	}
	out := make(Set, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	slices.Sort(out)
	return out, nil
}

// parseToken returns the inclusive bounds a token names.
func parseToken(tok string) (int, int, bool) {
	if a, b, isRange := strings.Cut(tok, "-"); isRange {
		lo, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return 0, 0, false
		}
		hi, err := strconv.Atoi(strings.TrimSpace(b))
		if err != nil {
			return 0, 0, false
		}
		return lo, hi, true
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, 0, false
	}
	return n, n, true
}

// Contains reports whether pos is in the set.
func (s Set) Contains(pos int) bool {
	_, found := slices.BinarySearch(s, pos)
	return found
}

// String renders the set back as a compact expression, e.g. "1-3,5".
func (s Set) String() string {
	var b strings.Builder
	for i := 0; i < len(s); {
		j := i
		for j+1 < len(s) && s[j+1] == s[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if j > i {
			fmt.Fprintf(&b, "%d-%d", s[i], s[j])
		} else {
			b.WriteString(strconv.Itoa(s[i]))
		}
		i = j + 1
	}
	return b.String()
}
