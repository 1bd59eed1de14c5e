// Package sequence derives period-scoped MO identifiers of the form
// MO-{YYYY}{MM}{NNNN}.
//
// The next suffix is taken from the most recently appended ledger entry that
// carries the period prefix, not from the numerically largest one. Ledgers
// whose append order and numeric order diverge will under-count.
package sequence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Digits is the zero-padded width of the numeric suffix.
const Digits = 4

// Prefix returns the period prefix for t, e.g. "MO-202310".
func Prefix(t time.Time) string {
	return fmt.Sprintf("MO-%04d%02d", t.Year(), int(t.Month()))
}

// Format builds an identifier from a prefix and a suffix number.
func Format(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, Digits, n)
}

// Suffix parses the numeric suffix of id after prefix. Anything that does not
// parse yields 0.
func Suffix(id, prefix string) int {
	if !strings.HasPrefix(id, prefix) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(id[len(prefix):]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// LastMatching returns the last id in append order that starts with prefix,
// or "" when none does.
func LastMatching(ids []string, prefix string) string {
	for i := len(ids) - 1; i >= 0; i-- {
		if strings.HasPrefix(ids[i], prefix) {
			return ids[i]
		}
	}
	return ""
}

// Allocator hands out consecutive identifiers within one period. It carries
// the running counter in memory so a batch does not rescan the ledger per item.
// An Allocator is not safe for concurrent use; callers hold the ledger gate.
type Allocator struct {
	prefix string
	last   int
}

// Start returns an allocator positioned after lastID. An empty lastID starts
// the period at 0001.
func Start(prefix, lastID string) *Allocator {
	return &Allocator{prefix: prefix, last: Suffix(lastID, prefix)}
}

// Prefix returns the period prefix the allocator issues under.
func (a *Allocator) Prefix() string { return a.prefix }

// Peek returns the identifier the next Commit would confirm.
func (a *Allocator) Peek() string {
	return Format(a.prefix, a.last+1)
}

// Commit advances the counter past the peeked identifier. Call it only after
// the record carrying that identifier was appended, so a failed append does
// not leave a gap.
func (a *Allocator) Commit() string {
	a.last++
	return Format(a.prefix, a.last)
}

// Next peeks and commits in one step.
func (a *Allocator) Next() string {
	return a.Commit()
}
