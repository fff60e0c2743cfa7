package discovery

import (
	"strings"

	"autoapply/internal/hh"
)

// Verdict is how the filter classifies one candidate posting.
type Verdict int

// Supported verdicts.
const (
	Keep Verdict = iota
	// SkipTest marks postings gated by an employer test. They are recorded as skipped.
	SkipTest
	// Exclude marks postings whose title hits a negative keyword.
	Exclude
)

// ReasonRequiresTest is stored on skipped ledger rows.
const ReasonRequiresTest = "requires test"

// classify applies the test gate first, then the negative keywords.
// Negative keywords match case-insensitively anywhere in the posting name;
// none may match.
func classify(p hh.Posting, negatives []string) Verdict {
	if p.HasTest {
		return SkipTest
	}
	name := strings.ToLower(p.Name)
	for _, w := range negatives {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(name, w) {
			return Exclude
		}
	}
	return Keep
}
