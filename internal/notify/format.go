package notify

import (
	"fmt"
	"strings"

	"autoapply/internal/model"
)

// FormatStatus renders /status: the latest run and the ledger counts.
func FormatStatus(last *model.RunResult, stats map[model.AttemptStatus]int) string {
	var b strings.Builder
	if last == nil {
		b.WriteString("No runs yet.\n")
	} else {
		fmt.Fprintf(&b, "Last run: %s (%s)\n", last.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"), last.RunType)
		fmt.Fprintf(&b, "Applications dispatched: %d\n", last.ResumesEnqueued)
		if last.Meta["error"] == "authorization_required" {
			b.WriteString("⚠️ hh.ru access expired, use /auth\n")
		}
	}

	b.WriteString("\nApplications:\n")
	for _, st := range []model.AttemptStatus{model.AttemptSuccess, model.AttemptSent, model.AttemptFailed, model.AttemptSkipped} {
		fmt.Fprintf(&b, "  %s: %d\n", st, stats[st])
	}
	return b.String()
}
