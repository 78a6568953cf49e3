package bot

import (
	"fmt"
	"strings"

	"watchbot/internal/model"
	"watchbot/internal/scheduler"
)

const (
	statusActive   = "active"
	statusPaused   = "paused"
	statusDegraded = "degraded"
)

// FormatSubscriptionList formats a chat's watches for display.
func FormatSubscriptionList(subs []model.Subscription) string {
	if len(subs) == 0 {
		return "You have no watches yet. Use /add <name> <results-url> to add one."
	}
	var b strings.Builder
	b.WriteString("Your watches:\n")
	for _, s := range subs {
		fmt.Fprintf(&b, "\n#%d %s [%s]\n", s.ID, s.Name, subscriptionStatus(s))
		fmt.Fprintf(&b, "   %s\n", s.Query)
		if s.LastCheckAt != nil {
			fmt.Fprintf(&b, "   last check: %s\n", s.LastCheckAt.Format("2006-01-02 15:04 UTC"))
		}
	}
	return b.String()
}

// FormatStatus formats the scheduler's last-cycle snapshot.
func FormatStatus(st scheduler.CycleStatus) string {
	var b strings.Builder
	b.WriteString("Cycle status:\n")
	if st.LastRunAt.IsZero() {
		b.WriteString("No cycle has run yet.\n")
	} else {
		fmt.Fprintf(&b, "Last run: %s\n", st.LastRunAt.Format("2006-01-02 15:04:05 UTC"))
	}
	fmt.Fprintf(&b, "Active watches: %d\n", st.ActiveCount)
	fmt.Fprintf(&b, "Failed last cycle: %d\n", st.LastErrorCount)
	if st.DegradedCount > 0 {
		fmt.Fprintf(&b, "Degraded (need editing): %d\n", st.DegradedCount)
	}
	return b.String()
}

func subscriptionStatus(s model.Subscription) string {
	switch {
	case s.Degraded:
		return statusDegraded
	case !s.IsActive:
		return statusPaused
	default:
		return statusActive
	}
}
