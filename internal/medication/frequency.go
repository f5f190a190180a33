package medication

import (
	"fmt"
)

// FrequencyKind enumerates the supported recurrence rules
type FrequencyKind string

const (
	FrequencyDaily       FrequencyKind = "daily"
	FrequencyTwiceDaily  FrequencyKind = "twice_daily"
	FrequencyWeekly      FrequencyKind = "weekly"
	FrequencyBiweekly    FrequencyKind = "biweekly"
	FrequencyMonthly     FrequencyKind = "monthly"
	FrequencyAsNeeded    FrequencyKind = "as_needed"
	FrequencyEveryNDays  FrequencyKind = "every_n_days"
	FrequencyEveryNWeeks FrequencyKind = "every_n_weeks"
)

// Frequency is the recurrence rule for a medication. N is only meaningful
// for the every_n_days and every_n_weeks kinds.
type Frequency struct {
	Kind FrequencyKind `json:"kind"`
	N    int           `json:"n,omitempty"`
}

// IntervalDays converts the rule to an interval length in days. The second
// return value is false for as_needed, which never yields a due date.
func (f Frequency) IntervalDays() (int, bool) {
	switch f.Kind {
	case FrequencyDaily:
		return 1, true
	case FrequencyTwiceDaily:
		// TODO: shares the 1-day interval with daily; sub-day scheduling
		// needs a product decision first.
		return 1, true
	case FrequencyWeekly:
		return 7, true
	case FrequencyBiweekly:
		return 14, true
	case FrequencyMonthly:
		return 30, true
	case FrequencyEveryNDays:
		return f.N, true
	case FrequencyEveryNWeeks:
		return f.N * 7, true
	default:
		return 0, false
	}
}

// DisplayName returns a human-readable label for the rule
func (f Frequency) DisplayName() string {
	switch f.Kind {
	case FrequencyDaily:
		return "Daily"
	case FrequencyTwiceDaily:
		return "Twice Daily"
	case FrequencyWeekly:
		return "Weekly"
	case FrequencyBiweekly:
		return "Bi-weekly"
	case FrequencyMonthly:
		return "Monthly"
	case FrequencyAsNeeded:
		return "As Needed"
	case FrequencyEveryNDays:
		return fmt.Sprintf("Every %d day%s", f.N, plural(f.N))
	case FrequencyEveryNWeeks:
		return fmt.Sprintf("Every %d week%s", f.N, plural(f.N))
	default:
		return string(f.Kind)
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// Validate checks that the rule is one of the closed set of variants and
// that custom intervals carry a positive N
func (f Frequency) Validate() error {
	switch f.Kind {
	case FrequencyDaily, FrequencyTwiceDaily, FrequencyWeekly,
		FrequencyBiweekly, FrequencyMonthly, FrequencyAsNeeded:
		return nil
	case FrequencyEveryNDays, FrequencyEveryNWeeks:
		if f.N < 1 {
			return fmt.Errorf("frequency %s requires a positive interval, got %d", f.Kind, f.N)
		}
		return nil
	default:
		return fmt.Errorf("unknown frequency kind %q", f.Kind)
	}
}
