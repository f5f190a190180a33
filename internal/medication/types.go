package medication

import (
	"fmt"
	"time"
)

// InjectionSite enumerates the route categories a dose can be given by
type InjectionSite string

const (
	SiteSubcutaneous  InjectionSite = "subcutaneous"
	SiteIntramuscular InjectionSite = "intramuscular"
	SiteIntravenous   InjectionSite = "intravenous"
	SiteIntradermal   InjectionSite = "intradermal"
)

// Sites lists every valid injection site
var Sites = []InjectionSite{
	SiteSubcutaneous,
	SiteIntramuscular,
	SiteIntravenous,
	SiteIntradermal,
}

// DisplayName returns a human-readable label for the site
func (s InjectionSite) DisplayName() string {
	switch s {
	case SiteSubcutaneous:
		return "Subcutaneous"
	case SiteIntramuscular:
		return "Intramuscular"
	case SiteIntravenous:
		return "Intravenous"
	case SiteIntradermal:
		return "Intradermal"
	default:
		return string(s)
	}
}

// Validate checks that the site is one of the fixed set
func (s InjectionSite) Validate() error {
	for _, known := range Sites {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("unknown injection site %q", s)
}

// Medication represents one recurring injectable regimen. The ID is assigned
// at creation and never changes. LastInjectionAt is derived state: the store
// keeps it equal to the newest timestamp across the medication's injection
// records, or nil when it has none.
type Medication struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Dosage          string        `json:"dosage"`
	Site            InjectionSite `json:"site"`
	Frequency       Frequency     `json:"frequency"`
	Notes           string        `json:"notes,omitempty"`
	IsActive        bool          `json:"is_active"`
	CreatedAt       time.Time     `json:"created_at"`
	LastInjectionAt *time.Time    `json:"last_injection_at,omitempty"`
}

// InjectionRecord represents one completed dose. MedicationName and Dosage
// are snapshots taken at recording time so history stays meaningful after
// the medication is renamed.
type InjectionRecord struct {
	ID             string        `json:"id"`
	MedicationID   string        `json:"medication_id"`
	MedicationName string        `json:"medication_name"`
	Dosage         string        `json:"dosage"`
	Site           InjectionSite `json:"site"`
	Timestamp      time.Time     `json:"timestamp"`
	Notes          string        `json:"notes,omitempty"`
}

// Spec holds the caller-supplied fields for a new medication. Required-field
// validation (name, dosage) happens at the API boundary, not here.
type Spec struct {
	Name      string
	Dosage    string
	Site      InjectionSite
	Frequency Frequency
	Notes     string
}

// Event describes a store mutation that may affect due dates or reminders
type Event struct {
	MedicationID string
	Deleted      bool
}
