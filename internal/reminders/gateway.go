package reminders

import (
	"context"
	"fmt"
	"time"
)

// Payload carries enough context for a delivery handler to act on a fired
// reminder without querying the treatment store synchronously.
type Payload struct {
	MedicationID   string `json:"medication_id"`
	MedicationName string `json:"medication_name"`
	Sequence       int    `json:"sequence"`
}

// Gateway is the external notification capability the reconciler drives.
// Every command is idempotent: cancelling an unknown reminder is a no-op and
// scheduling an existing ID replaces it. Implementations are injected so
// tests can substitute a fake.
type Gateway interface {
	IsAuthorized() bool
	// RequestAuthorization asks the user for notification permission. It
	// must complete within the context's deadline; a non-response is
	// reported as not authorized.
	RequestAuthorization(ctx context.Context) (bool, error)
	Schedule(reminderID string, fireAt time.Time, payload Payload) error
	Cancel(reminderIDs []string)
	CancelAll()
	ListPending() []string
}

// ReminderID is the identifier for a medication's single next-due reminder
func ReminderID(medicationID string) string {
	return "treatment-" + medicationID
}

// SequencedReminderID is the identifier for one reminder out of a scheduled batch
func SequencedReminderID(medicationID string, seq int) string {
	return fmt.Sprintf("treatment-%s-%d", medicationID, seq)
}
