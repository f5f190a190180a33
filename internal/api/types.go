package api

import (
	"time"

	"github.com/gmsas95/dosetrack/internal/medication"
)

type frequencyRequest struct {
	Kind string `json:"kind"`
	N    int    `json:"n,omitempty"`
}

type medicationRequest struct {
	Name      string           `json:"name"`
	Dosage    string           `json:"dosage"`
	Site      string           `json:"site"`
	Frequency frequencyRequest `json:"frequency"`
	Notes     string           `json:"notes"`
	IsActive  *bool            `json:"is_active,omitempty"`
}

type recordInjectionRequest struct {
	Site  string `json:"site,omitempty"`
	Notes string `json:"notes"`
}

type updateInjectionRequest struct {
	Site      string     `json:"site,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// medicationResponse is a medication plus its derived schedule state
type medicationResponse struct {
	medication.Medication
	FrequencyLabel   string     `json:"frequency_label"`
	NextDue          *time.Time `json:"next_due,omitempty"`
	Overdue          bool       `json:"overdue"`
	PendingReminders int        `json:"pending_reminders"`
}

func (s *Server) medicationResponse(m medication.Medication) medicationResponse {
	resp := medicationResponse{
		Medication:       m,
		FrequencyLabel:   m.Frequency.DisplayName(),
		PendingReminders: s.reconciler.PendingCount(m.ID),
	}
	if due, ok := s.store.NextDueDate(m); ok {
		resp.NextDue = &due
		resp.Overdue = s.store.IsOverdue(m)
	}
	return resp
}
