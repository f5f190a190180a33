package medication

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/errors"
	"github.com/gmsas95/dosetrack/internal/metrics"
	"github.com/gmsas95/dosetrack/internal/store"
)

const (
	medicationsKey = "medications"
	injectionsKey  = "injections"
)

// Store owns the canonical collections of medications and injection records.
// All mutations run under a single exclusive lock so derived state
// (LastInjectionAt) is never computed from a half-updated collection.
//
// Durability is write-through and best-effort: a failed KV write is logged,
// counted, and surfaced as an ErrPersist-coded warning, but the in-memory
// snapshot stays authoritative for the process lifetime.
type Store struct {
	mu          sync.RWMutex
	kv          store.KV
	logger      *zap.Logger
	metrics     *metrics.Metrics
	medications []Medication
	injections  []InjectionRecord
	subscribers []func(Event)

	now func() time.Time
}

// NewStore creates a Store and loads both collections from the KV store
func NewStore(kv store.KV, m *metrics.Metrics, logger *zap.Logger) (*Store, error) {
	s := &Store{
		kv:      kv,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) load() error {
	data, err := s.kv.Get(medicationsKey)
	if err != nil {
		return errors.Wrap(err, errors.ErrLoad.Code, "loading medications")
	}
	if data != nil {
		if err := json.Unmarshal(data, &s.medications); err != nil {
			return errors.Wrap(err, errors.ErrLoad.Code, "decoding medications")
		}
	}

	data, err = s.kv.Get(injectionsKey)
	if err != nil {
		return errors.Wrap(err, errors.ErrLoad.Code, "loading injection records")
	}
	if data != nil {
		if err := json.Unmarshal(data, &s.injections); err != nil {
			return errors.Wrap(err, errors.ErrLoad.Code, "decoding injection records")
		}
	}

	s.logger.Info("Treatment store loaded",
		zap.Int("medications", len(s.medications)),
		zap.Int("injections", len(s.injections)),
	)
	return nil
}

// Subscribe registers a callback fired after every mutation that can affect
// due dates. Callbacks run outside the store lock and may query the store.
func (s *Store) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	subs := make([]func(Event), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// ==================== Medication mutations ====================

// AddMedication creates a new medication from spec. The returned error, when
// non-nil, is a durability warning: the medication is in the store either way.
func (s *Store) AddMedication(spec Spec) (Medication, error) {
	med := Medication{
		ID:        uuid.NewString(),
		Name:      spec.Name,
		Dosage:    spec.Dosage,
		Site:      spec.Site,
		Frequency: spec.Frequency,
		Notes:     spec.Notes,
		IsActive:  true,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.medications = append(s.medications, med)
	warn := s.persistMedications()
	s.mu.Unlock()

	s.metrics.MutationsTotal.WithLabelValues("add_medication").Inc()
	s.notify(Event{MedicationID: med.ID})
	return med, warn
}

// UpdateMedication applies the mutator to the medication matching id. A
// missing id is a silent no-op. Identity fields (ID, CreatedAt) and derived
// state (LastInjectionAt) are preserved regardless of what the mutator does.
func (s *Store) UpdateMedication(id string, mutate func(*Medication)) error {
	s.mu.Lock()
	idx := s.findMedication(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	med := s.medications[idx]
	mutate(&med)
	med.ID = s.medications[idx].ID
	med.CreatedAt = s.medications[idx].CreatedAt
	med.LastInjectionAt = s.medications[idx].LastInjectionAt
	s.medications[idx] = med

	warn := s.persistMedications()
	s.mu.Unlock()

	s.metrics.MutationsTotal.WithLabelValues("update_medication").Inc()
	s.notify(Event{MedicationID: id})
	return warn
}

// SetActive sets the active flag. A missing id is a silent no-op.
func (s *Store) SetActive(id string, active bool) error {
	return s.UpdateMedication(id, func(m *Medication) {
		m.IsActive = active
	})
}

// DeleteMedication removes the medication and every injection record that
// references it. A missing id is a silent no-op.
func (s *Store) DeleteMedication(id string) error {
	s.mu.Lock()
	idx := s.findMedication(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	s.medications = append(s.medications[:idx], s.medications[idx+1:]...)

	kept := s.injections[:0]
	for _, rec := range s.injections {
		if rec.MedicationID != id {
			kept = append(kept, rec)
		}
	}
	s.injections = kept

	warn := joinWarnings(s.persistMedications(), s.persistInjections())
	s.mu.Unlock()

	s.metrics.MutationsTotal.WithLabelValues("delete_medication").Inc()
	s.notify(Event{MedicationID: id, Deleted: true})
	return warn
}

// ==================== Injection record mutations ====================

// RecordInjection logs a dose against a medication. The site defaults to the
// medication's configured site when nil. Returns (nil, nil) when the
// medication does not exist.
func (s *Store) RecordInjection(medicationID string, site *InjectionSite, notes string) (*InjectionRecord, error) {
	s.mu.Lock()
	idx := s.findMedication(medicationID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, nil
	}

	med := s.medications[idx]
	recSite := med.Site
	if site != nil {
		recSite = *site
	}

	rec := InjectionRecord{
		ID:             uuid.NewString(),
		MedicationID:   med.ID,
		MedicationName: med.Name,
		Dosage:         med.Dosage,
		Site:           recSite,
		Timestamp:      s.now(),
		Notes:          notes,
	}
	s.injections = append(s.injections, rec)
	s.recomputeLastInjection(medicationID)

	warn := joinWarnings(s.persistMedications(), s.persistInjections())
	s.mu.Unlock()

	s.metrics.MutationsTotal.WithLabelValues("record_injection").Inc()
	s.notify(Event{MedicationID: medicationID})
	return &rec, warn
}

// UpdateInjection applies the mutator to the record matching id. Only site,
// timestamp, and notes are mutable; a timestamp in the future is rejected
// with ErrFutureTimestamp and the record is left unchanged. The owning
// medication's LastInjectionAt is recomputed from scratch afterwards, since
// the edit may move it earlier as well as later.
func (s *Store) UpdateInjection(id string, mutate func(*InjectionRecord)) error {
	s.mu.Lock()
	idx := s.findInjection(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	orig := s.injections[idx]
	rec := orig
	mutate(&rec)

	if rec.Timestamp.After(s.now()) {
		s.mu.Unlock()
		return errors.ErrFutureTimestamp
	}

	// Identity and snapshot fields are immutable.
	rec.ID = orig.ID
	rec.MedicationID = orig.MedicationID
	rec.MedicationName = orig.MedicationName
	rec.Dosage = orig.Dosage
	s.injections[idx] = rec

	s.recomputeLastInjection(rec.MedicationID)
	warn := joinWarnings(s.persistMedications(), s.persistInjections())
	s.mu.Unlock()

	s.metrics.MutationsTotal.WithLabelValues("update_injection").Inc()
	s.notify(Event{MedicationID: rec.MedicationID})
	return warn
}

// DeleteInjection removes a record and recomputes the owning medication's
// LastInjectionAt from the remaining records. A missing id is a silent no-op.
func (s *Store) DeleteInjection(id string) error {
	s.mu.Lock()
	idx := s.findInjection(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	medicationID := s.injections[idx].MedicationID
	s.injections = append(s.injections[:idx], s.injections[idx+1:]...)
	s.recomputeLastInjection(medicationID)

	warn := joinWarnings(s.persistMedications(), s.persistInjections())
	s.mu.Unlock()

	s.metrics.MutationsTotal.WithLabelValues("delete_injection").Inc()
	s.notify(Event{MedicationID: medicationID})
	return warn
}

// ==================== Derived queries ====================

// NextDueDate returns LastInjectionAt + the frequency interval. The second
// return value is false when there is no history or the frequency is
// as-needed.
func (s *Store) NextDueDate(m Medication) (time.Time, bool) {
	days, ok := m.Frequency.IntervalDays()
	if !ok || m.LastInjectionAt == nil {
		return time.Time{}, false
	}
	return m.LastInjectionAt.AddDate(0, 0, days), true
}

// IsOverdue reports whether the next due date exists and has passed
func (s *Store) IsOverdue(m Medication) bool {
	due, ok := s.NextDueDate(m)
	if !ok {
		return false
	}
	return s.now().After(due)
}

// Medication returns the medication with the given id
func (s *Store) Medication(id string) (Medication, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.findMedication(id)
	if idx < 0 {
		return Medication{}, false
	}
	return s.medications[idx], true
}

// Medications returns a snapshot of every medication
func (s *Store) Medications() []Medication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Medication, len(s.medications))
	copy(out, s.medications)
	return out
}

// ActiveMedications returns the medications with the active flag set
func (s *Store) ActiveMedications() []Medication {
	return s.filtered(true)
}

// InactiveMedications returns the medications with the active flag cleared
func (s *Store) InactiveMedications() []Medication {
	return s.filtered(false)
}

func (s *Store) filtered(active bool) []Medication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Medication
	for _, m := range s.medications {
		if m.IsActive == active {
			out = append(out, m)
		}
	}
	return out
}

// Injection returns the injection record with the given id
func (s *Store) Injection(id string) (InjectionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.findInjection(id)
	if idx < 0 {
		return InjectionRecord{}, false
	}
	return s.injections[idx], true
}

// InjectionsFor returns a medication's records, newest first
func (s *Store) InjectionsFor(medicationID string) []InjectionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []InjectionRecord
	for _, rec := range s.injections {
		if rec.MedicationID == medicationID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// ==================== Internals ====================

// findMedication and findInjection assume the caller holds at least a read lock.
func (s *Store) findMedication(id string) int {
	for i := range s.medications {
		if s.medications[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) findInjection(id string) int {
	for i := range s.injections {
		if s.injections[i].ID == id {
			return i
		}
	}
	return -1
}

// recomputeLastInjection rescans every record owned by the medication, never
// just the newest mutation, so edits and deletes can move the value earlier.
func (s *Store) recomputeLastInjection(medicationID string) {
	idx := s.findMedication(medicationID)
	if idx < 0 {
		return
	}

	var last *time.Time
	for i := range s.injections {
		if s.injections[i].MedicationID != medicationID {
			continue
		}
		ts := s.injections[i].Timestamp
		if last == nil || ts.After(*last) {
			last = &ts
		}
	}
	if last != nil {
		t := *last
		s.medications[idx].LastInjectionAt = &t
	} else {
		s.medications[idx].LastInjectionAt = nil
	}
}

func (s *Store) persistMedications() error {
	return s.persist(medicationsKey, s.medications)
}

func (s *Store) persistInjections() error {
	return s.persist(injectionsKey, s.injections)
}

func (s *Store) persist(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.ErrPersist.Code, fmt.Sprintf("encoding %s", key))
	}
	if err := s.kv.Set(key, data); err != nil {
		s.logger.Warn("Durability write failed, in-memory state kept",
			zap.String("key", key),
			zap.Error(err),
		)
		s.metrics.PersistFailures.Inc()
		return errors.Wrap(err, errors.ErrPersist.Code, fmt.Sprintf("writing %s", key))
	}
	return nil
}

func joinWarnings(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
