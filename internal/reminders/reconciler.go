package reminders

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/medication"
	"github.com/gmsas95/dosetrack/internal/metrics"
)

// Config holds reconciler tuning
type Config struct {
	Count    int // Future reminders kept scheduled per medication
	FireHour int // Local hour of day reminders fire at
}

// Reconciler keeps the gateway's pending-reminder set consistent with the
// treatment store. It owns no persistent state: the store snapshot plus the
// gateway's pending list are the whole truth.
//
// Reconciliations for the same medication are serialized (one mutex per ID),
// so a stale schedule can never land after a newer cancel. Different
// medications reconcile concurrently.
type Reconciler struct {
	store   *medication.Store
	gateway Gateway
	logger  *zap.Logger
	metrics *metrics.Metrics
	config  Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewReconciler creates a reconciler with the given gateway injected
func NewReconciler(st *medication.Store, gw Gateway, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.FireHour < 0 || cfg.FireHour > 23 {
		cfg.FireHour = 9
	}

	return &Reconciler{
		store:   st,
		gateway: gw,
		logger:  logger,
		metrics: m,
		config:  cfg,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// HandleEvent reconciles in response to a store mutation. Runs on its own
// goroutine so store mutations never block on gateway calls.
func (r *Reconciler) HandleEvent(ev medication.Event) {
	go r.Reconcile(ev.MedicationID)
}

// Reconcile recomputes and re-issues the correct reminder set for one
// medication. Safe to call at any time with any ID; calling it twice with no
// intervening state change leaves the pending set unchanged.
func (r *Reconciler) Reconcile(medicationID string) {
	lock := r.lockFor(medicationID)
	lock.Lock()
	defer lock.Unlock()

	r.metrics.Reconciliations.Inc()

	// Cancel first, unconditionally. A deleted or deactivated medication
	// ends up with nothing pending and the steps below short-circuit.
	r.gateway.Cancel(r.reminderIDs(medicationID))

	med, ok := r.store.Medication(medicationID)
	if !ok {
		return
	}
	if !med.IsActive {
		r.logger.Debug("Medication inactive, reminders cancelled",
			zap.String("medication_id", medicationID))
		return
	}
	intervalDays, ok := med.Frequency.IntervalDays()
	if !ok {
		// As-needed: no due date, no reminders.
		return
	}
	if !r.gateway.IsAuthorized() {
		// Expected state, not a failure.
		return
	}

	now := r.now()
	anchor := r.anchor(med, intervalDays, now)

	scheduled := 0
	for seq := 0; seq < r.config.Count; seq++ {
		fireAt := r.atFireHour(anchor.AddDate(0, 0, intervalDays*seq))
		if !fireAt.After(now) {
			continue
		}

		id := SequencedReminderID(medicationID, seq)
		if err := r.gateway.Schedule(id, fireAt, Payload{
			MedicationID:   medicationID,
			MedicationName: med.Name,
			Sequence:       seq,
		}); err != nil {
			r.logger.Warn("Failed to schedule reminder",
				zap.String("reminder_id", id),
				zap.Time("fire_at", fireAt),
				zap.Error(err),
			)
			continue
		}
		scheduled++
	}

	r.logger.Debug("Reconciled reminders",
		zap.String("medication_id", medicationID),
		zap.String("name", med.Name),
		zap.Int("scheduled", scheduled),
	)
}

// ResyncAll reconciles every medication in the store. Used at startup and by
// the periodic sweep, since in-process timers do not survive a restart.
func (r *Reconciler) ResyncAll() {
	meds := r.store.Medications()
	var wg sync.WaitGroup
	for _, med := range meds {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Reconcile(id)
		}(med.ID)
	}
	wg.Wait()

	r.logger.Info("Reminder resync complete", zap.Int("medications", len(meds)))
}

// PendingCount reports how many reminders the gateway holds for a medication
func (r *Reconciler) PendingCount(medicationID string) int {
	count := 0
	for _, id := range r.gateway.ListPending() {
		if strings.Contains(id, medicationID) {
			count++
		}
	}
	return count
}

// anchor is the instant the reminder series starts from: one interval past
// the last injection, or tomorrow when there is no history yet.
func (r *Reconciler) anchor(med medication.Medication, intervalDays int, now time.Time) time.Time {
	if med.LastInjectionAt != nil {
		return med.LastInjectionAt.AddDate(0, 0, intervalDays)
	}
	return now.AddDate(0, 0, 1)
}

func (r *Reconciler) atFireHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), r.config.FireHour, 0, 0, 0, t.Location())
}

func (r *Reconciler) reminderIDs(medicationID string) []string {
	ids := make([]string, 0, r.config.Count+1)
	ids = append(ids, ReminderID(medicationID))
	for seq := 0; seq < r.config.Count; seq++ {
		ids = append(ids, SequencedReminderID(medicationID, seq))
	}
	return ids
}

func (r *Reconciler) lockFor(medicationID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[medicationID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[medicationID] = lock
	}
	return lock
}
