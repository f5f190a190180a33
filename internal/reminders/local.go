package reminders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/metrics"
	"github.com/gmsas95/dosetrack/internal/store"
)

const authorizedKey = "notifications_authorized"

// Delivery sends one fired reminder to the user
type Delivery interface {
	Send(text string) error
}

// LocalGateway is the in-process Gateway implementation: one timer per
// pending reminder, delivery through a configured channel. Authorization is
// a persisted opt-in flag so a restart keeps the user's decision.
type LocalGateway struct {
	kv      store.KV
	deliver Delivery
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	timers     map[string]*time.Timer
	authorized bool
}

// NewLocalGateway creates a gateway. deliver may be nil, in which case the
// gateway reports itself unauthorized and every schedule is refused.
func NewLocalGateway(kv store.KV, deliver Delivery, m *metrics.Metrics, logger *zap.Logger) *LocalGateway {
	g := &LocalGateway{
		kv:      kv,
		deliver: deliver,
		logger:  logger,
		metrics: m,
		timers:  make(map[string]*time.Timer),
	}

	if val, err := kv.Get(authorizedKey); err == nil && string(val) == "1" {
		g.authorized = true
	}

	return g
}

// IsAuthorized reports whether reminders may be scheduled
func (g *LocalGateway) IsAuthorized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorized && g.deliver != nil
}

// RequestAuthorization records the user's opt-in. Without a delivery channel
// there is nothing to authorize, which is reported as a denial rather than
// an error.
func (g *LocalGateway) RequestAuthorization(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.deliver == nil {
		return false, nil
	}

	g.authorized = true
	if err := g.kv.Set(authorizedKey, []byte("1")); err != nil {
		g.logger.Warn("Failed to persist notification opt-in", zap.Error(err))
	}
	return true, nil
}

// Revoke clears the opt-in and cancels everything pending
func (g *LocalGateway) Revoke() {
	g.mu.Lock()
	g.authorized = false
	if err := g.kv.Set(authorizedKey, []byte("0")); err != nil {
		g.logger.Warn("Failed to persist notification opt-out", zap.Error(err))
	}
	g.mu.Unlock()

	g.CancelAll()
}

// Schedule arms a timer for the reminder. An existing timer with the same ID
// is replaced. Instants not in the future are refused.
func (g *LocalGateway) Schedule(reminderID string, fireAt time.Time, payload Payload) error {
	duration := time.Until(fireAt)
	if duration <= 0 {
		return fmt.Errorf("reminder time is in the past")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.authorized || g.deliver == nil {
		return fmt.Errorf("notifications not authorized")
	}

	if timer, exists := g.timers[reminderID]; exists {
		timer.Stop()
	}

	g.timers[reminderID] = time.AfterFunc(duration, func() {
		g.fire(reminderID, payload)
	})
	g.metrics.RemindersScheduled.Inc()
	return nil
}

// Cancel stops and forgets the given reminders. Unknown IDs are ignored.
func (g *LocalGateway) Cancel(reminderIDs []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range reminderIDs {
		if timer, exists := g.timers[id]; exists {
			timer.Stop()
			delete(g.timers, id)
			g.metrics.RemindersCancelled.Inc()
		}
	}
}

// CancelAll stops every pending reminder
func (g *LocalGateway) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, timer := range g.timers {
		timer.Stop()
		delete(g.timers, id)
		g.metrics.RemindersCancelled.Inc()
	}
}

// ListPending returns the IDs of every armed reminder, sorted
func (g *LocalGateway) ListPending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.timers))
	for id := range g.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *LocalGateway) fire(reminderID string, payload Payload) {
	g.mu.Lock()
	delete(g.timers, reminderID)
	deliver := g.deliver
	g.mu.Unlock()

	if deliver == nil {
		return
	}

	text := fmt.Sprintf("💉 Injection Reminder: time for your %s injection", payload.MedicationName)
	if err := deliver.Send(text); err != nil {
		g.logger.Error("Reminder delivery failed",
			zap.String("reminder_id", reminderID),
			zap.String("medication_id", payload.MedicationID),
			zap.Error(err),
		)
		return
	}

	g.metrics.RemindersDelivered.Inc()
	g.logger.Info("Reminder delivered",
		zap.String("reminder_id", reminderID),
		zap.String("medication_id", payload.MedicationID),
		zap.Int("sequence", payload.Sequence),
	)
}

var _ Gateway = (*LocalGateway)(nil)
