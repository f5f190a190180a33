package reminders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/metrics"
)

// memKV is an in-memory stand-in for the badger-backed store
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, val...), nil
}

func (m *memKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte{}, value...)
	return nil
}

func (m *memKV) Close() error { return nil }

type fakeDelivery struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeDelivery) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeDelivery) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.texts...)
}

func setupLocalGateway(t *testing.T) (*LocalGateway, *fakeDelivery, *memKV) {
	kv := newMemKV()
	delivery := &fakeDelivery{}
	g := NewLocalGateway(kv, delivery, metrics.New(), zap.NewNop())
	return g, delivery, kv
}

func TestScheduleRequiresAuthorization(t *testing.T) {
	g, _, _ := setupLocalGateway(t)

	err := g.Schedule("treatment-x-0", time.Now().Add(time.Hour), Payload{})
	assert.Error(t, err)
	assert.Empty(t, g.ListPending())
}

func TestRequestAuthorizationWithoutChannel(t *testing.T) {
	g := NewLocalGateway(newMemKV(), nil, metrics.New(), zap.NewNop())

	granted, err := g.RequestAuthorization(context.Background())
	require.NoError(t, err)
	assert.False(t, granted)
	assert.False(t, g.IsAuthorized())
}

func TestRequestAuthorizationPersists(t *testing.T) {
	g, delivery, kv := setupLocalGateway(t)

	granted, err := g.RequestAuthorization(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)
	assert.True(t, g.IsAuthorized())

	// A new gateway on the same KV store keeps the opt-in.
	g2 := NewLocalGateway(kv, delivery, metrics.New(), zap.NewNop())
	assert.True(t, g2.IsAuthorized())
}

func TestRevoke(t *testing.T) {
	g, _, kv := setupLocalGateway(t)
	_, err := g.RequestAuthorization(context.Background())
	require.NoError(t, err)

	require.NoError(t, g.Schedule("treatment-x-0", time.Now().Add(time.Hour), Payload{}))
	g.Revoke()

	assert.False(t, g.IsAuthorized())
	assert.Empty(t, g.ListPending())

	g2 := NewLocalGateway(kv, &fakeDelivery{}, metrics.New(), zap.NewNop())
	assert.False(t, g2.IsAuthorized())
}

func TestScheduleRejectsPast(t *testing.T) {
	g, _, _ := setupLocalGateway(t)
	_, err := g.RequestAuthorization(context.Background())
	require.NoError(t, err)

	err = g.Schedule("treatment-x-0", time.Now().Add(-time.Minute), Payload{})
	assert.Error(t, err)
}

func TestScheduleReplacesExisting(t *testing.T) {
	g, _, _ := setupLocalGateway(t)
	_, err := g.RequestAuthorization(context.Background())
	require.NoError(t, err)

	require.NoError(t, g.Schedule("treatment-x-0", time.Now().Add(time.Hour), Payload{}))
	require.NoError(t, g.Schedule("treatment-x-0", time.Now().Add(2*time.Hour), Payload{}))

	assert.Equal(t, []string{"treatment-x-0"}, g.ListPending())
}

func TestCancelIdempotent(t *testing.T) {
	g, _, _ := setupLocalGateway(t)
	_, err := g.RequestAuthorization(context.Background())
	require.NoError(t, err)

	// Cancelling something that was never scheduled is a no-op.
	g.Cancel([]string{"treatment-ghost-0"})

	require.NoError(t, g.Schedule("treatment-x-0", time.Now().Add(time.Hour), Payload{}))
	g.Cancel([]string{"treatment-x-0"})
	g.Cancel([]string{"treatment-x-0"})

	assert.Empty(t, g.ListPending())
}

func TestCancelAll(t *testing.T) {
	g, _, _ := setupLocalGateway(t)
	_, err := g.RequestAuthorization(context.Background())
	require.NoError(t, err)

	require.NoError(t, g.Schedule("treatment-a-0", time.Now().Add(time.Hour), Payload{}))
	require.NoError(t, g.Schedule("treatment-b-0", time.Now().Add(time.Hour), Payload{}))

	g.CancelAll()
	assert.Empty(t, g.ListPending())
}

func TestListPendingSorted(t *testing.T) {
	g, _, _ := setupLocalGateway(t)
	_, err := g.RequestAuthorization(context.Background())
	require.NoError(t, err)

	require.NoError(t, g.Schedule("treatment-b-1", time.Now().Add(time.Hour), Payload{}))
	require.NoError(t, g.Schedule("treatment-a-0", time.Now().Add(time.Hour), Payload{}))

	assert.Equal(t, []string{"treatment-a-0", "treatment-b-1"}, g.ListPending())
}

func TestFireDelivers(t *testing.T) {
	g, delivery, _ := setupLocalGateway(t)
	_, err := g.RequestAuthorization(context.Background())
	require.NoError(t, err)

	require.NoError(t, g.Schedule("treatment-x-0", time.Now().Add(20*time.Millisecond), Payload{
		MedicationID:   "x",
		MedicationName: "Insulin",
	}))

	assert.Eventually(t, func() bool {
		return len(delivery.sent()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Contains(t, delivery.sent()[0], "Insulin")
	assert.Empty(t, g.ListPending())
}
