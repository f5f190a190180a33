package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/config"
	"github.com/gmsas95/dosetrack/internal/medication"
	"github.com/gmsas95/dosetrack/internal/metrics"
	"github.com/gmsas95/dosetrack/internal/reminders"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
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

func setupTestServer(t *testing.T) (*Server, *medication.Store) {
	kv := &memKV{data: make(map[string][]byte)}
	logger := zap.NewNop()
	m := metrics.New()

	st, err := medication.NewStore(kv, m, logger)
	require.NoError(t, err)

	gateway := reminders.NewLocalGateway(kv, nil, m, logger)
	reconciler := reminders.NewReconciler(st, gateway, reminders.Config{Count: 10, FireHour: 9}, m, logger)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Address:      "127.0.0.1",
			Port:         0,
			ReadTimeout:  5,
			WriteTimeout: 5,
		},
		Reminders: config.RemindersConfig{Count: 10, FireHour: 9},
	}

	return New(cfg, st, reconciler, gateway, m, logger), st
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createMedication(t *testing.T, s *Server, name string) medicationResponse {
	t.Helper()
	resp := doJSON(t, s, "POST", "/api/medications", medicationRequest{
		Name:      name,
		Dosage:    "50mg",
		Site:      "subcutaneous",
		Frequency: frequencyRequest{Kind: "weekly"},
	})
	require.Equal(t, 201, resp.StatusCode)

	var out medicationResponse
	decode(t, resp, &out)
	return out
}

func TestHealth(t *testing.T) {
	s, _ := setupTestServer(t)

	resp := doJSON(t, s, "GET", "/api/health", nil)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestCreateMedicationValidation(t *testing.T) {
	s, _ := setupTestServer(t)

	resp := doJSON(t, s, "POST", "/api/medications", medicationRequest{
		Name:   "   ",
		Dosage: "50mg",
	})
	assert.Equal(t, 400, resp.StatusCode)

	resp = doJSON(t, s, "POST", "/api/medications", medicationRequest{
		Name:   "Insulin",
		Dosage: "",
	})
	assert.Equal(t, 400, resp.StatusCode)

	resp = doJSON(t, s, "POST", "/api/medications", medicationRequest{
		Name:      "Insulin",
		Dosage:    "10iu",
		Site:      "oral",
		Frequency: frequencyRequest{Kind: "daily"},
	})
	assert.Equal(t, 400, resp.StatusCode)

	resp = doJSON(t, s, "POST", "/api/medications", medicationRequest{
		Name:      "Insulin",
		Dosage:    "10iu",
		Frequency: frequencyRequest{Kind: "every_n_days"},
	})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestCreateAndGetMedication(t *testing.T) {
	s, _ := setupTestServer(t)

	created := createMedication(t, s, "Semaglutide")
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)
	assert.Equal(t, "Weekly", created.FrequencyLabel)
	assert.Nil(t, created.NextDue)

	resp := doJSON(t, s, "GET", "/api/medications/"+created.ID, nil)
	require.Equal(t, 200, resp.StatusCode)

	var got medicationResponse
	decode(t, resp, &got)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetMedicationNotFound(t *testing.T) {
	s, _ := setupTestServer(t)

	resp := doJSON(t, s, "GET", "/api/medications/nope", nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestListMedicationsActiveFilter(t *testing.T) {
	s, _ := setupTestServer(t)

	a := createMedication(t, s, "A")
	b := createMedication(t, s, "B")

	resp := doJSON(t, s, "POST", fmt.Sprintf("/api/medications/%s/active", b.ID), setActiveRequest{Active: false})
	require.Equal(t, 200, resp.StatusCode)

	var active []medicationResponse
	decode(t, doJSON(t, s, "GET", "/api/medications?active=true", nil), &active)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	var inactive []medicationResponse
	decode(t, doJSON(t, s, "GET", "/api/medications?active=false", nil), &inactive)
	require.Len(t, inactive, 1)
	assert.Equal(t, b.ID, inactive[0].ID)
}

func TestRecordInjectionAndDerivedFields(t *testing.T) {
	s, _ := setupTestServer(t)

	med := createMedication(t, s, "Semaglutide")

	resp := doJSON(t, s, "POST", fmt.Sprintf("/api/medications/%s/injections", med.ID), recordInjectionRequest{Notes: "left thigh"})
	require.Equal(t, 201, resp.StatusCode)

	var rec medication.InjectionRecord
	decode(t, resp, &rec)
	assert.Equal(t, "Semaglutide", rec.MedicationName)
	assert.Equal(t, medication.SiteSubcutaneous, rec.Site)

	var got medicationResponse
	decode(t, doJSON(t, s, "GET", "/api/medications/"+med.ID, nil), &got)
	require.NotNil(t, got.NextDue)
	assert.WithinDuration(t, rec.Timestamp.AddDate(0, 0, 7), *got.NextDue, time.Second)
	assert.False(t, got.Overdue)
}

func TestRecordInjectionUnknownMedication(t *testing.T) {
	s, _ := setupTestServer(t)

	resp := doJSON(t, s, "POST", "/api/medications/nope/injections", recordInjectionRequest{})
	assert.Equal(t, 404, resp.StatusCode)
}

func TestUpdateInjectionFutureTimestampRejected(t *testing.T) {
	s, _ := setupTestServer(t)

	med := createMedication(t, s, "Insulin")
	resp := doJSON(t, s, "POST", fmt.Sprintf("/api/medications/%s/injections", med.ID), recordInjectionRequest{})
	require.Equal(t, 201, resp.StatusCode)
	var rec medication.InjectionRecord
	decode(t, resp, &rec)

	future := time.Now().AddDate(0, 0, 2)
	resp = doJSON(t, s, "PUT", "/api/injections/"+rec.ID, updateInjectionRequest{Timestamp: &future})
	assert.Equal(t, 422, resp.StatusCode)
}

func TestDeleteMedicationCascades(t *testing.T) {
	s, st := setupTestServer(t)

	med := createMedication(t, s, "Insulin")
	resp := doJSON(t, s, "POST", fmt.Sprintf("/api/medications/%s/injections", med.ID), recordInjectionRequest{})
	require.Equal(t, 201, resp.StatusCode)

	resp = doJSON(t, s, "DELETE", "/api/medications/"+med.ID, nil)
	require.Equal(t, 200, resp.StatusCode)

	resp = doJSON(t, s, "GET", "/api/medications/"+med.ID, nil)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Empty(t, st.InjectionsFor(med.ID))
}

func TestNotificationStatusUnauthorized(t *testing.T) {
	s, _ := setupTestServer(t)

	resp := doJSON(t, s, "GET", "/api/notifications/status", nil)
	require.Equal(t, 200, resp.StatusCode)

	var status struct {
		Authorized bool `json:"authorized"`
		Pending    int  `json:"pending"`
	}
	decode(t, resp, &status)
	assert.False(t, status.Authorized)
	assert.Zero(t, status.Pending)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := setupTestServer(t)

	resp := doJSON(t, s, "GET", "/api/metrics", nil)
	assert.Equal(t, 200, resp.StatusCode)
}
