package registrytest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnode/internal/model"
)

func post(t *testing.T, h http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/reports", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func report(id string) []byte {
	body, _ := json.Marshal(model.Observation{
		ID:       id,
		Status:   model.StatusLocal,
		Title:    "t",
		Tags:     []string{},
		Geohash:  "s00000",
		MediaIDs: []string{},
	})
	return body
}

const testID = "0b3c6a39-3a4e-4c53-9f0e-4a3f6d3f2a11"

func TestRegistry_ValidationFailure(t *testing.T) {
	r := New()
	rec := post(t, r.Handler(), []byte(`{"id":"x"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "validation failed", env.Error)
	assert.NotEmpty(t, env.Detail)
	assert.Empty(t, r.Reports())
}

func TestRegistry_FailureInjectionOrder(t *testing.T) {
	r := New()
	r.FailID(testID, 2, http.StatusBadGateway)
	r.FailNext(http.StatusInternalServerError)
	h := r.Handler()

	assert.Equal(t, http.StatusBadGateway, post(t, h, report(testID)).Code)
	assert.Equal(t, http.StatusBadGateway, post(t, h, report(testID)).Code)
	assert.Equal(t, http.StatusInternalServerError, post(t, h, report(testID)).Code)
	assert.Equal(t, http.StatusCreated, post(t, h, report(testID)).Code)
	assert.Equal(t, 4, r.Calls(testID))
}

func TestRegistry_Unhealthy(t *testing.T) {
	r := New()
	r.SetHealthy(false)
	h := r.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, post(t, h, report(testID)).Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	r.SetHealthy(true)
	assert.Equal(t, http.StatusCreated, post(t, h, report(testID)).Code)
}

func TestRegistry_PutAndList(t *testing.T) {
	r := New()
	r.Put(model.Observation{ID: "old", CreatedAt: 1})
	r.Put(model.Observation{ID: "new", CreatedAt: 2})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Success bool                `json:"success"`
		Data    []model.Observation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	require.Len(t, env.Data, 2)
	assert.Equal(t, "new", env.Data[0].ID)
}
