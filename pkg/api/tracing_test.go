package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/muid-io/tracehub/internal/adaptive"
	"github.com/muid-io/tracehub/internal/db"
	"github.com/muid-io/tracehub/internal/environment"
	"github.com/muid-io/tracehub/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// testHub builds a hub with no database behind it: the sampling and config
// endpoints are purely in-memory.
func testHub(t *testing.T, secret string) (*TraceHub, *chi.Mux, *clock.Mock) {
	zap.ReplaceGlobals(zaptest.NewLogger(t))

	mock := clock.NewMock()
	mock.Set(time.Now())
	store := adaptive.NewStore(adaptive.DefaultParams(), mock)

	browse, err := db.NewBrowseCache(time.Second)
	require.NoError(t, err)

	hub := NewTraceHub(environment.Test, nil, store, notify.NewNotifier(), browse, secret, 300*time.Second, 24*time.Hour, 30*time.Second)

	router := chi.NewRouter()
	hub.Routes(router)

	return hub, router, mock
}

func getConfig(t *testing.T, router *chi.Mux, etag string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodGet, "/tracing/config", nil)
	if etag != "" {
		request.Header.Set("If-None-Match", etag)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestConfigServesSnapshot(t *testing.T) {
	hub, router, _ := testHub(t, "")

	hub.Store.Promote("corr-1")

	response := getConfig(t, router, "")
	assert.Equal(t, http.StatusOK, response.Code)
	assert.NotEmpty(t, response.Header().Get("ETag"))

	var snapshot adaptive.Snapshot
	require.NoError(t, json.NewDecoder(response.Body).Decode(&snapshot))
	assert.Contains(t, snapshot.HotSet, "corr-1")
	assert.Equal(t, 0.0, snapshot.DefaultRate)
	assert.Equal(t, 0.1, snapshot.WarmRate)
}

func TestConfigRevalidation(t *testing.T) {
	hub, router, _ := testHub(t, "")

	first := getConfig(t, router, "")
	etag := first.Header().Get("ETag")
	body, err := io.ReadAll(first.Body)
	require.NoError(t, err)

	// Unchanged state: matching ETag short-circuits to 304.
	cached := getConfig(t, router, etag)
	assert.Equal(t, http.StatusNotModified, cached.Code)
	assert.Equal(t, etag, cached.Header().Get("ETag"))

	// Unchanged state without the ETag returns byte-identical content.
	full := getConfig(t, router, "")
	repeat, err := io.ReadAll(full.Body)
	require.NoError(t, err)
	assert.Equal(t, body, repeat)

	// A promotion moves the version and invalidates the ETag.
	hub.Store.Promote("corr-1")
	changed := getConfig(t, router, etag)
	assert.Equal(t, http.StatusOK, changed.Code)
	assert.NotEqual(t, etag, changed.Header().Get("ETag"))
}

func TestEnableDisableRoundTrip(t *testing.T) {
	hub, router, _ := testHub(t, "")

	request := httptest.NewRequest(http.MethodPost, "/tracing/enable/corr-1", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var enabled map[string]interface{}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&enabled))
	assert.Equal(t, "hot", enabled["state"])
	assert.Equal(t, "cold", enabled["previous_state"])
	assert.Equal(t, float64(300), enabled["ttl"])
	assert.Equal(t, adaptive.Hot, hub.Store.State("corr-1"))

	request = httptest.NewRequest(http.MethodPost, "/tracing/disable/corr-1", nil)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var disabled map[string]interface{}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&disabled))
	assert.Equal(t, "cold", disabled["state"])
	assert.Equal(t, "hot", disabled["previous_state"])
	assert.Equal(t, adaptive.Cold, hub.Store.State("corr-1"))
}

func TestEnableRejectsInvalidIDs(t *testing.T) {
	_, router, _ := testHub(t, "")

	for _, id := range []string{"-", strings.Repeat("x", 300)} {
		request := httptest.NewRequest(http.MethodPost, "/tracing/enable/"+id, nil)
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusBadRequest, recorder.Code, "id %q", id)
	}
}

func TestStatusListsTrackedCorrelations(t *testing.T) {
	hub, router, mock := testHub(t, "")

	hub.Store.Promote("corr-hot")
	hub.Store.Promote("corr-warm")
	mock.Add(hub.Store.Params().HotTTL + time.Second)
	hub.Store.Tick()
	hub.Store.Promote("corr-hot")

	request := httptest.NewRequest(http.MethodGet, "/tracing/status", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var status struct {
		Correlations []adaptive.StatusEntry `json:"correlations"`
		Count        int                    `json:"count"`
	}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&status))
	require.Equal(t, 2, status.Count)

	states := map[string]string{}
	for _, entry := range status.Correlations {
		states[entry.CorrelationID] = entry.State
	}
	assert.Equal(t, "hot", states["corr-hot"])
	assert.Equal(t, "warm", states["corr-warm"])
}

func TestIngestRequiresSecret(t *testing.T) {
	_, router, _ := testHub(t, "hunter2")

	request := httptest.NewRequest(http.MethodPost, "/ingest", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	request = httptest.NewRequest(http.MethodPost, "/ingest", nil)
	request.Header.Set("X-TraceHub-Secret", "wrong")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
