package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/recordvault/pkg/config"
	"github.com/ssargent/recordvault/pkg/keys"
	"github.com/ssargent/recordvault/pkg/storage"
	"github.com/ssargent/recordvault/pkg/store"
)

const testAPIKey = "test-key"

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

type testEnv struct {
	server  *Server
	handler http.Handler
	records *store.RecordStore
}

// setupTestServer creates a server over a record store backed by in-memory pebble
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	substrate, err := storage.OpenPebbleSubstrate("vault", &pebble.Options{FS: vfs.NewMem()}, false)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	schemas, err := cfg.BuildSchemas()
	require.NoError(t, err)

	records, err := store.New(store.Config{
		Limits:    cfg.Limits,
		Schemas:   schemas,
		Substrate: substrate,
	})
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	registry := prometheus.NewRegistry()
	server := NewServer(records, ServerConfig{APIKey: testAPIKey}, NewMetrics(registry), nil)

	return &testEnv{
		server:  server,
		handler: server.NewRouter(registry),
		records: records,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, testResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var resp testResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp), "path %s", path)
	return w.Code, resp
}

func newAddress(t *testing.T) string {
	t.Helper()
	k, err := keys.NewOwner()
	require.NoError(t, err)
	return k.String()
}

func decodeData(t *testing.T, resp testResponse, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestServer_Health(t *testing.T) {
	env := setupTestServer(t)

	code, resp := env.do(t, "GET", "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.server.metrics.healthChecksTotal.WithLabelValues(statusSuccess)))
}

func TestServer_AppendGrowsRecord(t *testing.T) {
	env := setupTestServer(t)

	owner := newAddress(t)
	code, resp := env.do(t, "POST", "/api/v1/keys/derive", DeriveRequest{Namespace: "numbers", Owner: owner})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var derived DeriveResponse
	decodeData(t, resp, &derived)
	key := derived.Address

	code, resp = env.do(t, "POST", "/api/v1/records/"+key, InitializeRequest{
		Schema:    "numbers",
		Sequences: map[string][]uint64{"values": {1, 2, 3}},
	})
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = env.do(t, "GET", "/api/v1/records/"+key+"/stat", nil)
	require.Equal(t, http.StatusOK, code)
	var st store.RecordStat
	decodeData(t, resp, &st)
	assert.Equal(t, store.RecordStat{Schema: "numbers", Capacity: 16, Length: 16}, st)

	code, resp = env.do(t, "POST", "/api/v1/records/"+key+"/append", AppendRequest{Elements: []uint64{4, 5}})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var receipt store.Receipt
	decodeData(t, resp, &receipt)
	assert.True(t, receipt.Success)
	assert.Contains(t, receipt.Logs, "encoded size 24 exceeds capacity 16: growing by 8 bytes")

	code, resp = env.do(t, "GET", "/api/v1/records/"+key, nil)
	require.Equal(t, http.StatusOK, code)
	var view RecordView
	decodeData(t, resp, &view)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, view.Sequences["values"])
	assert.Equal(t, 24, view.Capacity)

	code, resp = env.do(t, "GET", "/api/v1/receipts/"+receipt.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	var stored store.Receipt
	decodeData(t, resp, &stored)
	assert.Equal(t, receipt.Logs, stored.Logs)

	ops := env.server.metrics.recordOperationsTotal
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("append", statusSuccess, "")))
}

func TestServer_NestedAppendRejected(t *testing.T) {
	env := setupTestServer(t)
	key := newAddress(t)

	code, resp := env.do(t, "POST", "/api/v1/records/"+key, InitializeRequest{
		Schema:    "numbers",
		Sequences: map[string][]uint64{"values": {1, 2, 3}},
		Capacity:  16,
	})
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = env.do(t, "POST", "/api/v1/records/"+key+"/append", AppendRequest{
		Sequence: "values",
		Elements: make([]uint64, 2561),
		Context:  "nested",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "growth_rejected", resp.Code)
	assert.Contains(t, resp.Error, "exceeds nested growth limit")

	var receipt store.Receipt
	decodeData(t, resp, &receipt)
	assert.False(t, receipt.Success)
	assert.NotEmpty(t, receipt.Logs)

	code, resp = env.do(t, "GET", "/api/v1/records/"+key, nil)
	require.Equal(t, http.StatusOK, code)
	var view RecordView
	decodeData(t, resp, &view)
	assert.Equal(t, []uint64{1, 2, 3}, view.Sequences["values"])
	assert.Equal(t, 16, view.Capacity)

	rejections := env.server.metrics.growthRejectionsTotal.WithLabelValues("exceeds_nested_growth_limit", "nested")
	assert.Equal(t, float64(1), testutil.ToFloat64(rejections))
}

func TestServer_RecordErrors(t *testing.T) {
	env := setupTestServer(t)
	key := newAddress(t)

	code, resp := env.do(t, "POST", "/api/v1/records/"+key+"/append", AppendRequest{Elements: []uint64{1}})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", resp.Code)

	code, resp = env.do(t, "POST", "/api/v1/records/"+key, InitializeRequest{
		Schema:    "numbers",
		Sequences: map[string][]uint64{"values": {1, 2, 3}},
		Capacity:  15,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "insufficient_capacity", resp.Code)

	code, _ = env.do(t, "POST", "/api/v1/records/"+key, InitializeRequest{Schema: "numbers"})
	require.Equal(t, http.StatusOK, code)
	code, resp = env.do(t, "POST", "/api/v1/records/"+key, InitializeRequest{Schema: "numbers"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_exists", resp.Code)

	code, resp = env.do(t, "POST", "/api/v1/records/"+newAddress(t), InitializeRequest{Schema: "missing"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown_schema", resp.Code)

	code, _ = env.do(t, "GET", "/api/v1/records/not-an-address", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, "POST", "/api/v1/records/"+key+"/append", AppendRequest{Elements: []uint64{1}, Context: "sideways"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.do(t, "GET", "/api/v1/receipts/"+strings.Repeat("0", 27), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", resp.Code)
}

func TestServer_UpdateLottery(t *testing.T) {
	env := setupTestServer(t)
	key := newAddress(t)
	authority := newAddress(t)

	code, resp := env.do(t, "POST", "/api/v1/records/"+key, InitializeRequest{
		Schema: "lottery",
		Fields: map[string]any{
			"authority": authority,
			"number":    7,
			"name":      "weekly",
			"pot":       "340282366920938463463374607431768211455",
			"open":      true,
		},
		Reserve: map[string]int{"winners": 5},
	})
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = env.do(t, "GET", "/api/v1/records/"+key+"/fields/status?equals=Active", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var eq FieldEqualsResponse
	decodeData(t, resp, &eq)
	assert.True(t, eq.Equal)

	code, resp = env.do(t, "PATCH", "/api/v1/records/"+key, UpdateRequest{
		Fields: map[string]any{"status": "Completed", "open": false},
	})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var receipt store.Receipt
	decodeData(t, resp, &receipt)
	assert.Equal(t, []string{"set status = 1", "set open = false", "updated 2 fields"}, receipt.Logs)

	code, resp = env.do(t, "GET", "/api/v1/records/"+key, nil)
	require.Equal(t, http.StatusOK, code)
	var view RecordView
	decodeData(t, resp, &view)
	assert.Equal(t, "Completed", view.Fields["status"])
	assert.Equal(t, "340282366920938463463374607431768211455", view.Fields["pot"])
	assert.Equal(t, authority, view.Fields["authority"])
	assert.Equal(t, "weekly", view.Fields["name"])
	assert.Equal(t, false, view.Fields["open"])
	assert.Equal(t, float64(7), view.Fields["number"])
	assert.Equal(t, 94+5*4, view.Capacity)
	assert.Equal(t, 94, view.Length)

	code, resp = env.do(t, "PATCH", "/api/v1/records/"+key, UpdateRequest{
		Fields: map[string]any{"status": "Paused"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_field", resp.Code)

	code, resp = env.do(t, "PATCH", "/api/v1/records/"+key, UpdateRequest{
		Fields: map[string]any{"winners": 1},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_field", resp.Code)
}

func TestServer_ListingAndDocs(t *testing.T) {
	env := setupTestServer(t)

	for i := 0; i < 3; i++ {
		code, resp := env.do(t, "POST", "/api/v1/records/"+newAddress(t), InitializeRequest{Schema: "numbers", Capacity: 32})
		require.Equal(t, http.StatusOK, code, resp.Error)
	}

	code, resp := env.do(t, "GET", "/api/v1/records", nil)
	require.Equal(t, http.StatusOK, code)
	var addrs []string
	decodeData(t, resp, &addrs)
	assert.Len(t, addrs, 3)

	code, resp = env.do(t, "GET", "/api/v1/schemas", nil)
	require.Equal(t, http.StatusOK, code)
	var schemas []SchemaView
	decodeData(t, resp, &schemas)
	require.Len(t, schemas, 3)
	assert.Equal(t, "lottery", schemas[0].Name)

	code, resp = env.do(t, "GET", "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats StatsResponse
	decodeData(t, resp, &stats)
	assert.Equal(t, StatsResponse{Records: 3, AllocatedBytes: 96, MaxRecordSize: 10 * 1024 * 1024, MaxNestedGrowth: 10240}, stats)

	req := httptest.NewRequest("GET", "/swagger/doc.json", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Record Vault REST API")
	assert.True(t, json.Valid(w.Body.Bytes()))

	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vault_record_operations_total")
}
