package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/db"
	"grading-assistant-core/internal/license"
	"grading-assistant-core/internal/model"
	"grading-assistant-core/internal/store"
	gradesync "grading-assistant-core/internal/sync"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var device = model.Identity{DeviceID: "dev-1", ActivationID: "act-1"}

type testServer struct {
	cfg  *config.Config
	repo *db.MemoryRepository
	srv  *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.License.RequireLicense = true
	cfg.License.ActivationIDs = []string{"act-1"}
	cfg.License.DefaultQuota = 50
	cfg.RemoteAPI.RetryDelay = time.Millisecond

	repo := db.NewMemoryRepository()
	srv := httptest.NewServer(NewRouter(NewHandler(repo, nil, cfg)))
	t.Cleanup(srv.Close)

	cfg.RemoteAPI.BaseURL = srv.URL
	return &testServer{cfg: cfg, repo: repo, srv: srv}
}

func (s *testServer) request(t *testing.T, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func identityHeaders(id model.Identity) map[string]string {
	return map[string]string{
		license.HeaderDeviceID:     id.DeviceID,
		license.HeaderActivationID: id.ActivationID,
	}
}

const batchBody = `{"records":[{"id":"a","questionKey":"Q1","studentName":"Ana","score":3,"maxScore":5,"timestamp":1000}]}`

func TestCreateRecords_RequiresIdempotencyKey(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodPost, "/api/v1/records", batchBody, identityHeaders(device))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecords_RequireEntitledIdentity(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodGet, "/api/v1/records", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.request(t, http.MethodGet, "/api/v1/records", "", identityHeaders(model.Identity{DeviceID: "dev-1", ActivationID: "bogus"}))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateRecords_ValidationError(t *testing.T) {
	s := newTestServer(t)
	headers := identityHeaders(device)
	headers[gradesync.HeaderIdempotencyKey] = "k1"

	resp := s.request(t, http.MethodPost, "/api/v1/records", `{"records":[{"studentName":"Ana","timestamp":1000}]}`, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = s.request(t, http.MethodPost, "/api/v1/records", `{"records":[]}`, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCreateRecords_RepeatedKeyReplays(t *testing.T) {
	s := newTestServer(t)
	headers := identityHeaders(device)
	headers[gradesync.HeaderIdempotencyKey] = "k1"

	first := s.request(t, http.MethodPost, "/api/v1/records", batchBody, headers)
	require.Equal(t, http.StatusOK, first.StatusCode)
	assert.Empty(t, first.Header.Get(HeaderReplayed))

	var firstBody model.BatchCreateResponse
	require.NoError(t, json.NewDecoder(first.Body).Decode(&firstBody))

	second := s.request(t, http.MethodPost, "/api/v1/records", batchBody, headers)
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get(HeaderReplayed))

	var secondBody model.BatchCreateResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&secondBody))
	assert.Equal(t, 0, secondBody.Created)
	// batchBody holds one record.
	assert.Equal(t, 1, firstBody.Created+secondBody.Created)

	_, total, err := s.repo.List(context.Background(), device.Key(), model.RecordQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestDeleteRecords_RequiresFilter(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodDelete, "/api/v1/records", "", identityHeaders(device))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLicenseStatus(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodGet, "/api/v1/license/status", "", identityHeaders(device))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status model.LicenseStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Entitled)
	assert.Equal(t, 50, status.RemainingQuota)

	resp = s.request(t, http.MethodGet, "/api/v1/license/status", "", identityHeaders(model.Identity{DeviceID: "dev-2"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = model.LicenseStatus{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.False(t, status.Entitled)
	assert.NotEmpty(t, status.Message)
}

func TestTriggerSync_WithoutQueue(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodPost, "/api/v1/sync/trigger", "", identityHeaders(device))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func newEngine(t *testing.T, s *testServer, gate license.Gate) (*gradesync.Engine, *store.Records) {
	t.Helper()
	records := store.NewRecords(store.NewMemoryKV(0), store.DefaultKeys())
	return gradesync.NewEngine(s.cfg, records, gradesync.NewClient(s.cfg), gate), records
}

func TestEngineAgainstServer_SyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	engine, records := newEngine(t, s, license.NewStaticGate(device, true, 50))

	_, err := records.Append(ctx,
		model.GradingRecord{ID: "a", QuestionKey: "Q1", StudentName: "Ana", Score: 3, MaxScore: 5, Timestamp: 1000},
		model.GradingRecord{ID: "b", QuestionKey: "Q1", StudentName: "Ana", Score: 4, MaxScore: 5, Timestamp: 1300},
		model.GradingRecord{ID: "c", QuestionNo: "2", StudentName: "Ben", Score: 1, MaxScore: 2, Timestamp: 5000},
	)
	require.NoError(t, err)

	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Pushed)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 3, result.Pulled)
	assert.Zero(t, result.Imported)
	assert.Equal(t, model.SyncStatusSuccess, engine.State().Status)

	all, err := records.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	byID := map[string]model.GradingRecord{}
	for _, r := range all {
		byID[r.ID] = r
	}
	assert.True(t, byID["a"].IsHidden)
	assert.False(t, byID["b"].IsHidden)

	result, err = engine.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Pushed)
	assert.Zero(t, result.Imported)

	_, total, err := s.repo.List(ctx, device.Key(), model.RecordQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestEngineAgainstServer_SecondDeviceImports(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	first, firstRecords := newEngine(t, s, license.NewStaticGate(device, true, 50))
	second, secondRecords := newEngine(t, s, license.NewStaticGate(device, true, 50))

	_, err := firstRecords.Append(ctx, model.GradingRecord{ID: "a", QuestionKey: "Q1", StudentName: "Ana", Score: 3, Timestamp: 1000})
	require.NoError(t, err)
	_, err = first.Sync(ctx)
	require.NoError(t, err)

	result, err := second.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	all, err := secondRecords.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.OriginRemote, all[0].Origin)
}

func TestEngineAgainstServer_DeleteQuestion(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	engine, records := newEngine(t, s, license.NewStaticGate(device, true, 50))

	_, err := records.Append(ctx,
		model.GradingRecord{ID: "a", QuestionKey: "Q1", StudentName: "Ana", Timestamp: 1000},
		model.GradingRecord{ID: "c", QuestionKey: "Q2", StudentName: "Ben", Timestamp: 5000},
	)
	require.NoError(t, err)
	_, err = engine.Sync(ctx)
	require.NoError(t, err)

	local, remote, err := engine.DeleteQuestion(ctx, model.QuestionFilter{QuestionKey: "Q1"})
	require.NoError(t, err)
	assert.Equal(t, 1, local)
	assert.Equal(t, 1, remote)

	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Imported)

	all, err := records.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "c", all[0].ID)
}

func TestEngineAgainstServer_NotEntitledStaysLocal(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	engine, records := newEngine(t, s, license.NewStaticGate(model.Identity{DeviceID: "dev-2"}, false, 0))

	_, err := records.Append(ctx, model.GradingRecord{ID: "a", QuestionKey: "Q1", StudentName: "Ana", Timestamp: 1000})
	require.NoError(t, err)

	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	_, total, err := s.repo.List(ctx, device.Key(), model.RecordQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestHTTPGateAgainstServer(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	cfg := *s.cfg
	cfg.License.DeviceID = device.DeviceID
	cfg.License.ActivationID = device.ActivationID
	id, entitled, err := license.Entitled(ctx, license.NewHTTPGate(&cfg))
	require.NoError(t, err)
	assert.True(t, entitled)
	assert.Equal(t, device, id)

	cfg.License.ActivationID = "expired"
	_, entitled, err = license.Entitled(ctx, license.NewHTTPGate(&cfg))
	require.NoError(t, err)
	assert.False(t, entitled)
}
