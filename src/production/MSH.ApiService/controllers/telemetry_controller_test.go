package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authService "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.ApiService/implementation/auth"
	"gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.ApiService/middleware"
	config "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Config"
	ingest "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Ingestor"
	livestore "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.LiveStore"
	logger "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Logger"
	mshmodels "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Models"
	interfaces "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Repository/Interfaces"
)

const (
	testToken  = "secret-token"
	testAPIKey = "gateway-key"
)

// fakeRepo is an in-memory durable store for handler tests.
type fakeRepo struct {
	inserted []mshmodels.Reading
}

func (f *fakeRepo) InsertReading(_ context.Context, rd mshmodels.Reading) error {
	f.inserted = append(f.inserted, rd)
	return nil
}

func (f *fakeRepo) InsertReadings(_ context.Context, rds []mshmodels.Reading) error {
	f.inserted = append(f.inserted, rds...)
	return nil
}

func (f *fakeRepo) GetHistory(_ context.Context, fl interfaces.ReadingFilter, limit int) ([]mshmodels.Reading, error) {
	out := make([]mshmodels.Reading, 0)
	for i := len(f.inserted) - 1; i >= 0 && len(out) < limit; i-- {
		rd := f.inserted[i]
		if fl.NodeID != "" && rd.NodeID != fl.NodeID {
			continue
		}
		if fl.AdminID != "" && rd.AdminID != fl.AdminID {
			continue
		}
		out = append(out, rd)
	}
	return out, nil
}

func (f *fakeRepo) GetLatest(_ context.Context, fl interfaces.ReadingFilter) (*mshmodels.Reading, error) {
	for i := len(f.inserted) - 1; i >= 0; i-- {
		rd := f.inserted[i]
		if fl.NodeID != "" && rd.NodeID != fl.NodeID {
			continue
		}
		if fl.AdminID != "" && rd.AdminID != fl.AdminID {
			continue
		}
		return &rd, nil
	}
	return nil, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeRepo, *livestore.LiveStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := &fakeRepo{}
	live := livestore.NewLiveStore()
	log := logger.NewLogger(&config.LoggingConfig{Level: "error", Format: "json", Output: "stdout"})
	ingestService := ingest.NewService(repo, live, log)

	tokenService := authService.NewTokenService(testToken)
	authMW := middleware.NewAuthMiddleware(tokenService, middleware.DefaultConfig())
	apiKeyMW := middleware.APIKeyMiddleware(testAPIKey)

	ctrl := NewTelemetryController(repo, live, ingestService, log, authMW, apiKeyMW, 10*time.Second, 100)

	router := gin.New()
	ctrl.RegisterRoutes(router)
	return router, repo, live
}

func doJSON(router *gin.Engine, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func withAPIKey() map[string]string {
	return map[string]string{"X-API-Key": testAPIKey}
}

func withToken() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func TestPublicIngestRequiresAPIKey(t *testing.T) {
	router, repo, live := newTestRouter(t)

	body := map[string]interface{}{"nodeId": "NODE_001", "temperature": 22.5}

	w := doJSON(router, http.MethodPost, "/api/esp32/public", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/api/esp32/public", body, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A rejected request must not have touched either store.
	assert.Empty(t, repo.inserted)
	assert.Equal(t, 0, live.Len())

	w = doJSON(router, http.MethodPost, "/api/esp32/public", body, withAPIKey())
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "NODE_001", repo.inserted[0].NodeID)
	assert.Equal(t, mshmodels.DefaultAdminID, repo.inserted[0].AdminID)
	assert.Equal(t, 0, live.Len(), "public route is durable-only")
}

func TestPublicIngestMissingNodeID(t *testing.T) {
	router, repo, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/esp32/public", map[string]interface{}{"temperature": 22.5}, withAPIKey())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, repo.inserted)
}

func TestRelayIngestLiveOnly(t *testing.T) {
	router, repo, live := newTestRouter(t)

	body := map[string]interface{}{
		"room_id": 1,
		"motion":  0,
		"gas":     0,
		"rain":    0,
	}

	w := doJSON(router, http.MethodPost, "/api/esp32/public/relay", body, withAPIKey())
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Empty(t, repo.inserted, "relay samples are never persisted")

	rd, ok := live.Get("ROOM_1")
	require.True(t, ok)
	require.NotNil(t, rd.Motion)
	assert.False(t, *rd.Motion)
	require.NotNil(t, rd.Gas)
	assert.Equal(t, mshmodels.GasFlag, rd.Gas.Kind)
	assert.False(t, rd.Gas.Flag)
	require.NotNil(t, rd.WaterLevel)
	assert.Equal(t, 0.0, *rd.WaterLevel)
}

func TestBatchIngestCounts(t *testing.T) {
	router, repo, _ := newTestRouter(t)

	body := map[string]interface{}{
		"adminId": "ADMIN_005",
		"sensorData": []map[string]interface{}{
			{"nodeId": "NODE_001", "temperature": 20},
			{"temperature": 21}, // missing identity
			{"deviceId": "NODE_002", "humidity": 55},
		},
	}

	w := doJSON(router, http.MethodPost, "/api/esp32/public/batch", body, withAPIKey())
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success       bool `json:"success"`
		AcceptedCount int  `json:"acceptedCount"`
		FailedCount   int  `json:"failedCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.AcceptedCount)
	assert.Equal(t, 1, resp.FailedCount)

	require.Len(t, repo.inserted, 2)
	assert.Equal(t, "ADMIN_005", repo.inserted[0].AdminID)
}

func TestBatchIngestRequiresAdminAndData(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/esp32/public/batch", map[string]interface{}{
		"sensorData": []map[string]interface{}{{"nodeId": "NODE_001"}},
	}, withAPIKey())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/esp32/public/batch", map[string]interface{}{
		"adminId": "ADMIN_001",
	}, withAPIKey())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryEndpointsRequireToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/esp32/latest", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/api/esp32/latest", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetLatestNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/esp32/latest?nodeId=NODE_404", nil, withToken())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHistoryNewestFirst(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, nodeID := range []string{"NODE_001", "NODE_002", "NODE_001"} {
		w := doJSON(router, http.MethodPost, "/api/esp32/public", map[string]interface{}{"nodeId": nodeID}, withAPIKey())
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(router, http.MethodGet, "/api/esp32?nodeId=NODE_001", nil, withToken())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int                 `json:"count"`
		Data  []mshmodels.Reading `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	// The legacy deviceId query alias selects the same rows.
	w = doJSON(router, http.MethodGet, "/api/esp32?deviceId=NODE_001", nil, withToken())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestGetLatestAllNodesFromLiveStore(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, body := range []map[string]interface{}{
		{"room_id": 2},
		{"room_id": 1},
	} {
		w := doJSON(router, http.MethodPost, "/api/esp32/public/relay", body, withAPIKey())
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(router, http.MethodGet, "/api/esp32/latest/all-nodes", nil, withToken())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int                 `json:"count"`
		Data  []mshmodels.Reading `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "ROOM_1", resp.Data[0].NodeID)
	assert.Equal(t, "ROOM_2", resp.Data[1].NodeID)
}

func TestGetPresence(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/esp32/public/relay", map[string]interface{}{"nodeId": "NODE_001"}, withAPIKey())
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodGet, "/api/esp32/status", nil, withToken())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		GatewayOnline bool `json:"gatewayOnline"`
		Count         int  `json:"count"`
		Nodes         []struct {
			NodeID string `json:"nodeId"`
			Online bool   `json:"online"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.GatewayOnline)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "NODE_001", resp.Nodes[0].NodeID)
	assert.True(t, resp.Nodes[0].Online)
}

func TestDirectPostRequiresToken(t *testing.T) {
	router, repo, _ := newTestRouter(t)

	body := map[string]interface{}{"nodeId": "NODE_001"}

	w := doJSON(router, http.MethodPost, "/api/esp32", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, repo.inserted)

	w = doJSON(router, http.MethodPost, "/api/esp32", body, withToken())
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, repo.inserted, 1)
}
