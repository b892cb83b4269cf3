package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	config "storefront-client/configs"
	"storefront-client/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// テスト環境の設定
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func fakeBackend(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("GET /api/loyalty/{customer}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.LoyaltyResponse{
			Success: true,
			Loyalty: models.LoyaltyInfo{Tier: models.TierPlatinum, Points: 1200},
		})
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.ChatResponse{
			Success:  true,
			Message:  "Trending now",
			Products: []models.Product{{ID: "T1", Name: "Linen Shirt", Price: 1299}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, backendURL string) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Port:                 "0",
		Environment:          "test",
		BackendURL:           backendURL,
		HTTPTimeout:          2 * time.Second,
		StateFile:            filepath.Join(dir, "state.yaml"),
		CatalogFile:          filepath.Join(dir, "missing.yaml"),
		NodeID:               1,
		RecommendationsLimit: 4,
		TrendingOnStartup:    true,
	}
}

func TestApplicationSetup(t *testing.T) {
	srv := fakeBackend(t)
	cfg := testConfig(t, srv.URL)

	app, err := newApplication(cfg)
	require.NoError(t, err)
	assert.Nil(t, app.realtime)

	// ヘルスチェックのテスト
	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"backend":"ok"`)

	// 顧客IDは再起動後も同じ
	again, err := newApplication(cfg)
	require.NoError(t, err)
	assert.Equal(t, app.shop.Store().CustomerID(), again.shop.Store().CustomerID())
	assert.NotEqual(t, app.shop.Store().SessionID(), "")
}

func TestApplicationRejectsBadBackendURL(t *testing.T) {
	cfg := testConfig(t, "not a url")
	_, err := newApplication(cfg)
	assert.Error(t, err)
}

func TestWarmUpLoadsLoyaltyAndTrending(t *testing.T) {
	srv := fakeBackend(t)
	app, err := newApplication(testConfig(t, srv.URL))
	require.NoError(t, err)

	warmUp(context.Background(), app.shop, true)

	snap := app.shop.Store().Snapshot()
	require.NotNil(t, snap.LoyaltyInfo)
	assert.Equal(t, models.TierPlatinum, snap.LoyaltyInfo.Tier)
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "T1", snap.Products[0].ID)
	// トレンド取得は会話に残らない
	assert.Empty(t, snap.Messages)
}

func TestAPIKeyProtectsRoutes(t *testing.T) {
	srv := fakeBackend(t)
	cfg := testConfig(t, srv.URL)
	cfg.APIKey = "secret"
	app, err := newApplication(cfg)
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", "/api/v1/state", nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// ヘルスチェックは認証不要
	req, _ = http.NewRequest("GET", "/health", nil)
	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
