package services

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddlewareRecordsViewRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewMonitoringService()

	r := gin.New()
	r.Use(svc.LoggingMiddleware())
	r.GET("/api/v1/state", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.POST("/api/v1/checkout", func(c *gin.Context) { c.JSON(http.StatusBadGateway, gin.H{"success": false}) })
	r.GET("/api/v1/monitoring/logs", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v1/state", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/state", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/monitoring/logs", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	data := svc.GetDashboardData(1)
	assert.Equal(t, map[string]int{"/api/v1/state": 2, "/api/v1/checkout": 1}, data.Endpoints)
	require.Len(t, data.RecentErrors, 1)
	assert.Equal(t, "/api/v1/checkout", data.RecentErrors[0].Path)
	assert.Len(t, data.RequestsOverTime, 1)
	assert.Equal(t, 3, data.RequestsOverTime[0]["requests"])

	counts := map[string]int{}
	for _, sc := range data.StatusCodes {
		counts[sc["name"].(string)] = sc["value"].(int)
	}
	assert.Equal(t, 2, counts["2xx Success"])
	assert.Equal(t, 1, counts["5xx Server Error"])
}

func TestObserveBackendCall(t *testing.T) {
	svc := NewMonitoringService()

	svc.ObserveBackendCall(http.MethodPost, "/api/chat", 200, 120*time.Millisecond, nil)
	svc.ObserveBackendCall(http.MethodPost, "/api/chat", 500, 80*time.Millisecond, errors.New("backend API エラー (status: 500)"))
	svc.ObserveBackendCall(http.MethodGet, "/api/products", 0, 10*time.Millisecond, errors.New("connection refused"))

	data := svc.GetDashboardData(24)
	// バックエンド呼び出しは画面リクエストの集計に含めない
	assert.Empty(t, data.Endpoints)

	require.Len(t, data.BackendCalls, 2)
	chat := data.BackendCalls[0]
	assert.Equal(t, "/api/chat", chat.Endpoint)
	assert.Equal(t, 2, chat.Calls)
	assert.Equal(t, 1, chat.Failures)
	assert.Equal(t, int64(100), chat.AvgResponseMs)

	products := data.BackendCalls[1]
	assert.Equal(t, "/api/products", products.Endpoint)
	assert.Equal(t, 1, products.Failures)

	assert.Len(t, data.RecentErrors, 2)
}

func TestDashboardFiltersByPeriod(t *testing.T) {
	svc := NewMonitoringService()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.LogRequest(LogEntry{Timestamp: now.Add(-30 * time.Minute), Kind: KindView, Path: "/api/v1/state", StatusCode: 200})
	svc.LogRequest(LogEntry{Timestamp: now.Add(-5 * time.Hour), Kind: KindView, Path: "/api/v1/cart", StatusCode: 200})

	assert.Equal(t, map[string]int{"/api/v1/state": 1}, svc.GetDashboardData(1).Endpoints)
	assert.Len(t, svc.GetDashboardData(24).Endpoints, 2)
}

func TestLogRequestKeepsBoundedHistory(t *testing.T) {
	svc := NewMonitoringService()
	for i := 0; i < maxLogEntries+10; i++ {
		svc.LogRequest(LogEntry{Timestamp: time.Now(), Kind: KindView, Path: "/x", StatusCode: 200})
	}
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	assert.Len(t, svc.logs, maxLogEntries)
}
