package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"storefront-client/pkg/services"

	"github.com/gin-gonic/gin"
)

const maxPeriodHours = 24 * 30

// MonitoringHandler はモニタリング関連の操作のハンドラです。
type MonitoringHandler struct {
	Service *services.MonitoringService
}

// NewMonitoringHandler は新しいMonitoringHandlerを生成します。
func NewMonitoringHandler(service *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{
		Service: service,
	}
}

// GetLogs は集計されたログデータを返します。
// period は "6h" や "7d" の形式、kind=backend でバックエンド呼び出しの集計のみ返します。
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	hours, ok := periodHours(c.DefaultQuery("period", "24h"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "periodは 1h〜30d の範囲で指定してください"})
		return
	}

	data := h.Service.GetDashboardData(hours)
	if c.Query("kind") == services.KindBackend {
		c.JSON(http.StatusOK, gin.H{"backendCalls": data.BackendCalls, "recentErrors": data.RecentErrors})
		return
	}
	c.JSON(http.StatusOK, data)
}

// periodHours は "12h" / "7d" を時間数に変換します。
func periodHours(period string) (int, bool) {
	if len(period) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(period[:len(period)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	switch strings.ToLower(period[len(period)-1:]) {
	case "h":
	case "d":
		n *= 24
	default:
		return 0, false
	}
	if n > maxPeriodHours {
		return 0, false
	}
	return n, true
}
