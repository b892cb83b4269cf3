package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ログの種別
const (
	KindView    = "view"
	KindBackend = "backend"
)

const maxLogEntries = 5000

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Kind         string        `json:"kind"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"statusCode"`
	ResponseTime time.Duration `json:"responseTime"`
	Error        string        `json:"error,omitempty"`
}

// MonitoringService は画面リクエストとバックエンド呼び出しを記録します。
type MonitoringService struct {
	logs []LogEntry
	mu   sync.RWMutex
	now  func() time.Time
	loc  *time.Location
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService() *MonitoringService {
	// 店舗はインド標準時で運用
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.UTC
	}
	return &MonitoringService{
		logs: make([]LogEntry, 0),
		now:  time.Now,
		loc:  loc,
	}
}

// LogRequest はリクエストを記録します。古いものから破棄します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if over := len(s.logs) - maxLogEntries; over > 0 {
		s.logs = append(s.logs[:0:0], s.logs[over:]...)
	}
}

// ObserveBackendCall はバックエンド呼び出しの結果を記録します（backend.CallObserver）。
func (s *MonitoringService) ObserveBackendCall(method, path string, statusCode int, elapsed time.Duration, err error) {
	entry := LogEntry{
		Timestamp:    s.now().Add(-elapsed),
		Kind:         KindBackend,
		Path:         path,
		Method:       method,
		StatusCode:   statusCode,
		ResponseTime: elapsed,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.LogRequest(entry)
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()

		// 次のミドルウェア/ハンドラを実行
		c.Next()

		// 監視APIとSSEは除外
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v1/monitoring") || path == "/api/v1/events" {
			return
		}

		entry := LogEntry{
			Timestamp:    start,
			Kind:         KindView,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: s.now().Sub(start),
		}
		if len(c.Errors) > 0 {
			entry.Error = c.Errors.String()
		}
		s.LogRequest(entry)
	}
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []map[string]interface{} `json:"requestsOverTime"`
	Endpoints        map[string]int           `json:"endpoints"`
	StatusCodes      []map[string]interface{} `json:"statusCodes"`
	AvgResponseTimes []map[string]interface{} `json:"avgResponseTimes"`
	BackendCalls     []BackendCallStats       `json:"backendCalls"`
	RecentErrors     []LogEntry               `json:"recentErrors"`
}

// BackendCallStats はバックエンドのパスごとの集計です。
type BackendCallStats struct {
	Endpoint       string `json:"endpoint"`
	Calls          int    `json:"calls"`
	Failures       int    `json:"failures"`
	AvgResponseMs  int64  `json:"avgResponseMs"`
	LastStatusCode int    `json:"lastStatusCode"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if periodHours <= 0 {
		periodHours = 24
	}
	now := s.now().In(s.loc)
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	views := make([]LogEntry, 0)
	calls := make([]LogEntry, 0)
	for _, log := range s.logs {
		if !log.Timestamp.After(since) {
			continue
		}
		if log.Kind == KindBackend {
			calls = append(calls, log)
		} else {
			views = append(views, log)
		}
	}

	// requestsOverTime の集計（過去から現在へ）
	requestsOverTime := make([]map[string]interface{}, periodHours)
	hourlyBuckets := make(map[string]int)
	for _, log := range views {
		hourlyBuckets[log.Timestamp.In(s.loc).Truncate(time.Hour).Format(time.RFC3339)]++
	}
	for i := 0; i < periodHours; i++ {
		target := now.Add(-time.Duration(periodHours-1-i) * time.Hour)
		bucketKey := target.Truncate(time.Hour).Format(time.RFC3339)
		requestsOverTime[i] = map[string]interface{}{
			"time":     target.Format("15:00"),
			"requests": hourlyBuckets[bucketKey],
		}
	}

	endpoints := make(map[string]int)
	for _, log := range views {
		endpoints[log.Path]++
	}

	// statusCodes の集計
	statusCodes := map[string]int{
		"2xx Success":      0,
		"3xx Redirect":     0,
		"4xx Client Error": 0,
		"5xx Server Error": 0,
	}
	for _, log := range views {
		switch {
		case log.StatusCode >= 200 && log.StatusCode < 300:
			statusCodes["2xx Success"]++
		case log.StatusCode >= 300 && log.StatusCode < 400:
			statusCodes["3xx Redirect"]++
		case log.StatusCode >= 400 && log.StatusCode < 500:
			statusCodes["4xx Client Error"]++
		case log.StatusCode >= 500:
			statusCodes["5xx Server Error"]++
		}
	}
	statusCodesSlice := make([]map[string]interface{}, 0, len(statusCodes))
	for name, value := range statusCodes {
		statusCodesSlice = append(statusCodesSlice, map[string]interface{}{"name": name, "value": value})
	}
	sort.Slice(statusCodesSlice, func(i, j int) bool {
		return statusCodesSlice[i]["name"].(string) < statusCodesSlice[j]["name"].(string)
	})

	// avgResponseTimes の集計
	responseTimeSum := make(map[string]time.Duration)
	responseCount := make(map[string]int)
	for _, log := range views {
		responseTimeSum[log.Path] += log.ResponseTime
		responseCount[log.Path]++
	}
	avgResponseTimes := make([]map[string]interface{}, 0, len(responseTimeSum))
	for path, total := range responseTimeSum {
		avg := total.Milliseconds() / int64(responseCount[path])
		avgResponseTimes = append(avgResponseTimes, map[string]interface{}{"endpoint": path, "responseTime": avg})
	}

	// バックエンド呼び出しの集計
	byPath := make(map[string]*BackendCallStats)
	sums := make(map[string]time.Duration)
	for _, log := range calls {
		st, ok := byPath[log.Path]
		if !ok {
			st = &BackendCallStats{Endpoint: log.Path}
			byPath[log.Path] = st
		}
		st.Calls++
		if log.Error != "" {
			st.Failures++
		}
		st.LastStatusCode = log.StatusCode
		sums[log.Path] += log.ResponseTime
	}
	backendCalls := make([]BackendCallStats, 0, len(byPath))
	for path, st := range byPath {
		st.AvgResponseMs = sums[path].Milliseconds() / int64(st.Calls)
		backendCalls = append(backendCalls, *st)
	}
	sort.Slice(backendCalls, func(i, j int) bool { return backendCalls[i].Endpoint < backendCalls[j].Endpoint })

	// recentErrors: 5xxの画面リクエストと失敗したバックエンド呼び出し（新しい順に最大10件）
	merged := append(append(make([]LogEntry, 0, len(views)+len(calls)), views...), calls...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp.After(merged[j].Timestamp) })
	recentErrors := make([]LogEntry, 0)
	for _, log := range merged {
		if log.StatusCode >= 500 || (log.Kind == KindBackend && log.Error != "") {
			recentErrors = append(recentErrors, log)
			if len(recentErrors) >= 10 {
				break
			}
		}
	}

	return DashboardData{
		RequestsOverTime: requestsOverTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodesSlice,
		AvgResponseTimes: avgResponseTimes,
		BackendCalls:     backendCalls,
		RecentErrors:     recentErrors,
	}
}
