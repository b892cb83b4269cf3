package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront-client/pkg/models"

	"github.com/bwmarrin/snowflake"
)

// CallObserver はバックエンド呼び出しの結果を受け取ります（モニタリング用）。
type CallObserver interface {
	ObserveBackendCall(method, path string, statusCode int, elapsed time.Duration, err error)
}

// Client はストアフロントのバックエンドREST APIへのリクエストを管理します。
// トランスポート・HTTPエラーはすべてerrorとして返し、呼び出し側で処理します。
type Client struct {
	baseURL    string
	httpClient *http.Client
	ids        *snowflake.Node
	observer   CallObserver
}

// NewClient は新しいバックエンドクライアントを作成します。
// nodeIDはリクエストID（snowflake）の生成に使います（0-1023）。
func NewClient(baseURL string, timeout time.Duration, nodeID int64) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend URL が設定されていません")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("無効な backend URL です: %w", err)
	}
	node, err := snowflake.NewNode(nodeID & 0x3FF)
	if err != nil {
		return nil, fmt.Errorf("リクエストID生成器の初期化に失敗: %w", err)
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		ids: node,
	}, nil
}

// SetObserver は呼び出し結果の通知先を設定します。
func (c *Client) SetObserver(o CallObserver) {
	c.observer = o
}

// BaseURL 接続先
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError はバックエンドが2xx以外を返したことを表します。
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend API エラー (status: %d)", e.StatusCode)
	}
	return fmt.Sprintf("backend API エラー (status: %d): %s", e.StatusCode, e.Detail)
}

// IsNotFound は404かどうかを返します。
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type validator interface {
	Validate() error
}

// --- メソッド定義 ---

// SendChat はチャットの1ターンを送信します。
func (c *Client) SendChat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	var resp models.ChatResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/chat", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("チャットAPI 呼び出しに失敗: %w", err)
	}
	return &resp, nil
}

// ListProducts は条件付きで商品一覧を取得します。
func (c *Client) ListProducts(ctx context.Context, filter models.ProductFilter) (*models.ProductListResponse, error) {
	query := url.Values{}
	if filter.Category != "" {
		query.Set("category", filter.Category)
	}
	if filter.Budget > 0 {
		query.Set("budget", strconv.FormatFloat(filter.Budget, 'f', -1, 64))
	}
	sort := filter.Sort
	if sort == "" {
		sort = "trending"
	}
	query.Set("sort", sort)
	query.Set("limit", strconv.Itoa(limitOrDefault(filter.Limit, 10)))

	var resp models.ProductListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/products", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}
	return &resp, nil
}

// GetProduct は商品詳細を取得します。
func (c *Client) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var resp models.ProductResponse
	path := "/api/products/" + url.PathEscape(productID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("商品詳細の取得に失敗: %w", err)
	}
	return resp.Product, nil
}

// SearchProducts はキーワードで商品を検索します。
func (c *Client) SearchProducts(ctx context.Context, query string, limit int) (*models.ProductListResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("検索キーワードが空です")
	}
	params := url.Values{"limit": {strconv.Itoa(limitOrDefault(limit, 10))}}
	path := "/api/products/search/" + url.PathEscape(query)

	var resp models.ProductListResponse
	if err := c.doRequest(ctx, http.MethodGet, path, params, nil, &resp); err != nil {
		return nil, fmt.Errorf("商品検索に失敗: %w", err)
	}
	return &resp, nil
}

// GetInventory は商品の在庫を照会します。
func (c *Client) GetInventory(ctx context.Context, productID, location string) (*models.InventoryResponse, error) {
	var query url.Values
	if location != "" {
		query = url.Values{"location": {location}}
	}
	var resp models.InventoryResponse
	path := "/api/inventory/" + url.PathEscape(productID)
	if err := c.doRequest(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, fmt.Errorf("在庫照会に失敗: %w", err)
	}
	return &resp, nil
}

// AddToCart はバックエンドのカートに商品を追加します。
func (c *Client) AddToCart(ctx context.Context, sessionID string, item models.CartItem) (*models.CartResponse, error) {
	var resp models.CartResponse
	query := url.Values{"session_id": {sessionID}}
	if err := c.doRequest(ctx, http.MethodPost, "/api/cart/add", query, item, &resp); err != nil {
		return nil, fmt.Errorf("カート追加に失敗: %w", err)
	}
	return &resp, nil
}

// GetCart はバックエンドのカートを取得します。
func (c *Client) GetCart(ctx context.Context, sessionID string) (*models.CartResponse, error) {
	var resp models.CartResponse
	path := "/api/cart/" + url.PathEscape(sessionID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("カート取得に失敗: %w", err)
	}
	return &resp, nil
}

// RemoveFromCart はバックエンドのカートから商品を削除します。
func (c *Client) RemoveFromCart(ctx context.Context, sessionID, productID string) (*models.CartResponse, error) {
	var resp models.CartResponse
	path := fmt.Sprintf("/api/cart/%s/item/%s", url.PathEscape(sessionID), url.PathEscape(productID))
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("カート削除に失敗: %w", err)
	}
	return &resp, nil
}

// Checkout は注文を確定します。
func (c *Client) Checkout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutResponse, error) {
	var resp models.CheckoutResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/checkout", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("チェックアウトに失敗: %w", err)
	}
	return &resp, nil
}

// GetLoyalty はロイヤルティ情報と利用可能なクーポンを取得します。
func (c *Client) GetLoyalty(ctx context.Context, customerID string) (*models.LoyaltyResponse, error) {
	var resp models.LoyaltyResponse
	path := "/api/loyalty/" + url.PathEscape(customerID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("ロイヤルティ情報の取得に失敗: %w", err)
	}
	return &resp, nil
}

// RelatedProducts はカート内商品に関連するおすすめを取得します。
func (c *Client) RelatedProducts(ctx context.Context, productIDs []string, limit int) (*models.RecommendationsResponse, error) {
	return c.recommendations(ctx, "/api/recommendations/related", productIDs, limitOrDefault(limit, 4))
}

// CompleteTheLook はコーディネート提案を取得します。
func (c *Client) CompleteTheLook(ctx context.Context, productIDs []string, limit int) (*models.RecommendationsResponse, error) {
	return c.recommendations(ctx, "/api/recommendations/complete-look", productIDs, limitOrDefault(limit, 3))
}

// FrequentlyBought は一緒に買われている商品を取得します。
func (c *Client) FrequentlyBought(ctx context.Context, productID string, limit int) (*models.RecommendationsResponse, error) {
	var resp models.RecommendationsResponse
	path := "/api/recommendations/frequently-bought/" + url.PathEscape(productID)
	query := url.Values{"limit": {strconv.Itoa(limitOrDefault(limit, 3))}}
	if err := c.doRequest(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, fmt.Errorf("おすすめの取得に失敗: %w", err)
	}
	return &resp, nil
}

func (c *Client) recommendations(ctx context.Context, path string, productIDs []string, limit int) (*models.RecommendationsResponse, error) {
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("商品IDが指定されていません")
	}
	query := url.Values{
		"product_ids": {strings.Join(productIDs, ",")},
		"limit":       {strconv.Itoa(limit)},
	}
	var resp models.RecommendationsResponse
	if err := c.doRequest(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, fmt.Errorf("おすすめの取得に失敗: %w", err)
	}
	return &resp, nil
}

// SubmitFeedback は注文へのフィードバックを送信します。
func (c *Client) SubmitFeedback(ctx context.Context, req models.FeedbackRequest) (*models.FeedbackResponse, error) {
	var resp models.FeedbackResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/feedback", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("フィードバック送信に失敗: %w", err)
	}
	return &resp, nil
}

// GetSession はバックエンド側のセッションを取得します。
func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.SessionData, error) {
	var resp models.SessionResponse
	path := "/api/session/" + url.PathEscape(sessionID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("セッション取得に失敗: %w", err)
	}
	return &resp.Session, nil
}

// Health はバックエンドの /health を確認します。
func (c *Client) Health(ctx context.Context) error {
	var resp map[string]any
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil, &resp)
}

// doRequest はHTTPリクエストの実行と基本的なレスポンス処理を行う共通メソッドです。
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, requestData any, responseData any) (err error) {
	start := time.Now()
	statusCode := 0
	defer func() {
		if c.observer != nil {
			c.observer.ObserveBackendCall(method, path, statusCode, time.Since(start), err)
		}
	}()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if requestData != nil {
		requestBody, err := json.Marshal(requestData)
		if err != nil {
			return fmt.Errorf("リクエストのJSON化に失敗: %w", err)
		}
		body = bytes.NewReader(requestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", c.ids.Generate().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの実行に失敗: %w", err)
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	if err := json.Unmarshal(respBody, responseData); err != nil {
		return fmt.Errorf("レスポンスのJSON解析に失敗: %w", err)
	}
	if v, ok := responseData.(validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("レスポンスの形式が不正です: %w", err)
		}
	}
	return nil
}

// errorDetail はFastAPI形式 {"detail": ...} のエラー内容を取り出します。
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Detail) > 0 {
			var s string
			if json.Unmarshal(payload.Detail, &s) == nil {
				return s
			}
			return string(payload.Detail)
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
