package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	config "storefront-client/configs"
	"storefront-client/internal/store"
	"storefront-client/pkg/backend"
	"storefront-client/pkg/models"
)

// ErrValidation はネットワーク呼び出し前に入力が拒否されたことを示します。
var ErrValidation = errors.New("validation failed")

// ShopService は画面からの操作（チャット・検索・カート）をStoreとバックエンドに橋渡しします。
type ShopService struct {
	store    *store.Store
	client   *backend.Client
	realtime *RealtimeService
	catalog  *config.StorefrontCatalog

	recommendationsLimit int
	searchLimit          int
	now                  func() time.Time

	mu      sync.RWMutex
	coupons []models.Coupon
}

// NewShopService は新しいShopServiceを生成します。realtime は nil でも構いません。
func NewShopService(st *store.Store, client *backend.Client, realtime *RealtimeService, catalog *config.StorefrontCatalog, cfg *config.Config) *ShopService {
	if catalog == nil {
		catalog = config.DefaultStorefrontCatalog()
	}
	s := &ShopService{
		store:                st,
		client:               client,
		realtime:             realtime,
		catalog:              catalog,
		recommendationsLimit: 4,
		searchLimit:          10,
		now:                  time.Now,
	}
	if cfg != nil {
		if cfg.RecommendationsLimit > 0 {
			s.recommendationsLimit = cfg.RecommendationsLimit
		}
		if cfg.DefaultSearchPageSize > 0 {
			s.searchLimit = cfg.DefaultSearchPageSize
		}
	}
	if realtime != nil {
		realtime.OnReply(s.applyReply)
		realtime.OnDrop(s.abandonTurns)
	}
	return s
}

// Store 共有Store
func (s *ShopService) Store() *store.Store {
	return s.store
}

// Catalog 画面用の静的カタログ
func (s *ShopService) Catalog() *config.StorefrontCatalog {
	return s.catalog
}

// SendMessage はユーザーの発言を会話に追加し、エージェントの応答を待ちます。
// バックエンドの失敗は定型のエラーメッセージとして会話に残し、呼び出し元には返しません。
func (s *ShopService) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: message is empty", ErrValidation)
	}

	if err := s.store.AppendMessage(models.Message{Role: models.RoleUser, Message: text}); err != nil {
		return err
	}
	s.store.SetTyping(true)

	req := models.ChatRequest{
		Message:    text,
		SessionID:  s.store.SessionID(),
		CustomerID: s.store.CustomerID(),
	}

	// リアルタイム経由の応答は受信ループ側で applyReply される
	if s.realtime != nil && s.realtime.Connected() {
		err := s.realtime.Send(ctx, req)
		if err == nil {
			return nil
		}
		log.Printf("リアルタイム送信に失敗、HTTPにフォールバック: %v", err)
	}

	resp, err := s.client.SendChat(ctx, req)
	if err != nil {
		log.Printf("❌ チャットAPIエラー: %v", err)
		s.appendChatError()
		s.store.SetTyping(false)
		return nil
	}
	s.applyReply(resp)
	return nil
}

// applyReply はHTTPとリアルタイムの両経路から呼ばれる共通の反映処理です。
func (s *ShopService) applyReply(resp *models.ChatResponse) {
	defer s.store.SetTyping(false)

	if err := resp.Validate(); err != nil {
		log.Printf("❌ エージェント応答が不正です: %v", err)
		s.appendChatError()
		return
	}

	msg := models.Message{
		Role:      models.RoleAgent,
		Message:   resp.Message,
		Timestamp: resp.Timestamp,
		Products:  resp.Products,
	}
	if err := s.store.AppendMessage(msg); err != nil {
		log.Printf("エージェント応答の追加に失敗: %v", err)
		return
	}
	if len(resp.Products) > 0 {
		s.store.ReplaceProducts(resp.Products)
	}
}

// abandonTurns は応答が届かなかったリアルタイム送信を失敗として会話に残します。
func (s *ShopService) abandonTurns(reqs []models.ChatRequest) {
	for _, req := range reqs {
		log.Printf("❌ リアルタイム応答が届きませんでした: %q", req.Message)
		s.appendChatError()
	}
	s.store.SetTyping(false)
}

func (s *ShopService) appendChatError() {
	msg := models.Message{
		Role:      models.RoleAgent,
		Message:   s.catalog.Messages.ChatError,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.store.AppendMessage(msg); err != nil {
		log.Printf("エラーメッセージの追加に失敗: %v", err)
	}
}

// LoadTrending は初期表示用のトレンド商品を取得します。会話には追加しません。
func (s *ShopService) LoadTrending(ctx context.Context) error {
	resp, err := s.client.SendChat(ctx, models.ChatRequest{
		Message:    s.catalog.Messages.TrendingQuery,
		SessionID:  s.store.SessionID(),
		CustomerID: s.store.CustomerID(),
	})
	if err != nil {
		return fmt.Errorf("トレンド商品の取得に失敗: %w", err)
	}
	if len(resp.Products) > 0 {
		s.store.ReplaceProducts(resp.Products)
	}
	return nil
}

// Search はキーワード検索の結果で商品一覧を置き換えます。
func (s *ShopService) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is empty", ErrValidation)
	}
	if limit <= 0 {
		limit = s.searchLimit
	}
	resp, err := s.client.SearchProducts(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("商品検索に失敗: %w", err)
	}
	s.store.ReplaceProducts(resp.Products)
	return resp.Products, nil
}

// ListProducts はカテゴリ・予算で絞り込んだ一覧で商品一覧を置き換えます。
func (s *ShopService) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	if filter.Budget < 0 {
		return nil, fmt.Errorf("%w: budget must not be negative", ErrValidation)
	}
	resp, err := s.client.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}
	s.store.ReplaceProducts(resp.Products)
	return resp.Products, nil
}

// ShowProduct は商品詳細と在庫を取得して選択状態にします。
func (s *ShopService) ShowProduct(ctx context.Context, productID, location string) (*models.Product, error) {
	product, err := s.client.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("商品詳細の取得に失敗: %w", err)
	}

	// 在庫は補助情報なので失敗しても詳細は表示する
	if inv, err := s.client.GetInventory(ctx, productID, location); err != nil {
		log.Printf("在庫照会に失敗 (%s): %v", productID, err)
	} else {
		stock := inv.Stock
		product.Stock = &stock
		if len(inv.Options) > 0 {
			product.FulfillmentOptions = inv.Options
		}
	}

	s.store.SelectProduct(product)
	return product, nil
}

// AddToCartInput カート追加の入力
type AddToCartInput struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity,omitempty"` // 省略時は1
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// AddToCart は商品をローカルカートに追加してからバックエンドに同期し、関連商品を返します。
func (s *ShopService) AddToCart(ctx context.Context, in AddToCartInput) ([]models.Product, error) {
	if strings.TrimSpace(in.ProductID) == "" {
		return nil, fmt.Errorf("%w: product_id is required", ErrValidation)
	}
	quantity := 1
	if in.Quantity != nil {
		quantity = *in.Quantity
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1, got %d", ErrValidation, quantity)
	}

	product, err := s.lookupProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}

	item := models.CartItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		Price:       product.Price,
		Size:        in.Size,
		Color:       in.Color,
	}
	if err := s.store.AddToCart(item); err != nil {
		return nil, err
	}

	if _, err := s.client.AddToCart(ctx, s.store.SessionID(), item); err != nil {
		// ローカルのカートはそのまま残す
		log.Printf("⚠️ カートの同期に失敗 (%s): %v", item.ProductID, err)
		return nil, nil
	}

	notice := fmt.Sprintf(s.catalog.Messages.AddedToCart, product.Name)
	if err := s.store.AppendMessage(models.Message{Role: models.RoleAgent, Message: notice}); err != nil {
		log.Printf("カート追加メッセージの追加に失敗: %v", err)
	}

	recs, err := s.Recommendations(ctx, []string{product.ID}, 0)
	if err != nil {
		log.Printf("関連商品の取得に失敗: %v", err)
		return nil, nil
	}
	return recs, nil
}

// lookupProduct は表示中の商品から探し、無ければバックエンドに問い合わせます。
func (s *ShopService) lookupProduct(ctx context.Context, productID string) (*models.Product, error) {
	snap := s.store.Snapshot()
	if snap.SelectedProduct != nil && snap.SelectedProduct.ID == productID {
		return snap.SelectedProduct, nil
	}
	for i := range snap.Products {
		if snap.Products[i].ID == productID {
			return &snap.Products[i], nil
		}
	}
	product, err := s.client.GetProduct(ctx, productID)
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, fmt.Errorf("%w: product %s not found", ErrValidation, productID)
		}
		return nil, fmt.Errorf("商品詳細の取得に失敗: %w", err)
	}
	return product, nil
}

// RemoveFromCart はローカルから削除し、バックエンドにもベストエフォートで反映します。
func (s *ShopService) RemoveFromCart(ctx context.Context, productID string) {
	s.store.RemoveFromCart(productID)
	if _, err := s.client.RemoveFromCart(ctx, s.store.SessionID(), productID); err != nil {
		log.Printf("⚠️ カート削除の同期に失敗 (%s): %v", productID, err)
	}
}

// SyncCart はバックエンドのカートでローカルのカートを置き換えます。
func (s *ShopService) SyncCart(ctx context.Context) (models.Cart, error) {
	resp, err := s.client.GetCart(ctx, s.store.SessionID())
	if err != nil {
		return models.Cart{}, fmt.Errorf("カートの取得に失敗: %w", err)
	}
	if err := s.store.SetCart(resp.Cart); err != nil {
		return models.Cart{}, err
	}
	return s.store.Snapshot().Cart, nil
}

// LoadLoyalty はロイヤルティ情報を丸ごと置き換え、クーポン一覧を保持します。
func (s *ShopService) LoadLoyalty(ctx context.Context) (models.LoyaltyInfo, []models.Coupon, error) {
	resp, err := s.client.GetLoyalty(ctx, s.store.CustomerID())
	if err != nil {
		return models.LoyaltyInfo{}, nil, fmt.Errorf("ロイヤルティ情報の取得に失敗: %w", err)
	}
	s.store.SetLoyaltyInfo(resp.Loyalty)

	s.mu.Lock()
	s.coupons = append([]models.Coupon(nil), resp.Coupons...)
	s.mu.Unlock()

	return resp.Loyalty, s.Coupons(), nil
}

// Coupons は最後に取得したクーポン一覧のコピーを返します。
func (s *ShopService) Coupons() []models.Coupon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Coupon(nil), s.coupons...)
}

// Recommendations は関連商品を返します。ids が空ならカートの商品を基準にします。
func (s *ShopService) Recommendations(ctx context.Context, ids []string, limit int) ([]models.Product, error) {
	if len(ids) == 0 {
		for _, item := range s.store.Snapshot().Cart.Items {
			ids = append(ids, item.ProductID)
		}
	}
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	if limit <= 0 {
		limit = s.recommendationsLimit
	}
	resp, err := s.client.RelatedProducts(ctx, ids, limit)
	if err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

// CompleteTheLook はコーディネート提案を返します。
func (s *ShopService) CompleteTheLook(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: product_ids is required", ErrValidation)
	}
	resp, err := s.client.CompleteTheLook(ctx, ids, 0)
	if err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

// FrequentlyBought は一緒に買われている商品を返します。
func (s *ShopService) FrequentlyBought(ctx context.Context, productID string, limit int) ([]models.Product, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, fmt.Errorf("%w: product_id is required", ErrValidation)
	}
	resp, err := s.client.FrequentlyBought(ctx, productID, limit)
	if err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

// BackendSession はバックエンド側に保存されている現在のセッションを返します。
func (s *ShopService) BackendSession(ctx context.Context) (*models.SessionData, error) {
	return s.client.GetSession(ctx, s.store.SessionID())
}

// ResetSession は新しいセッションを開始します。
func (s *ShopService) ResetSession() {
	s.store.ResetSession()
	log.Printf("🔄 セッションをリセットしました: %s", s.store.SessionID())
}
