package models

import (
	"fmt"
	"strings"
)

// Role 会話メッセージの送信者
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Valid 会話の送信者として有効か
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAgent
}

// Tier ロイヤルティ会員ランク
type Tier string

const (
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

// 決済方法
const (
	PaymentUPI    = "UPI"
	PaymentCard   = "Card"
	PaymentWallet = "Wallet"
)

// 受け取り方法
const (
	FulfillmentShipToHome    = "Ship to Home"
	FulfillmentClickCollect  = "Click & Collect"
	FulfillmentInStoreTryOn  = "In-Store Try-on"
	DefaultStoreLocation     = "Mumbai"
	DefaultPaymentMethod     = PaymentUPI
	DefaultFulfillmentOption = FulfillmentShipToHome
)

// StockInfo 在庫情報
type StockInfo struct {
	Available bool           `json:"available"`
	Warehouse int            `json:"warehouse"`
	Stores    map[string]int `json:"stores,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// FulfillmentOption 商品ごとの受け取りオプション
type FulfillmentOption struct {
	Type          string  `json:"type"`
	Available     bool    `json:"available"`
	Location      string  `json:"location,omitempty"`
	EstimatedTime string  `json:"estimated_time"`
	Cost          float64 `json:"cost"`
	Description   string  `json:"description"`
}

// Product バックエンドから受け取る商品スナップショット（クライアントでは変更しない）
type Product struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	Price                float64             `json:"price"`
	Rating               float64             `json:"rating"`
	ImageURL             string              `json:"image_url"`
	Description          string              `json:"description"`
	Category             string              `json:"category"`
	Brand                string              `json:"brand"`
	Sizes                []string            `json:"sizes"`
	Colors               []string            `json:"colors"`
	IsTrending           bool                `json:"is_trending,omitempty"`
	IsSeasonal           bool                `json:"is_seasonal,omitempty"`
	IsBestseller         bool                `json:"is_bestseller,omitempty"`
	Stock                *StockInfo          `json:"stock,omitempty"`
	FulfillmentOptions   []FulfillmentOption `json:"fulfillment_options,omitempty"`
	Reasoning            string              `json:"reasoning,omitempty"`
	ConfidenceScore      float64             `json:"confidence_score,omitempty"`
	RecommendationReason string              `json:"recommendation_reason,omitempty"`
	RecommendationScore  float64             `json:"recommendation_score,omitempty"`
}

// Validate 表示できない商品データを弾く
func (p Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("product id is empty")
	}
	if p.Price < 0 {
		return fmt.Errorf("product %s has negative price %v", p.ID, p.Price)
	}
	return nil
}

// CartItem カートの1行。productIDが一意キー
type CartItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Size        string  `json:"size,omitempty"`
	Color       string  `json:"color,omitempty"`
}

// LineTotal 単価×数量
func (i CartItem) LineTotal() float64 {
	return i.Price * float64(i.Quantity)
}

// Cart カート。Subtotalは常にItemsから導出される
type Cart struct {
	Items    []CartItem `json:"items"`
	Subtotal float64    `json:"subtotal"`
}

// Message 会話の1メッセージ
type Message struct {
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	Products  []Product `json:"products,omitempty"`
}

// LoyaltyInfo ロイヤルティ情報のスナップショット
type LoyaltyInfo struct {
	Tier             Tier     `json:"tier"`
	Points           int      `json:"points"`
	LifetimeSpend    float64  `json:"lifetime_spend"`
	AvailableCoupons []string `json:"available_coupons"`
	NextTier         string   `json:"next_tier,omitempty"`
	PointsToNextTier int      `json:"points_to_next_tier,omitempty"`
}

// Coupon クーポン詳細。Discountは "10%" 形式
type Coupon struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Discount    string  `json:"discount"`
	MinPurchase float64 `json:"min_purchase"`
	Expires     string  `json:"expires"`
}

// TierDiscount ランク割引
type TierDiscount struct {
	Percentage float64 `json:"percentage"`
	Amount     float64 `json:"amount"`
	Tier       Tier    `json:"tier"`
}

// CouponDiscount クーポン割引
type CouponDiscount struct {
	Applied bool    `json:"applied"`
	Code    string  `json:"code,omitempty"`
	Amount  float64 `json:"amount"`
	Message string  `json:"message"`
}

// PricingBreakdown チェックアウト画面用の価格内訳（プレビュー）
type PricingBreakdown struct {
	Subtotal       float64        `json:"subtotal"`
	TierDiscount   TierDiscount   `json:"tier_discount"`
	CouponDiscount CouponDiscount `json:"coupon_discount"`
	TotalDiscount  float64        `json:"total_discount"`
	FinalAmount    float64        `json:"final_amount"`
	PointsToEarn   int            `json:"points_to_earn"`
	Savings        float64        `json:"savings"`
}

// PaymentMethodInfo 保存済み決済手段
type PaymentMethodInfo struct {
	Type    string  `json:"type"`
	ID      string  `json:"id"`
	Display string  `json:"display"`
	Icon    string  `json:"icon"`
	Saved   bool    `json:"saved"`
	Last4   string  `json:"last4,omitempty"`
	Brand   string  `json:"brand,omitempty"`
	Balance float64 `json:"balance,omitempty"`
	Limit   float64 `json:"limit,omitempty"`
}

// ChatRequest /api/chat へのリクエスト
type ChatRequest struct {
	Message    string `json:"message"`
	SessionID  string `json:"session_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

// ChatResponse /api/chat のレスポンス（WebSocketでも同じ形）
type ChatResponse struct {
	Success            bool                `json:"success"`
	SessionID          string              `json:"session_id"`
	Message            string              `json:"message"`
	Products           []Product           `json:"products,omitempty"`
	Pricing            *PricingBreakdown   `json:"pricing,omitempty"`
	FulfillmentOptions []FulfillmentOption `json:"fulfillment_options,omitempty"`
	PaymentMethods     []PaymentMethodInfo `json:"payment_methods,omitempty"`
	LoyaltyInfo        *LoyaltyInfo        `json:"loyalty_info,omitempty"`
	Intent             string              `json:"intent,omitempty"`
	Timestamp          string              `json:"timestamp"`
	Error              string              `json:"error,omitempty"`
}

// Validate 会話に追加する前にエージェント応答を検証
func (r *ChatResponse) Validate() error {
	if r.Error != "" {
		return fmt.Errorf("agent error: %s", r.Error)
	}
	if strings.TrimSpace(r.Message) == "" && len(r.Products) == 0 {
		return fmt.Errorf("agent reply has neither message nor products")
	}
	return validateProducts(r.Products)
}

// ProductListResponse 商品一覧・検索レスポンス
type ProductListResponse struct {
	Success  bool      `json:"success"`
	Products []Product `json:"products"`
	Count    int       `json:"count"`
}

// Validate 一覧内の全商品を検証
func (r *ProductListResponse) Validate() error {
	if !r.Success {
		return fmt.Errorf("product listing was not successful")
	}
	return validateProducts(r.Products)
}

// ProductResponse 商品詳細レスポンス
type ProductResponse struct {
	Success bool     `json:"success"`
	Product *Product `json:"product"`
}

// Validate 商品詳細を検証
func (r *ProductResponse) Validate() error {
	if !r.Success || r.Product == nil {
		return fmt.Errorf("product not returned")
	}
	return r.Product.Validate()
}

// CartResponse カートAPIのレスポンス
type CartResponse struct {
	Success bool `json:"success"`
	Cart    Cart `json:"cart"`
}

// Validate サーバー側カートの各行を検証
func (r *CartResponse) Validate() error {
	if !r.Success {
		return fmt.Errorf("cart operation was not successful")
	}
	for _, item := range r.Cart.Items {
		if item.ProductID == "" || item.Quantity < 1 {
			return fmt.Errorf("invalid cart line %+v", item)
		}
	}
	return nil
}

// CheckoutRequest /api/checkout へのリクエスト
type CheckoutRequest struct {
	SessionID         string `json:"session_id"`
	CustomerID        string `json:"customer_id"`
	PaymentMethod     string `json:"payment_method"`
	FulfillmentOption string `json:"fulfillment_option"`
	DeliveryAddress   string `json:"delivery_address,omitempty"`
	StoreLocation     string `json:"store_location,omitempty"`
}

// FulfillmentDetails 注文の受け取り詳細
type FulfillmentDetails struct {
	Type              string `json:"type"`
	DeliveryAddress   string `json:"delivery_address,omitempty"`
	StoreLocation     string `json:"store_location,omitempty"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
}

// OrderConfirmation バックエンドが確定した注文
type OrderConfirmation struct {
	OrderID            string             `json:"order_id"`
	TotalAmount        float64            `json:"total_amount"`
	PaymentStatus      string             `json:"payment_status"`
	TransactionID      string             `json:"transaction_id"`
	FulfillmentDetails FulfillmentDetails `json:"fulfillment_details"`
	EstimatedDelivery  string             `json:"estimated_delivery,omitempty"`
	Timestamp          string             `json:"timestamp"`
}

// CheckoutResponse /api/checkout のレスポンス
type CheckoutResponse struct {
	Success bool               `json:"success"`
	Order   *OrderConfirmation `json:"order"`
}

// Validate 注文IDつきの確定注文であることを確認
func (r *CheckoutResponse) Validate() error {
	if !r.Success || r.Order == nil {
		return fmt.Errorf("order was not created")
	}
	if r.Order.OrderID == "" {
		return fmt.Errorf("order confirmation has no order id")
	}
	return nil
}

// LoyaltyResponse /api/loyalty/{customer_id} のレスポンス
type LoyaltyResponse struct {
	Success bool        `json:"success"`
	Loyalty LoyaltyInfo `json:"loyalty"`
	Coupons []Coupon    `json:"coupons"`
}

// Validate ランクとポイントを検証
func (r *LoyaltyResponse) Validate() error {
	if !r.Success {
		return fmt.Errorf("loyalty lookup was not successful")
	}
	switch r.Loyalty.Tier {
	case TierSilver, TierGold, TierPlatinum:
	default:
		return fmt.Errorf("unknown loyalty tier %q", r.Loyalty.Tier)
	}
	if r.Loyalty.Points < 0 {
		return fmt.Errorf("negative loyalty points %d", r.Loyalty.Points)
	}
	return nil
}

// RecommendationsResponse おすすめ商品レスポンス
type RecommendationsResponse struct {
	Success         bool      `json:"success"`
	Recommendations []Product `json:"recommendations"`
}

// Validate おすすめ商品を検証
func (r *RecommendationsResponse) Validate() error {
	if !r.Success {
		return fmt.Errorf("recommendations were not successful")
	}
	return validateProducts(r.Recommendations)
}

// InventoryResponse 在庫照会レスポンス
type InventoryResponse struct {
	Success   bool                `json:"success"`
	ProductID string              `json:"product_id"`
	Stock     StockInfo           `json:"stock"`
	Options   []FulfillmentOption `json:"fulfillment_options,omitempty"`
}

// FeedbackRequest 注文フィードバック
type FeedbackRequest struct {
	OrderID      string `json:"order_id"`
	CustomerID   string `json:"customer_id"`
	Rating       int    `json:"rating"`
	FeedbackText string `json:"feedback_text,omitempty"`
}

// FeedbackResponse フィードバック送信結果
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SessionData バックエンド側のセッション
type SessionData struct {
	SessionID           string         `json:"session_id"`
	CustomerID          string         `json:"customer_id"`
	ConversationHistory []Message      `json:"conversation_history"`
	ActiveCart          Cart           `json:"active_cart"`
	Context             map[string]any `json:"context,omitempty"`
	LastUpdated         string         `json:"last_updated"`
}

// SessionResponse /api/session/{id} のレスポンス
type SessionResponse struct {
	Success bool        `json:"success"`
	Session SessionData `json:"session"`
}

// ProductFilter 商品一覧の絞り込み条件
type ProductFilter struct {
	Category string
	Budget   float64
	Sort     string
	Limit    int
}

func validateProducts(products []Product) error {
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate product id %s in result set", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
