package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	config "storefront-client/configs"
	"storefront-client/internal/pricing"
	"storefront-client/pkg/backend"
	"storefront-client/pkg/models"
)

// ValidationErrors はフィールドごとの入力エラーです。errors.Is(err, ErrValidation) が成立します。
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error {
	return ErrValidation
}

// PaymentDetails は決済フォームの入力です。
type PaymentDetails struct {
	Method         string `json:"method"`
	CardNumber     string `json:"card_number,omitempty"`
	CardName       string `json:"card_name,omitempty"`
	ExpiryDate     string `json:"expiry_date,omitempty"`
	CVV            string `json:"cvv,omitempty"`
	UPIID          string `json:"upi_id,omitempty"`
	WalletProvider string `json:"wallet_provider,omitempty"`
}

// VerifiedPayment は検証済みの決済手段（カード番号は下4桁のみ保持）
type VerifiedPayment struct {
	Method         string `json:"method"`
	Last4          string `json:"last4,omitempty"`
	CardName       string `json:"card_name,omitempty"`
	UPIID          string `json:"upi_id,omitempty"`
	WalletProvider string `json:"wallet_provider,omitempty"`
}

// CheckoutForm はチェックアウト画面の送信内容です。
type CheckoutForm struct {
	PaymentMethod     string `json:"payment_method"`
	FulfillmentOption string `json:"fulfillment_option"`
	DeliveryAddress   string `json:"delivery_address"`
	StoreLocation     string `json:"store_location"`
	CouponCode        string `json:"coupon_code"`
}

// Order は確定した注文と、確定時点のカート・価格プレビューです。
type Order struct {
	Confirmation  models.OrderConfirmation `json:"order"`
	Items         []models.CartItem        `json:"items"`
	Preview       models.PricingBreakdown  `json:"pricing_preview"`
	PaymentMethod string                   `json:"payment_method"`
	Drift         float64                  `json:"drift"`
	CustomerID    string                   `json:"customer_id"`
}

// CheckoutService は価格プレビュー・決済検証・注文確定を扱います。
type CheckoutService struct {
	shop    *ShopService
	client  *backend.Client
	catalog *config.StorefrontCatalog
	now     func() time.Time

	mu        sync.Mutex
	verified  *VerifiedPayment
	lastOrder *Order
}

// NewCheckoutService は新しいCheckoutServiceを生成します。
func NewCheckoutService(shop *ShopService, client *backend.Client) *CheckoutService {
	return &CheckoutService{
		shop:    shop,
		client:  client,
		catalog: shop.Catalog(),
		now:     time.Now,
	}
}

// Preview は現在のカート・会員ランク・クーポンから価格内訳を再計算します。
func (s *CheckoutService) Preview(couponCode string) models.PricingBreakdown {
	snap := s.shop.Store().Snapshot()
	var tier models.Tier
	if snap.LoyaltyInfo != nil {
		tier = snap.LoyaltyInfo.Tier
	}
	return pricing.Compute(snap.Cart.Subtotal, tier, strings.TrimSpace(couponCode), s.shop.Coupons())
}

// ValidatePayment は決済入力を検証し、成功すれば検証済みとして保持します。
func (s *CheckoutService) ValidatePayment(details PaymentDetails) (*VerifiedPayment, error) {
	errs := ValidationErrors{}
	verified := &VerifiedPayment{Method: details.Method}

	switch details.Method {
	case models.PaymentCard:
		number := strings.ReplaceAll(details.CardNumber, " ", "")
		if len(number) != 16 || !isDigits(number) {
			errs["card_number"] = "Please enter a valid 16-digit card number"
		}
		name := strings.TrimSpace(details.CardName)
		if len(name) < 3 {
			errs["card_name"] = "Please enter the cardholder name"
		}
		if msg := s.checkExpiry(details.ExpiryDate); msg != "" {
			errs["expiry_date"] = msg
		}
		if len(details.CVV) < 3 || !isDigits(details.CVV) {
			errs["cvv"] = "Please enter CVV"
		}
		if len(number) >= 4 {
			verified.Last4 = number[len(number)-4:]
		}
		verified.CardName = name
	case models.PaymentUPI:
		if !strings.Contains(details.UPIID, "@") {
			errs["upi_id"] = "Please enter a valid UPI ID (e.g., user@paytm)"
		}
		verified.UPIID = strings.TrimSpace(details.UPIID)
	case models.PaymentWallet:
		if strings.TrimSpace(details.WalletProvider) == "" {
			errs["wallet_provider"] = "Please select a wallet provider"
		}
		verified.WalletProvider = details.WalletProvider
	default:
		errs["method"] = fmt.Sprintf("Unsupported payment method %q", details.Method)
	}

	if len(errs) > 0 {
		return nil, errs
	}

	s.mu.Lock()
	s.verified = verified
	s.mu.Unlock()
	return verified, nil
}

// checkExpiry は MM/YY 形式の有効期限を検証し、エラーメッセージを返します。
func (s *CheckoutService) checkExpiry(expiry string) string {
	if len(expiry) != 5 || expiry[2] != '/' {
		return "Please enter expiry date (MM/YY)"
	}
	month, errM := strconv.Atoi(expiry[:2])
	year, errY := strconv.Atoi(expiry[3:])
	if errM != nil || errY != nil {
		return "Please enter expiry date (MM/YY)"
	}
	if month < 1 || month > 12 {
		return "Invalid month"
	}
	now := s.now()
	currentYear := now.Year() % 100
	currentMonth := int(now.Month())
	if year < currentYear || (year == currentYear && month < currentMonth) {
		return "Card has expired"
	}
	return ""
}

// VerifiedPayment 検証済みの決済手段（未検証なら nil）
func (s *CheckoutService) VerifiedPayment() *VerifiedPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verified == nil {
		return nil
	}
	v := *s.verified
	return &v
}

// Checkout は入力を検証してから注文を確定します。検証エラーではバックエンドを呼びません。
func (s *CheckoutService) Checkout(ctx context.Context, form CheckoutForm) (*Order, error) {
	st := s.shop.Store()
	snap := st.Snapshot()
	errs := ValidationErrors{}

	if len(snap.Cart.Items) == 0 {
		errs["cart"] = "Your cart is empty"
	}

	if form.FulfillmentOption == "" {
		form.FulfillmentOption = models.DefaultFulfillmentOption
	}
	if !s.catalog.HasFulfillmentOption(form.FulfillmentOption) {
		errs["fulfillment_option"] = fmt.Sprintf("Unknown fulfillment option %q", form.FulfillmentOption)
	}
	shipToHome := form.FulfillmentOption == models.FulfillmentShipToHome
	if shipToHome {
		if strings.TrimSpace(form.DeliveryAddress) == "" {
			errs["delivery_address"] = "Please enter delivery address"
		}
	} else {
		if form.StoreLocation == "" {
			form.StoreLocation = models.DefaultStoreLocation
		}
		if !s.catalog.HasStoreLocation(form.StoreLocation) {
			errs["store_location"] = fmt.Sprintf("Unknown store location %q", form.StoreLocation)
		}
	}

	verified := s.VerifiedPayment()
	if form.PaymentMethod == "" && verified != nil {
		form.PaymentMethod = verified.Method
	}
	if verified == nil || verified.Method != form.PaymentMethod {
		errs["payment"] = "Please verify your payment details"
	}

	if len(errs) > 0 {
		return nil, errs
	}

	preview := s.Preview(form.CouponCode)
	req := models.CheckoutRequest{
		SessionID:         st.SessionID(),
		CustomerID:        st.CustomerID(),
		PaymentMethod:     form.PaymentMethod,
		FulfillmentOption: form.FulfillmentOption,
	}
	if shipToHome {
		req.DeliveryAddress = strings.TrimSpace(form.DeliveryAddress)
	} else {
		req.StoreLocation = form.StoreLocation
	}

	log.Printf("🛒 チェックアウト開始: session=%s payment=%s fulfillment=%s", req.SessionID, req.PaymentMethod, req.FulfillmentOption)
	resp, err := s.client.Checkout(ctx, req)
	if err != nil {
		return nil, err
	}

	order := &Order{
		Confirmation:  *resp.Order,
		Items:         slices.Clone(snap.Cart.Items),
		Preview:       preview,
		PaymentMethod: req.PaymentMethod,
		Drift:         pricing.Drift(preview, resp.Order.TotalAmount),
		CustomerID:    req.CustomerID,
	}
	// プレビューとの差異は表示上の誤差として記録のみ
	if math.Abs(order.Drift) > 0.005 {
		log.Printf("ℹ️ 価格プレビューと確定金額に差異: preview=%.2f confirmed=%.2f", preview.FinalAmount, resp.Order.TotalAmount)
	}

	s.mu.Lock()
	s.lastOrder = order
	s.verified = nil
	s.mu.Unlock()

	st.SubtractFromCart(order.Items)
	log.Printf("✅ 注文確定: %s", order.Confirmation.OrderID)
	return order, nil
}

// LastOrder は直近に確定した注文を返します。無ければ false。
func (s *CheckoutService) LastOrder() (*Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastOrder == nil {
		return nil, false
	}
	o := *s.lastOrder
	o.Items = slices.Clone(s.lastOrder.Items)
	return &o, true
}

// SubmitFeedback は直近の注文に評価を送信します。
func (s *CheckoutService) SubmitFeedback(ctx context.Context, rating int, text string) (*models.FeedbackResponse, error) {
	order, ok := s.LastOrder()
	if !ok {
		return nil, fmt.Errorf("%w: no confirmed order", ErrValidation)
	}
	if rating < 1 || rating > 5 {
		return nil, ValidationErrors{"rating": "Rating must be between 1 and 5"}
	}
	return s.client.SubmitFeedback(ctx, models.FeedbackRequest{
		OrderID:      order.Confirmation.OrderID,
		CustomerID:   order.CustomerID,
		Rating:       rating,
		FeedbackText: strings.TrimSpace(text),
	})
}

// Reset は検証済み決済と直近の注文を破棄します（セッションリセット時）。
func (s *CheckoutService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified = nil
	s.lastOrder = nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
