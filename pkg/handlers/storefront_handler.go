package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"storefront-client/internal/store"
	"storefront-client/pkg/format"
	"storefront-client/pkg/models"
	"storefront-client/pkg/services"

	"github.com/gin-gonic/gin"
)

// StorefrontHandler は画面の状態取得と、チャット・検索・カート操作のハンドラです。
type StorefrontHandler struct {
	shop *services.ShopService
	now  func() time.Time
}

// NewStorefrontHandler は新しいStorefrontHandlerを生成します。
func NewStorefrontHandler(shop *services.ShopService) *StorefrontHandler {
	return &StorefrontHandler{shop: shop, now: time.Now}
}

// ChatRequest チャット送信のリクエストボディ
type ChatRequest struct {
	Message string `json:"message"`
}

// SearchRequest 検索のリクエストボディ
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// HomeDisplay トップ画面の表示用文字列
type HomeDisplay struct {
	Subtotal      string `json:"subtotal"`
	CartCount     int    `json:"cart_count"`
	TierBadge     string `json:"tier_badge"`
	TierColor     string `json:"tier_color"`
	LastMessageAt string `json:"last_message_at,omitempty"`
}

// CheckoutDefaults チェックアウト画面の初期選択
type CheckoutDefaults struct {
	PaymentMethod     string `json:"payment_method"`
	FulfillmentOption string `json:"fulfillment_option"`
	StoreLocation     string `json:"store_location"`
}

// Home はトップ画面用に状態・カタログ・表示用の整形済み文字列をまとめて返します。
// 注文確認が無い場合のリダイレクト先でもあります。
func (h *StorefrontHandler) Home(c *gin.Context) {
	snap := h.shop.Store().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"state":   snap,
		"catalog": h.shop.Catalog(),
		"display": homeDisplay(snap, h.now()),
		"checkout_defaults": CheckoutDefaults{
			PaymentMethod:     models.DefaultPaymentMethod,
			FulfillmentOption: models.DefaultFulfillmentOption,
			StoreLocation:     models.DefaultStoreLocation,
		},
	})
}

func homeDisplay(snap store.State, now time.Time) HomeDisplay {
	d := HomeDisplay{Subtotal: format.FormatPrice(snap.Cart.Subtotal)}
	for _, item := range snap.Cart.Items {
		d.CartCount += item.Quantity
	}
	tier := string(models.TierSilver)
	if snap.LoyaltyInfo != nil && snap.LoyaltyInfo.Tier != "" {
		tier = string(snap.LoyaltyInfo.Tier)
	}
	d.TierBadge = format.TierBadge(tier)
	d.TierColor = format.TierColor(tier)
	if n := len(snap.Messages); n > 0 {
		if ts, err := time.Parse(time.RFC3339, snap.Messages[n-1].Timestamp); err == nil {
			d.LastMessageAt = format.FormatRelativeTime(ts, now)
		}
	}
	return d
}

// GetState はStoreの現在のスナップショットを返します。
func (h *StorefrontHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.shop.Store().Snapshot())
}

// GetCatalog は画面用のカテゴリ・店舗・決済方法の一覧を返します。
func (h *StorefrontHandler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.shop.Catalog())
}

// Events はStoreの変更をServer-Sent Eventsで配信します。
func (h *StorefrontHandler) Events(c *gin.Context) {
	st := h.shop.Store()
	updates := make(chan store.State, 1)
	unsubscribe := st.Subscribe(func(snap store.State) {
		// 未送信の古いスナップショットは最新で置き換える
		for {
			select {
			case updates <- snap:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("state", st.Snapshot())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap := <-updates:
			c.SSEvent("state", snap)
			return true
		}
	})
}

// Chat はユーザーの発言を送信し、更新後の会話を返します。
// バックエンドの失敗は会話中のエラーメッセージになり、5xxにはなりません。
func (h *StorefrontHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}
	if err := h.shop.SendMessage(c.Request.Context(), req.Message); err != nil {
		respondError(c, err)
		return
	}
	snap := h.shop.Store().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"messages":  snap.Messages,
		"products":  snap.Products,
		"is_typing": snap.IsTyping,
	})
}

// Search はキーワード検索を行います。
func (h *StorefrontHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}
	products, err := h.shop.Search(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "products": products, "count": len(products)})
}

// ListProducts はカテゴリ・予算・並び順で絞り込んだ商品一覧を返します。
func (h *StorefrontHandler) ListProducts(c *gin.Context) {
	filter := models.ProductFilter{
		Category: c.Query("category"),
		Sort:     c.Query("sort"),
		Limit:    queryInt(c, "limit", 0),
	}
	if raw := c.Query("budget"); raw != "" {
		budget, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "budgetは数値で指定してください"})
			return
		}
		filter.Budget = budget
	}
	products, err := h.shop.ListProducts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "products": products, "count": len(products)})
}

// GetProduct は商品詳細（在庫付き）を返し、選択状態にします。
func (h *StorefrontHandler) GetProduct(c *gin.Context) {
	product, err := h.shop.ShowProduct(c.Request.Context(), c.Param("productId"), c.Query("location"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "product": product})
}

// AddToCart はカートに商品を追加し、関連商品を返します。
func (h *StorefrontHandler) AddToCart(c *gin.Context) {
	var in services.AddToCartInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}
	recs, err := h.shop.AddToCart(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	if recs == nil {
		recs = []models.Product{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"cart":            h.shop.Store().Snapshot().Cart,
		"recommendations": recs,
	})
}

// RemoveFromCart はカートから商品を削除します。存在しなくてもエラーにしません。
func (h *StorefrontHandler) RemoveFromCart(c *gin.Context) {
	h.shop.RemoveFromCart(c.Request.Context(), c.Param("productId"))
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": h.shop.Store().Snapshot().Cart})
}

// ClearCart はローカルのカートを空にします。
func (h *StorefrontHandler) ClearCart(c *gin.Context) {
	h.shop.Store().ClearCart()
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": h.shop.Store().Snapshot().Cart})
}

// SyncCart はバックエンドのカートを取り込みます。
func (h *StorefrontHandler) SyncCart(c *gin.Context) {
	cart, err := h.shop.SyncCart(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": cart})
}

// ToggleChat チャットパネルの開閉
func (h *StorefrontHandler) ToggleChat(c *gin.Context) {
	h.shop.Store().ToggleChatPanel()
	c.JSON(http.StatusOK, gin.H{"success": true, "is_chat_open": h.shop.Store().Snapshot().IsChatOpen})
}

// ToggleCart カートパネルの開閉
func (h *StorefrontHandler) ToggleCart(c *gin.Context) {
	h.shop.Store().ToggleCartPanel()
	c.JSON(http.StatusOK, gin.H{"success": true, "is_cart_open": h.shop.Store().Snapshot().IsCartOpen})
}

// GetLoyalty はロイヤルティ情報を取得し直して返します。
func (h *StorefrontHandler) GetLoyalty(c *gin.Context) {
	loyalty, coupons, err := h.shop.LoadLoyalty(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "loyalty": loyalty, "coupons": coupons})
}

// Recommendations は関連商品を返します。product_ids 省略時はカートの商品が基準です。
// type=complete-look でコーディネート提案、type=frequently-bought で一緒に買われている商品。
func (h *StorefrontHandler) Recommendations(c *gin.Context) {
	ctx := c.Request.Context()
	ids := splitIDs(c.Query("product_ids"))

	var (
		recs []models.Product
		err  error
	)
	switch c.DefaultQuery("type", "related") {
	case "related":
		recs, err = h.shop.Recommendations(ctx, ids, queryInt(c, "limit", 0))
	case "complete-look":
		recs, err = h.shop.CompleteTheLook(ctx, ids)
	case "frequently-bought":
		if len(ids) != 1 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "product_idsを1件指定してください"})
			return
		}
		recs, err = h.shop.FrequentlyBought(ctx, ids[0], queryInt(c, "limit", 0))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "不明なtypeです"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "recommendations": recs})
}
