package handlers

import (
	"storefront-client/pkg/backend"
	"storefront-client/pkg/services"

	"github.com/gin-gonic/gin"
)

// Services はルーティングに必要なサービス群です。Realtime は nil でも構いません。
type Services struct {
	Shop       *services.ShopService
	Checkout   *services.CheckoutService
	Receipt    *services.ReceiptService
	Monitoring *services.MonitoringService
	Client     *backend.Client
	Realtime   *services.RealtimeService
}

// RegisterRoutes は画面用APIのルートを登録します。
func RegisterRoutes(r *gin.Engine, svc Services, apiKey string) {
	storefront := NewStorefrontHandler(svc.Shop)
	checkout := NewCheckoutHandler(svc.Checkout, svc.Receipt)
	session := NewSessionHandler(svc.Shop, svc.Checkout, svc.Client, svc.Realtime)
	monitoring := NewMonitoringHandler(svc.Monitoring)

	// ヘルスチェックエンドポイント
	r.GET("/health", session.HealthCheck)

	// トップ画面（注文確認が無い場合のリダイレクト先）
	r.GET("/", storefront.Home)

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(APIKeyAuth(apiKey))
	{
		v1.GET("/state", storefront.GetState)
		v1.GET("/events", storefront.Events)
		v1.GET("/catalog", storefront.GetCatalog)

		v1.POST("/chat", storefront.Chat)
		v1.POST("/search", storefront.Search)
		v1.GET("/products", storefront.ListProducts)
		v1.GET("/products/:productId", storefront.GetProduct)
		v1.GET("/recommendations", storefront.Recommendations)
		v1.GET("/loyalty", storefront.GetLoyalty)

		cart := v1.Group("/cart")
		{
			cart.POST("", storefront.AddToCart)
			cart.DELETE("/:productId", storefront.RemoveFromCart)
			cart.POST("/clear", storefront.ClearCart)
			cart.POST("/sync", storefront.SyncCart)
		}

		ui := v1.Group("/ui")
		{
			ui.POST("/chat/toggle", storefront.ToggleChat)
			ui.POST("/cart/toggle", storefront.ToggleCart)
		}

		v1.GET("/session", session.GetBackendSession)
		v1.POST("/session/reset", session.ResetSession)

		co := v1.Group("/checkout")
		{
			co.GET("/preview", checkout.Preview)
			co.POST("/payment", checkout.VerifyPayment)
			co.POST("", checkout.Checkout)
		}

		confirmation := v1.Group("/confirmation")
		{
			confirmation.GET("", checkout.Confirmation)
			confirmation.GET("/receipt.xlsx", checkout.Receipt)
			confirmation.POST("/feedback", checkout.Feedback)
		}

		// モニタリングAPI
		v1.GET("/monitoring/logs", monitoring.GetLogs)
	}
}
