package handlers

import (
	"context"
	"net/http"
	"time"

	"storefront-client/pkg/backend"
	"storefront-client/pkg/services"

	"github.com/gin-gonic/gin"
)

// SessionHandler はセッションのリセットとヘルスチェックを扱います。
type SessionHandler struct {
	shop     *services.ShopService
	checkout *services.CheckoutService
	client   *backend.Client
	realtime *services.RealtimeService
}

// NewSessionHandler は新しいSessionHandlerを生成します。realtime は nil でも構いません。
func NewSessionHandler(shop *services.ShopService, checkout *services.CheckoutService, client *backend.Client, realtime *services.RealtimeService) *SessionHandler {
	return &SessionHandler{shop: shop, checkout: checkout, client: client, realtime: realtime}
}

// ResetSession は新しいセッションを開始します。顧客IDは維持されます。
func (h *SessionHandler) ResetSession(c *gin.Context) {
	h.shop.ResetSession()
	h.checkout.Reset()
	st := h.shop.Store()
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"session_id":  st.SessionID(),
		"customer_id": st.CustomerID(),
	})
}

// GetBackendSession はバックエンドに保存されているセッションを返します。
func (h *SessionHandler) GetBackendSession(c *gin.Context) {
	session, err := h.shop.BackendSession(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": session})
}

// HealthCheck は外部のヘルスチェッカーに応答します。バックエンドの疎通も確認します。
func (h *SessionHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	backendStatus := "ok"
	if err := h.client.Health(ctx); err != nil {
		backendStatus = "unreachable"
	}
	realtimeStatus := "disabled"
	if h.realtime != nil {
		realtimeStatus = "disconnected"
		if h.realtime.Connected() {
			realtimeStatus = "connected"
		}
	}

	// バックエンドが落ちていても画面自体は動くので200を返す
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"backend":  backendStatus,
		"realtime": realtimeStatus,
	})
}
