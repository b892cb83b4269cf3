package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"storefront-client/internal/store"
	"storefront-client/pkg/backend"
	"storefront-client/pkg/services"

	"github.com/gin-gonic/gin"
)

// respondError はエラーの種類に応じてステータスコードとエラー本文を返します。
// 入力エラーは400、バックエンドの404は404、それ以外のバックエンド失敗は502です。
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var fields services.ValidationErrors
	if errors.As(err, &fields) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "入力内容に誤りがあります", "fields": fields})
		return
	}
	if errors.Is(err, services.ErrValidation) || errors.Is(err, store.ErrInvalidArgument) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		if apiErr.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error(), "detail": apiErr.Detail})
		return
	}

	log.Printf("❌ バックエンド呼び出しに失敗: %v", err)
	c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
}

// queryInt は整数のクエリパラメータを読みます。不正な値は既定値になります。
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// splitIDs はカンマ区切りのIDを分割します。
func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// APIKeyAuth はX-API-KEYヘッダーを検証するミドルウェアです。キー未設定なら素通しします。
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || apiKey == "default_secret_key" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
