package handlers

import (
	"fmt"
	"log"
	"net/http"

	"storefront-client/pkg/services"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CheckoutHandler はチェックアウトと注文確認画面のハンドラです。
type CheckoutHandler struct {
	checkout *services.CheckoutService
	receipt  *services.ReceiptService
}

// NewCheckoutHandler は新しいCheckoutHandlerを生成します。
func NewCheckoutHandler(checkout *services.CheckoutService, receipt *services.ReceiptService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, receipt: receipt}
}

// FeedbackRequest 注文評価のリクエストボディ
type FeedbackRequest struct {
	Rating int    `json:"rating"`
	Text   string `json:"feedback_text"`
}

// Preview はクーポン指定つきの価格内訳を返します（?coupon=CODE）。
func (h *CheckoutHandler) Preview(c *gin.Context) {
	pricing := h.checkout.Preview(c.Query("coupon"))
	c.JSON(http.StatusOK, gin.H{"success": true, "pricing": pricing})
}

// VerifyPayment は決済入力を検証します。エラーはフィールドごとに返します。
func (h *CheckoutHandler) VerifyPayment(c *gin.Context) {
	var details services.PaymentDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}
	verified, err := h.checkout.ValidatePayment(details)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "payment": verified})
}

// Checkout は注文を確定します。
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var form services.CheckoutForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}
	order, err := h.checkout.Checkout(c.Request.Context(), form)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// Confirmation は直近の注文を返します。注文が無ければトップへリダイレクトします。
func (h *CheckoutHandler) Confirmation(c *gin.Context) {
	order, ok := h.checkout.LastOrder()
	if !ok {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// Receipt は直近の注文の領収書をXLSXでダウンロードさせます。
func (h *CheckoutHandler) Receipt(c *gin.Context) {
	order, ok := h.checkout.LastOrder()
	if !ok {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	buf, err := h.receipt.Build(order)
	if err != nil {
		log.Printf("領収書の生成に失敗: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "領収書の生成に失敗しました"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.receipt.FileName(order)))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Feedback は直近の注文への評価を送信します。
func (h *CheckoutHandler) Feedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}
	resp, err := h.checkout.SubmitFeedback(c.Request.Context(), req.Rating, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
