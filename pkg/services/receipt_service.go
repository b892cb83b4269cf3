package services

import (
	"bytes"
	"fmt"

	"storefront-client/pkg/format"

	"github.com/xuri/excelize/v2"
)

const receiptSheet = "Receipt"

// ReceiptService は確定した注文をExcelの領収書として書き出します。
type ReceiptService struct{}

// NewReceiptService は新しいReceiptServiceを生成します。
func NewReceiptService() *ReceiptService {
	return &ReceiptService{}
}

// FileName はダウンロード時のファイル名です。
func (s *ReceiptService) FileName(order *Order) string {
	return fmt.Sprintf("receipt_%s.xlsx", order.Confirmation.OrderID)
}

// Build は注文明細・価格内訳・受け取り情報を1シートにまとめたXLSXを返します。
func (s *ReceiptService) Build(order *Order) (*bytes.Buffer, error) {
	if order == nil {
		return nil, fmt.Errorf("注文がありません")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), receiptSheet); err != nil {
		return nil, fmt.Errorf("シート名の設定に失敗: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("スタイルの作成に失敗: %w", err)
	}

	w := &sheetWriter{f: f, sheet: receiptSheet, row: 1, bold: bold}
	conf := order.Confirmation

	w.heading("Order Receipt")
	w.line("Order ID", conf.OrderID)
	w.line("Transaction ID", conf.TransactionID)
	w.line("Payment", order.PaymentMethod, conf.PaymentStatus)
	w.line("Date", format.FormatTimestamp(conf.Timestamp))
	w.blank()

	w.heading("Items")
	w.line("Product ID", "Product", "Size", "Color", "Qty", "Price", "Line Total")
	for _, item := range order.Items {
		w.line(item.ProductID, item.ProductName, item.Size, item.Color, item.Quantity, item.Price, item.LineTotal())
	}
	w.blank()

	p := order.Preview
	w.heading("Pricing")
	w.line("Subtotal", p.Subtotal)
	w.line(fmt.Sprintf("%s discount (%.0f%%)", p.TierDiscount.Tier, p.TierDiscount.Percentage), -p.TierDiscount.Amount)
	if p.CouponDiscount.Applied {
		w.line("Coupon "+p.CouponDiscount.Code, -p.CouponDiscount.Amount)
	}
	w.line("Estimated total", p.FinalAmount)
	w.line("Charged total", conf.TotalAmount)
	w.line("Points to earn", p.PointsToEarn)
	w.blank()

	fd := conf.FulfillmentDetails
	w.heading("Fulfillment")
	w.line("Method", fd.Type)
	if fd.DeliveryAddress != "" {
		w.line("Delivery address", fd.DeliveryAddress)
	}
	if fd.StoreLocation != "" {
		w.line("Store", fd.StoreLocation)
	}
	estimated := conf.EstimatedDelivery
	if estimated == "" {
		estimated = fd.EstimatedDelivery
	}
	if estimated != "" {
		w.line("Estimated delivery", estimated)
	}

	if w.err != nil {
		return nil, fmt.Errorf("領収書の書き込みに失敗: %w", w.err)
	}
	if err := f.SetColWidth(receiptSheet, "A", "B", 24); err != nil {
		return nil, fmt.Errorf("列幅の設定に失敗: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("XLSXの生成に失敗: %w", err)
	}
	return buf, nil
}

// sheetWriter は行単位で書き込み、最初のエラーを保持します。
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	bold  int
	err   error
}

func (w *sheetWriter) line(values ...any) {
	if w.err != nil {
		return
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err == nil {
			err = w.f.SetCellValue(w.sheet, cell, v)
		}
		if err != nil {
			w.err = err
			return
		}
	}
	w.row++
}

func (w *sheetWriter) heading(title string) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		w.err = err
		return
	}
	w.line(title)
	if w.err == nil {
		w.err = w.f.SetCellStyle(w.sheet, cell, cell, w.bold)
	}
}

func (w *sheetWriter) blank() {
	w.row++
}
