// Package pricing はチェックアウト画面用の価格プレビューを計算します。
// 確定金額はバックエンドの注文確認が正であり、ここでの計算は表示用の見積もりです。
package pricing

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"storefront-client/pkg/models"
)

// MaxCouponDiscount クーポン割引の上限額（ランクに関係なく一律）
const MaxCouponDiscount = 5000.0

const pointsRate = 0.01

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)

// TierDiscountRate ランク割引率
func TierDiscountRate(tier models.Tier) float64 {
	switch tier {
	case models.TierPlatinum:
		return 0.20
	case models.TierGold:
		return 0.15
	default:
		return 0.10
	}
}

// PointsMultiplier ランクごとのポイント倍率
func PointsMultiplier(tier models.Tier) float64 {
	switch tier {
	case models.TierPlatinum:
		return 2.0
	case models.TierGold:
		return 1.5
	default:
		return 1.0
	}
}

// CouponPercent はクーポンの割引率（0.10 形式）を返します。
// discount欄 ("10%") を優先し、空なら説明文中の最初の "N%" を使います。
func CouponPercent(c models.Coupon) (float64, bool) {
	for _, src := range []string{c.Discount, c.Description} {
		m := percentPattern.FindStringSubmatch(strings.TrimSpace(src))
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return v / 100, true
	}
	return 0, false
}

// FindCoupon はコードに一致するクーポンを探します。
func FindCoupon(code string, coupons []models.Coupon) (models.Coupon, bool) {
	for _, c := range coupons {
		if c.Code == code {
			return c, true
		}
	}
	return models.Coupon{}, false
}

// Compute は小計・ランク・選択クーポンから価格内訳を算出します。
// 同じ入力には常に同じ結果を返し、エラーになる入力はありません。
func Compute(subtotal float64, tier models.Tier, couponCode string, coupons []models.Coupon) models.PricingBreakdown {
	tierRate := TierDiscountRate(tier)
	tierAmount := subtotal * tierRate
	afterTier := subtotal - tierAmount

	coupon := models.CouponDiscount{}
	if couponCode != "" {
		coupon.Code = couponCode
		c, found := FindCoupon(couponCode, coupons)
		percent, parsed := CouponPercent(c)
		switch {
		case !found:
			coupon.Message = "Invalid coupon code"
		case !parsed:
			coupon.Message = "Coupon has no readable discount"
		default:
			coupon.Applied = true
			coupon.Amount = math.Min(afterTier*percent, MaxCouponDiscount)
			coupon.Message = "Coupon applied"
		}
	}

	finalAmount := afterTier - coupon.Amount
	totalDiscount := tierAmount + coupon.Amount

	return models.PricingBreakdown{
		Subtotal: subtotal,
		TierDiscount: models.TierDiscount{
			Percentage: tierRate * 100,
			Amount:     tierAmount,
			Tier:       displayTier(tier),
		},
		CouponDiscount: coupon,
		TotalDiscount:  totalDiscount,
		FinalAmount:    finalAmount,
		PointsToEarn:   int(math.Floor(finalAmount * pointsRate * PointsMultiplier(tier))),
		Savings:        totalDiscount,
	}
}

// Drift はプレビューと確定金額の差を返します。差はエラーではなく表示上のずれとして扱います。
func Drift(preview models.PricingBreakdown, confirmedTotal float64) float64 {
	return confirmedTotal - preview.FinalAmount
}

func displayTier(tier models.Tier) models.Tier {
	if tier == "" {
		return models.TierSilver
	}
	return tier
}
