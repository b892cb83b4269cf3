package pricing

import (
	"testing"

	"storefront-client/pkg/models"

	"github.com/stretchr/testify/assert"
)

var testCoupons = []models.Coupon{
	{Code: "WELCOME10", Description: "10% off for new customers", Discount: "10%", MinPurchase: 500},
	{Code: "HALF", Description: "half price", Discount: "50%"},
	{Code: "DESC20", Description: "20% birthday special discount"},
	{Code: "BROKEN", Description: "mystery deal"},
}

func TestComputeGoldWithoutCoupon(t *testing.T) {
	p := Compute(10000, models.TierGold, "", testCoupons)

	assert.Equal(t, 10000.0, p.Subtotal)
	assert.Equal(t, 15.0, p.TierDiscount.Percentage)
	assert.Equal(t, 1500.0, p.TierDiscount.Amount)
	assert.Equal(t, models.TierGold, p.TierDiscount.Tier)
	assert.False(t, p.CouponDiscount.Applied)
	assert.Equal(t, 0.0, p.CouponDiscount.Amount)
	assert.Equal(t, 8500.0, p.FinalAmount)
	assert.Equal(t, 127, p.PointsToEarn)
	assert.Equal(t, 1500.0, p.TotalDiscount)
	assert.Equal(t, p.TotalDiscount, p.Savings)
}

func TestComputeTierRates(t *testing.T) {
	testCases := []struct {
		tier         models.Tier
		tierAmount   float64
		finalAmount  float64
		pointsToEarn int
	}{
		{models.TierPlatinum, 2000, 8000, 160},
		{models.TierGold, 1500, 8500, 127},
		{models.TierSilver, 1000, 9000, 90},
		{"Bronze", 1000, 9000, 90},
		{"", 1000, 9000, 90},
	}

	for _, tc := range testCases {
		p := Compute(10000, tc.tier, "", nil)
		assert.InDelta(t, tc.tierAmount, p.TierDiscount.Amount, 1e-9, "tier %q", tc.tier)
		assert.InDelta(t, tc.finalAmount, p.FinalAmount, 1e-9, "tier %q", tc.tier)
		assert.Equal(t, tc.pointsToEarn, p.PointsToEarn, "tier %q", tc.tier)
	}
}

func TestComputeCouponCap(t *testing.T) {
	p := Compute(1000000, models.TierPlatinum, "HALF", testCoupons)

	assert.Equal(t, 200000.0, p.TierDiscount.Amount)
	assert.True(t, p.CouponDiscount.Applied)
	assert.Equal(t, MaxCouponDiscount, p.CouponDiscount.Amount)
	assert.Equal(t, 795000.0, p.FinalAmount)
	assert.Equal(t, 205000.0, p.TotalDiscount)
	assert.Equal(t, p.TotalDiscount, p.Savings)
}

func TestComputeCouponBelowCap(t *testing.T) {
	p := Compute(10000, models.TierGold, "WELCOME10", testCoupons)

	assert.True(t, p.CouponDiscount.Applied)
	assert.Equal(t, "WELCOME10", p.CouponDiscount.Code)
	assert.InDelta(t, 850.0, p.CouponDiscount.Amount, 1e-9)
	assert.InDelta(t, 7650.0, p.FinalAmount, 1e-9)
	assert.Equal(t, 114, p.PointsToEarn)
	assert.Equal(t, "Coupon applied", p.CouponDiscount.Message)
}

func TestComputeCouponFromDescription(t *testing.T) {
	p := Compute(1000, models.TierSilver, "DESC20", testCoupons)

	assert.True(t, p.CouponDiscount.Applied)
	assert.InDelta(t, 180.0, p.CouponDiscount.Amount, 1e-9)
}

func TestComputeUnknownCouponIsZero(t *testing.T) {
	p := Compute(10000, models.TierGold, "NOPE", testCoupons)

	assert.False(t, p.CouponDiscount.Applied)
	assert.Equal(t, 0.0, p.CouponDiscount.Amount)
	assert.Equal(t, "Invalid coupon code", p.CouponDiscount.Message)
	assert.Equal(t, 8500.0, p.FinalAmount)

	p = Compute(10000, models.TierGold, "BROKEN", testCoupons)
	assert.False(t, p.CouponDiscount.Applied)
	assert.Equal(t, 0.0, p.CouponDiscount.Amount)
}

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute(12345.67, models.TierPlatinum, "WELCOME10", testCoupons)
	b := Compute(12345.67, models.TierPlatinum, "WELCOME10", testCoupons)
	assert.Equal(t, a, b)
}

func TestComputeEmptyCart(t *testing.T) {
	p := Compute(0, models.TierGold, "WELCOME10", testCoupons)
	assert.Equal(t, 0.0, p.FinalAmount)
	assert.Equal(t, 0, p.PointsToEarn)
}

func TestCouponPercent(t *testing.T) {
	testCases := []struct {
		coupon   models.Coupon
		expected float64
		ok       bool
	}{
		{models.Coupon{Discount: "5%"}, 0.05, true},
		{models.Coupon{Discount: " 12.5 % "}, 0.125, true},
		{models.Coupon{Description: "30% exclusive member discount"}, 0.30, true},
		{models.Coupon{Discount: "flat", Description: "no number"}, 0, false},
	}

	for _, tc := range testCases {
		got, ok := CouponPercent(tc.coupon)
		assert.Equal(t, tc.ok, ok, "%+v", tc.coupon)
		assert.InDelta(t, tc.expected, got, 1e-12, "%+v", tc.coupon)
	}
}

func TestDrift(t *testing.T) {
	p := Compute(10000, models.TierGold, "", nil)
	assert.Equal(t, 0.0, Drift(p, 8500))
	assert.Equal(t, 100.0, Drift(p, 8600))
}
