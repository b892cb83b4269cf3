package format

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatPrice(t *testing.T) {
	testCases := []struct {
		amount   float64
		expected string
	}{
		{0, "₹0"},
		{999, "₹999"},
		{4000, "₹4,000"},
		{123456, "₹1,23,456"},
		{12345678, "₹1,23,45,678"},
		{1499.6, "₹1,500"},
		{-2500, "-₹2,500"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, FormatPrice(tc.amount), "FormatPrice(%v)", tc.amount)
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		then     time.Time
		expected string
	}{
		{now.Add(-30 * time.Second), "just now"},
		{now.Add(-1 * time.Minute), "1 minute ago"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-1 * time.Hour), "1 hour ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-24 * time.Hour), "1 day ago"},
		{now.Add(-72 * time.Hour), "3 days ago"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, FormatRelativeTime(tc.then, now))
	}
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2026, 10, 17, 15, 4, 0, 0, time.UTC)
	assert.Equal(t, "17 Oct 2026, 3:04 pm", FormatDate(ts))
	assert.Equal(t, "17 Oct 2026, 3:04 pm", FormatTimestamp("2026-10-17T15:04:00Z"))
	assert.Equal(t, "17 Oct 2026, 3:04 pm", FormatTimestamp("2026-10-17T15:04:00.123456"))
	assert.Equal(t, "not-a-date", FormatTimestamp("not-a-date"))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 10))
	assert.Equal(t, "Denim...", TruncateText("Denim Jacket", 5))
	assert.Equal(t, "ジャケ...", TruncateText("ジャケット", 3))
	assert.Equal(t, "...", TruncateText("Denim Jacket", 0))
	assert.NotPanics(t, func() {
		assert.Equal(t, "...", TruncateText("Denim Jacket", -3))
	})
	assert.Equal(t, "", TruncateText("", -1))
}

func TestNewSessionID(t *testing.T) {
	now := time.UnixMilli(1760000000000)
	a := NewSessionID(now)
	b := NewSessionID(now)

	assert.True(t, strings.HasPrefix(a, "session_1760000000000_"))
	assert.Len(t, strings.TrimPrefix(a, "session_1760000000000_"), 9)
	assert.NotEqual(t, a, b, "session ids must differ within one process")
}

func TestNewCustomerID(t *testing.T) {
	id := NewCustomerID(time.UnixMilli(1760000000000))

	assert.True(t, strings.HasPrefix(id, "C1760000000000"))
	suffix := strings.TrimPrefix(id, "C1760000000000")
	assert.Len(t, suffix, 6)
	assert.Equal(t, strings.ToUpper(suffix), suffix)
}

func TestTierHelpers(t *testing.T) {
	assert.Equal(t, "purple", TierColor("Platinum"))
	assert.Equal(t, "yellow", TierColor("Gold"))
	assert.Equal(t, "gray", TierColor("Silver"))
	assert.Equal(t, "gray", TierColor("Bronze"))
	assert.Equal(t, "Gold Member", TierBadge("Gold"))
	assert.Equal(t, "Member", TierBadge(""))
}
