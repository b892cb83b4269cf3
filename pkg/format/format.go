package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// FormatPrice はINR表記（小数なし、インド式の桁区切り）で金額を整形します。
func FormatPrice(amount float64) string {
	rounded := math.Round(amount)
	sign := ""
	if rounded < 0 {
		sign = "-"
		rounded = -rounded
	}
	return sign + "₹" + groupIndian(strconv.FormatFloat(rounded, 'f', 0, 64))
}

// groupIndian 下3桁、以降2桁ごとにカンマを入れる（例: 1,23,45,678）
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}

// FormatDate は "17 Oct 2026, 3:04 pm" の形式で日時を整形します。
func FormatDate(t time.Time) string {
	return t.Format("2 Jan 2006, 3:04 pm")
}

// FormatTimestamp はISO-8601文字列を解析してFormatDateで整形します。解析できない場合は元の文字列を返します。
func FormatTimestamp(ts string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return FormatDate(t)
		}
	}
	return ts
}

// FormatRelativeTime は経過時間を "5 minutes ago" のような表記にします。
func FormatRelativeTime(then, now time.Time) string {
	diff := int(now.Sub(then) / time.Second)
	switch {
	case diff < 60:
		return "just now"
	case diff < 3600:
		return plural(diff/60, "minute")
	case diff < 86400:
		return plural(diff/3600, "hour")
	default:
		return plural(diff/86400, "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// TruncateText はmaxLength文字を超える部分を "..." に置き換えます。
// maxLength が負の場合は0として扱います。
func TruncateText(text string, maxLength int) string {
	maxLength = max(maxLength, 0)
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLength]) + "..."
}

// TierColor ランクの表示色
func TierColor(tier string) string {
	switch tier {
	case "Platinum":
		return "purple"
	case "Gold":
		return "yellow"
	default:
		return "gray"
	}
}

// TierBadge ランクバッジの表示ラベル
func TierBadge(tier string) string {
	switch tier {
	case "Platinum", "Gold", "Silver":
		return tier + " Member"
	default:
		return "Member"
	}
}

// NewSessionID はプロセス内で一意なセッショントークンを生成します。
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), randomToken(9))
}

// NewCustomerID は永続化用の顧客IDを生成します。
func NewCustomerID(now time.Time) string {
	return fmt.Sprintf("C%d%s", now.UnixMilli(), strings.ToUpper(randomToken(6)))
}

func randomToken(n int) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return token[:n]
}
