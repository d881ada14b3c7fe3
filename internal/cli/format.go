package cli

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatUSD formats an amount in dollars with thousands separators.
func FormatUSD(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")

	result := "$" + groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl float64) string {
	formatted := FormatUSD(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatCompact formats a dollar amount in K/M/B units.
func FormatCompact(amount float64) string {
	abs := math.Abs(amount)
	sign := ""
	if amount < 0 {
		sign = "-"
	}

	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%s$%.2fB", sign, abs/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%s$%.2fM", sign, abs/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%s$%.2fK", sign, abs/1e3)
	}
	return FormatUSD(amount)
}

// FormatQuantity formats a contract or coin quantity.
func FormatQuantity(qty float64) string {
	return fmt.Sprintf("%.4f", qty)
}

// FormatDelta formats a delta in underlying units with sign.
func FormatDelta(delta float64) string {
	return fmt.Sprintf("%+.4f", delta)
}

// FormatPrice formats a price with appropriate decimal places.
func FormatPrice(price float64) string {
	if math.Abs(price) >= 10 {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.4f", price)
}

// FormatVol formats a volatility fraction as a percentage.
func FormatVol(sigma float64) string {
	return fmt.Sprintf("%.2f%%", sigma*100)
}

// FormatDate formats an expiry date in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format("02-Jan-2006")
}

// FormatDateTime formats a timestamp in UTC.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("02-Jan-2006 15:04:05 MST")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatBidAsk formats bid/ask spread.
func FormatBidAsk(bid, ask float64) string {
	spread := ask - bid
	if bid <= 0 {
		return fmt.Sprintf("Bid: %.2f  Ask: %.2f", bid, ask)
	}
	return fmt.Sprintf("Bid: %.2f  Ask: %.2f  Spread: %.2f (%.2f%%)", bid, ask, spread, spread/bid*100)
}

// FormatBound formats a strategy profit or loss bound, which may be unlimited.
func FormatBound(v float64) string {
	if math.IsInf(v, 0) {
		return "Unlimited"
	}
	return FormatUSD(v)
}
