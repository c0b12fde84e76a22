package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatPositionOrg renders a PositionRecord as an Org-mode block with the
// structured facts in a PROPERTIES drawer.
func FormatPositionOrg(p PositionRecord) string {
	open := p.OpenTime.UTC().Format(time.RFC3339)
	closed := p.CloseTime.UTC().Format(time.RFC3339)

	var b strings.Builder
	fmt.Fprintf(&b, "** Position: %s %s (%s)\n", p.Symbol, p.Side, shortID(p.PositionID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", p.PositionID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", p.Symbol)
	fmt.Fprintf(&b, ":SIZE: %s\n", p.Size)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %s\n", p.EntryPrice)
	fmt.Fprintf(&b, ":EXIT_PRICE: %s\n", p.ExitPrice)
	fmt.Fprintf(&b, ":TAKE_PROFIT: %s\n", p.TakeProfit)
	fmt.Fprintf(&b, ":STOP_LOSS: %s\n", p.StopLoss)
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", open)
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", closed)
	fmt.Fprintf(&b, ":REALIZED_PL: %s\n", p.RealizedPL.StringFixed(2))
	fmt.Fprintf(&b, ":REASON: %s\n", p.Reason)
	if p.Unprotected {
		b.WriteString(":UNPROTECTED: t\n")
	}
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatPositionsOrg renders multiple positions separated by blank lines.
func FormatPositionsOrg(ps []PositionRecord) string {
	var b strings.Builder
	for i, p := range ps {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatPositionOrg(p))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
