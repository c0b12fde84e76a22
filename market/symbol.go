package market

import (
	"fmt"
	"strings"
)

// NormalizeSymbol upper-cases and validates a futures symbol like "BTCUSDT".
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if len(sym) < 5 || len(sym) > 20 {
		return "", fmt.Errorf("invalid symbol %q", s)
	}
	for _, r := range sym {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("invalid symbol %q", s)
		}
	}
	return sym, nil
}
