package market

import "github.com/shopspring/decimal"

// SymbolFilters are the venue trading constraints for one symbol.
// StepSize comes from the LOT_SIZE filter and is required; the rest are
// zero when the venue does not publish them.
type SymbolFilters struct {
	Symbol      string          `json:"symbol"`
	StepSize    decimal.Decimal `json:"step_size"`
	MinQty      decimal.Decimal `json:"min_qty"`
	MaxQty      decimal.Decimal `json:"max_qty"`
	TickSize    decimal.Decimal `json:"tick_size"`
	MinNotional decimal.Decimal `json:"min_notional"`
}
