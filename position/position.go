// Package position owns the lifecycle of the single long position the bot
// may hold per symbol: entry, bracket placement, and close.
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/atrbot/journal"
)

type Status string

const (
	StatusFlat     Status = "FLAT"
	StatusEntering Status = "ENTERING"
	StatusOpen     Status = "OPEN"
	StatusClosed   Status = "CLOSED"
)

type CloseReason string

const (
	ReasonTakeProfit CloseReason = "TP_HIT"
	ReasonStopLoss   CloseReason = "SL_HIT"
	ReasonManual     CloseReason = "MANUAL"
)

// ParseCloseReason accepts the reason names used on the wire.
func ParseCloseReason(s string) (CloseReason, bool) {
	switch r := CloseReason(s); r {
	case ReasonTakeProfit, ReasonStopLoss, ReasonManual:
		return r, true
	}
	return "", false
}

const SideLong = "LONG"

// Position is a snapshot. The controller hands out copies; mutating one has
// no effect on controller state.
type Position struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Status      Status          `json:"status"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	Size        decimal.Decimal `json:"size"`
	ATR         decimal.Decimal `json:"atr"`
	TakeProfit  decimal.Decimal `json:"take_profit"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	CloseReason CloseReason     `json:"close_reason,omitempty"`

	// Unprotected is set when the position is open but at least one
	// bracket order is not resting at the venue.
	Unprotected   bool     `json:"unprotected"`
	BracketErrors []string `json:"bracket_errors,omitempty"`

	EntryOrderID      string `json:"entry_order_id,omitempty"`
	TakeProfitOrderID string `json:"take_profit_order_id,omitempty"`
	StopLossOrderID   string `json:"stop_loss_order_id,omitempty"`

	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

func (p Position) clone() Position {
	p.BracketErrors = append([]string(nil), p.BracketErrors...)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		p.ClosedAt = &t
	}
	return p
}

// RealizedPL is the long profit at the exit price.
func (p Position) RealizedPL() decimal.Decimal {
	if p.ExitPrice.IsZero() {
		return decimal.Zero
	}
	return p.ExitPrice.Sub(p.EntryPrice).Mul(p.Size)
}

func (p Position) record() journal.PositionRecord {
	rec := journal.PositionRecord{
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		Size:        p.Size,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   p.ExitPrice,
		TakeProfit:  p.TakeProfit,
		StopLoss:    p.StopLoss,
		OpenTime:    p.OpenedAt,
		RealizedPL:  p.RealizedPL(),
		Reason:      string(p.CloseReason),
		Unprotected: p.Unprotected,
	}
	if p.ClosedAt != nil {
		rec.CloseTime = *p.ClosedAt
	}
	return rec
}

type Action string

const (
	ActionOpenedLong  Action = "OPENED_LONG"
	ActionAlreadyOpen Action = "ALREADY_OPEN"
)

// Entry is the result of CheckAndEnter.
type Entry struct {
	Action       Action          `json:"action"`
	Position     Position        `json:"position"`
	Balance      decimal.Decimal `json:"balance"`
	RiskFraction decimal.Decimal `json:"risk_fraction"`
}
