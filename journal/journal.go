// Package journal records the position lifecycle as an append-only audit
// trail. Nothing in the trading core reads it back.
package journal

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PositionRecord is a closed position.
type PositionRecord struct {
	PositionID  string
	Symbol      string
	Side        string
	Size        decimal.Decimal
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	TakeProfit  decimal.Decimal
	StopLoss    decimal.Decimal
	OpenTime    time.Time
	CloseTime   time.Time
	RealizedPL  decimal.Decimal
	Reason      string
	Unprotected bool
}

type EventType string

const (
	EventEntryFilled      EventType = "ENTRY_FILLED"
	EventEntryFailed      EventType = "ENTRY_FAILED"
	EventEntryUnconfirmed EventType = "ENTRY_UNCONFIRMED"
	EventBracketPlaced    EventType = "BRACKET_PLACED"
	EventBracketFailed    EventType = "BRACKET_FAILED"
	EventClosed           EventType = "CLOSED"
)

// Event is one lifecycle transition.
type Event struct {
	Time       time.Time
	Symbol     string
	PositionID string
	Type       EventType
	Detail     string
}

type Journal interface {
	RecordPosition(PositionRecord) error
	RecordEvent(Event) error
	Close() error
}

// Discard drops everything.
type Discard struct{}

func (Discard) RecordPosition(PositionRecord) error { return nil }
func (Discard) RecordEvent(Event) error             { return nil }
func (Discard) Close() error                        { return nil }

// Memory keeps records in process. Useful for tests and dry runs.
type Memory struct {
	mu        sync.Mutex
	positions []PositionRecord
	events    []Event
}

func (m *Memory) RecordPosition(r PositionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, r)
	return nil
}

func (m *Memory) RecordEvent(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Positions() []PositionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PositionRecord(nil), m.positions...)
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// EventTypes lists the recorded event types in order.
func (m *Memory) EventTypes() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}
