package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	positionsHeader = []string{"position_id", "symbol", "side", "size", "entry_price", "exit_price", "take_profit", "stop_loss", "open_time", "close_time", "realized_pl", "reason", "unprotected"}
	eventsHeader    = []string{"time", "symbol", "position_id", "type", "detail"}
)

type CSV struct {
	mu        sync.Mutex
	positions *csv.Writer
	events    *csv.Writer
	pf, ef    *os.File
}

var _ Journal = (*CSV)(nil)

func NewCSV(positionsPath, eventsPath string) (*CSV, error) {
	pf, err := os.Create(positionsPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(eventsPath)
	if err != nil {
		pf.Close()
		return nil, err
	}

	pw := csv.NewWriter(pf)
	ew := csv.NewWriter(ef)

	if err := pw.Write(positionsHeader); err != nil {
		return nil, err
	}
	if err := ew.Write(eventsHeader); err != nil {
		return nil, err
	}

	pw.Flush()
	if err := pw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSV{positions: pw, events: ew, pf: pf, ef: ef}, nil
}

func (j *CSV) RecordPosition(p PositionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.positions.Write([]string{
		p.PositionID,
		p.Symbol,
		p.Side,
		p.Size.String(),
		p.EntryPrice.String(),
		p.ExitPrice.String(),
		p.TakeProfit.String(),
		p.StopLoss.String(),
		p.OpenTime.Format(time.RFC3339),
		p.CloseTime.Format(time.RFC3339),
		p.RealizedPL.String(),
		p.Reason,
		strconv.FormatBool(p.Unprotected),
	})
	if err != nil {
		return err
	}
	j.positions.Flush()
	return j.positions.Error()
}

func (j *CSV) RecordEvent(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.events.Write([]string{
		e.Time.Format(time.RFC3339),
		e.Symbol,
		e.PositionID,
		string(e.Type),
		e.Detail,
	})
	if err != nil {
		return err
	}
	j.events.Flush()
	return j.events.Error()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.positions.Flush()
	if err := j.positions.Error(); err != nil {
		return err
	}
	j.events.Flush()
	if err := j.events.Error(); err != nil {
		return err
	}

	if err := j.pf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}
