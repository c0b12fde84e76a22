package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const positionColumns = `position_id, symbol, side, size, entry_price, exit_price, take_profit, stop_loss,
	open_time, close_time, realized_pl, reason, unprotected`

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(s scanner) (PositionRecord, error) {
	var rec PositionRecord
	err := s.Scan(
		&rec.PositionID,
		&rec.Symbol,
		&rec.Side,
		&rec.Size,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.TakeProfit,
		&rec.StopLoss,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.RealizedPL,
		&rec.Reason,
		&rec.Unprotected,
	)
	return rec, err
}

// GetPosition returns a single closed position by ID.
func (j *SQLite) GetPosition(positionID string) (PositionRecord, error) {
	row := j.db.QueryRow(`SELECT `+positionColumns+` FROM positions WHERE position_id = ?`, positionID)

	rec, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PositionRecord{}, fmt.Errorf("position %q not found", positionID)
		}
		return PositionRecord{}, err
	}
	return rec, nil
}

// ListPositionsClosedBetween returns positions whose close_time is within [start, end).
func (j *SQLite) ListPositionsClosedBetween(start, end time.Time) ([]PositionRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+positionColumns+`
		FROM positions
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		rec, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEvents returns the events for a position in time order.
func (j *SQLite) ListEvents(positionID string) ([]Event, error) {
	rows, err := j.db.Query(`
		SELECT time, symbol, position_id, type, detail
		FROM events
		WHERE position_id = ?
		ORDER BY time ASC, rowid ASC`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.Time, &e.Symbol, &e.PositionID, &typ, &e.Detail); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
