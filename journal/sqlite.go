package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordPosition(p PositionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO positions
		(position_id, symbol, side, size, entry_price, exit_price, take_profit, stop_loss,
		 open_time, close_time, realized_pl, reason, unprotected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PositionID, p.Symbol, p.Side, p.Size, p.EntryPrice, p.ExitPrice, p.TakeProfit, p.StopLoss,
		p.OpenTime.UTC(), p.CloseTime.UTC(), p.RealizedPL, p.Reason, p.Unprotected,
	)
	return err
}

func (j *SQLite) RecordEvent(e Event) error {
	_, err := j.db.Exec(`
		INSERT INTO events
		(time, symbol, position_id, type, detail)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Symbol, e.PositionID, string(e.Type), e.Detail,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
