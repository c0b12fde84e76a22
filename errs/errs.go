// Package errs defines the error kinds surfaced by the trading core.
//
// Every error that leaves the core carries a Kind so callers (the HTTP layer,
// the CLI) can react to it without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags an error with its place in the taxonomy.
type Kind string

const (
	KindUnknown             Kind = "UNKNOWN"
	KindInput               Kind = "INPUT"
	KindInsufficientData    Kind = "INSUFFICIENT_DATA"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindVenue               Kind = "VENUE"
	KindStateConflict       Kind = "STATE_CONFLICT"
	KindConfig              Kind = "CONFIG"
)

// Error is a structured core error.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "binance.SubmitOrder"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, errs.Venue) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	Input               = &Error{Kind: KindInput}
	InsufficientData    = &Error{Kind: KindInsufficientData}
	InsufficientBalance = &Error{Kind: KindInsufficientBalance}
	Venue               = &Error{Kind: KindVenue}
	StateConflict       = &Error{Kind: KindStateConflict}
	Config              = &Error{Kind: KindConfig}
)

// E builds an Error of the given kind.
func E(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Ef builds an Error with a formatted message.
func Ef(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. An err that already carries a Kind keeps it.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
