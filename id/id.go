// Package id issues position ids and the venue client order ids derived
// from them.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a position id. Ids from the same millisecond stay
// lexicographically increasing, so journal rows sort in open order.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// Purpose is the role an order plays in a position's lifecycle.
type Purpose string

const (
	PurposeEntry      Purpose = "entry"
	PurposeTakeProfit Purpose = "tp"
	PurposeStopLoss   Purpose = "sl"
	PurposeClose      Purpose = "close"
)

// Label is the name used in logs and journal event details.
func (p Purpose) Label() string {
	switch p {
	case PurposeTakeProfit:
		return "take profit"
	case PurposeStopLoss:
		return "stop loss"
	}
	return string(p)
}

const prefix = "atr"

// ClientOrderID returns the client order id for the order serving purpose
// on positionID, e.g. "atr-tp-01HV...". The venue refuses a second live
// order with the same id, so a duplicated submit cannot double a bracket.
// Binance allows at most 36 characters; a ULID position id always fits.
func ClientOrderID(p Purpose, positionID string) string {
	return prefix + "-" + string(p) + "-" + positionID
}

// ParseClientOrderID splits an id made by ClientOrderID. ok is false for
// ids placed by anything else, such as orders entered by hand on the venue.
func ParseClientOrderID(s string) (p Purpose, positionID string, ok bool) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 || parts[0] != prefix || parts[2] == "" {
		return "", "", false
	}
	switch Purpose(parts[1]) {
	case PurposeEntry, PurposeTakeProfit, PurposeStopLoss, PurposeClose:
		return Purpose(parts[1]), parts[2], true
	}
	return "", "", false
}
