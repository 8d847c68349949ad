package syncer

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Account is one bank account as reported by the remote source. Accounts are
// refreshed wholesale every cycle and upserted by their source-assigned ID.
type Account struct {
	ID            int64
	Name          string
	Number        string
	IBAN          string
	Balance       decimal.Decimal
	ComingBalance decimal.Decimal
	Currency      string
	Disabled      bool
	LastUpdate    time.Time
}

// Transaction is one bank transaction. ID is source-assigned and globally
// unique; LastUpdate is the source-side revision timestamp. Raw keeps the
// original payload so sinks and audits see exactly what the source sent.
type Transaction struct {
	ID         int64
	AccountID  int64
	Date       time.Time
	Value      decimal.Decimal
	Wording    string
	Original   string
	LastUpdate time.Time
	Raw        json.RawMessage
}

// BalanceSnapshot records an account balance at one observed instant. A new
// row is added only when ObservedAt advances, accumulating a history.
type BalanceSnapshot struct {
	AccountID     int64
	Balance       decimal.Decimal
	ComingBalance decimal.Decimal
	ObservedAt    time.Time
}

// Checkpoint marks the most recently delivered transaction for one scope.
// The zero value means no cycle has ever completed for the scope.
type Checkpoint struct {
	LastTxID   int64
	LastTxDate time.Time
}

// HasID reports whether an identifier-based checkpoint exists. A fresh start
// or an id compaction leaves only the date part populated.
func (c Checkpoint) HasID() bool { return c.LastTxID != 0 }

// HasDate reports whether a date-based checkpoint exists.
func (c Checkpoint) HasDate() bool { return !c.LastTxDate.IsZero() }

// IsZero reports whether the checkpoint carries no progress at all.
func (c Checkpoint) IsZero() bool { return !c.HasID() && !c.HasDate() }

// Before orders checkpoints by the composite (date, id) key.
func (c Checkpoint) Before(other Checkpoint) bool {
	if !c.LastTxDate.Equal(other.LastTxDate) {
		return c.LastTxDate.Before(other.LastTxDate)
	}
	return c.LastTxID < other.LastTxID
}

// Event pairs a new transaction with a snapshot of its owning account. It is
// built once per dispatch and never mutated by sinks.
type Event struct {
	Transaction Transaction
	Account     Account
}
