package syncer

import (
	"sort"
	"time"
)

// fetchWindowSlack is how far the fetch window is widened before a date-only
// checkpoint. The source does not guarantee stable ordering across pages, so
// records dated close to the checkpoint may still arrive late; identifier
// dedup then provides the exact exclusion.
const fetchWindowSlack = 24 * time.Hour

// FetchWindow bounds one transaction fetch. A zero MinDate means unbounded.
type FetchWindow struct {
	MinDate time.Time
}

// windowFor derives the fetch window from the committed checkpoint. With an
// identifier checkpoint the window stays open and dedup does the work; with
// only a date the window starts one day before it.
func windowFor(cp Checkpoint) FetchWindow {
	if cp.HasID() || !cp.HasDate() {
		return FetchWindow{}
	}
	return FetchWindow{MinDate: cp.LastTxDate.Add(-fetchWindowSlack)}
}

// dedupe reduces a raw fetched batch to the ordered set of genuinely new
// transactions and the checkpoint candidate that covers them.
//
// Duplicate identifiers within the batch collapse to the first occurrence,
// anything at or below an identifier checkpoint is dropped, and the remainder
// is sorted by (date, id) ascending so replay is deterministic. When the
// batch yields nothing new the checkpoint candidate is the input unchanged.
func dedupe(cp Checkpoint, batch []Transaction) ([]Transaction, Checkpoint) {
	seen := make(map[int64]struct{}, len(batch))
	fresh := make([]Transaction, 0, len(batch))

	for _, tx := range batch {
		if _, ok := seen[tx.ID]; ok {
			continue
		}
		seen[tx.ID] = struct{}{}

		if cp.HasID() && tx.ID <= cp.LastTxID {
			continue
		}

		fresh = append(fresh, tx)
	}

	sort.Slice(fresh, func(i, j int) bool {
		if !fresh[i].Date.Equal(fresh[j].Date) {
			return fresh[i].Date.Before(fresh[j].Date)
		}
		return fresh[i].ID < fresh[j].ID
	})

	next := cp
	for _, tx := range fresh {
		candidate := Checkpoint{LastTxID: tx.ID, LastTxDate: tx.Date}
		if next.Before(candidate) {
			next = candidate
		}
	}

	return fresh, next
}
