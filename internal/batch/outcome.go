package batch

import (
	"time"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/models"
)

// Item is the result for one selected position.
type Item struct {
	Position int
	Label    string
	Record   *models.Record
	Err      error
}

// OK reports whether the item was enriched and persisted.
func (i Item) OK() bool { return i.Err == nil && i.Record != nil }

// Kind returns the error taxonomy name, or "" for a success.
func (i Item) Kind() string { return apperr.Kind(i.Err) }

// Outcome aggregates a batch. Items are in selection order.
type Outcome struct {
	ID       string
	Items    []Item
	Duration time.Duration
}

// Succeeded counts persisted items.
func (o Outcome) Succeeded() int {
	n := 0
	for _, it := range o.Items {
		if it.OK() {
			n++
		}
	}
	return n
}

// Failed counts items that did not produce a record.
func (o Outcome) Failed() int { return len(o.Items) - o.Succeeded() }

// Records returns the persisted records in selection order.
func (o Outcome) Records() []models.Record {
	out := make([]models.Record, 0, len(o.Items))
	for _, it := range o.Items {
		if it.OK() {
			out = append(out, *it.Record)
		}
	}
	return out
}

// Failures returns the failed items in selection order.
func (o Outcome) Failures() []Item {
	var out []Item
	for _, it := range o.Items {
		if !it.OK() {
			out = append(out, it)
		}
	}
	return out
}
