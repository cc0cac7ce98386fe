package scraper

import (
	"sync"

	"github.com/maltedev/storefront-sku-lookup/internal/models"
)

// Aggregator collects outcomes by input position. It is safe for concurrent
// use by batch workers.
type Aggregator struct {
	mu    sync.Mutex
	ids   []string
	slots []models.Outcome
	set   []bool
}

func NewAggregator(ids []string) *Aggregator {
	return &Aggregator{
		ids:   ids,
		slots: make([]models.Outcome, len(ids)),
		set:   make([]bool, len(ids)),
	}
}

// Set records the outcome for position i. Out-of-range positions are ignored
// and reported as false.
func (a *Aggregator) Set(i int, o models.Outcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i < 0 || i >= len(a.slots) {
		return false
	}
	a.slots[i] = o
	a.set[i] = true
	return true
}

// FillMissing marks every unset position as failed with err.
func (a *Aggregator) FillMissing(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, ok := range a.set {
		if !ok {
			a.slots[i] = models.Failed(a.ids[i], err)
			a.set[i] = true
		}
	}
}

// Outcomes returns one outcome per input identifier, in input order.
func (a *Aggregator) Outcomes() []models.Outcome {
	a.FillMissing(ErrNotProcessed)

	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.Outcome, len(a.slots))
	copy(out, a.slots)
	return out
}
