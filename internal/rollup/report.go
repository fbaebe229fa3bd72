package rollup

import (
	"sync"
	"time"

	"github.com/shoppulse/shoppulse/internal/entity"
)

// UnitStatus is the terminal outcome of one (entity type, date) unit.
type UnitStatus string

const (
	UnitSuccess UnitStatus = "success"
	UnitFailed  UnitStatus = "failed"
	UnitSkipped UnitStatus = "skipped"
)

// UnitResult records one reconciliation unit's outcome.
type UnitResult struct {
	EntityType entity.Type   `json:"entity_type"`
	Date       time.Time     `json:"date"`
	Status     UnitStatus    `json:"status"`
	Rows       int           `json:"rows"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Report accumulates unit results across concurrent entity-type walks.
type Report struct {
	mu    sync.Mutex
	units []UnitResult
}

func (r *Report) add(result UnitResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = append(r.units, result)
}

// Units returns a copy of the recorded results.
func (r *Report) Units() []UnitResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UnitResult, len(r.units))
	copy(out, r.units)
	return out
}

// Totals summarizes the report by status.
func (r *Report) Totals() (succeeded, failed, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.units {
		switch u.Status {
		case UnitSuccess:
			succeeded++
		case UnitFailed:
			failed++
		case UnitSkipped:
			skipped++
		}
	}
	return succeeded, failed, skipped
}
