package rollup

import (
	"time"

	"github.com/shoppulse/shoppulse/internal/config"
)

// Options tunes the rollup run. Zero values fall back to defaults.
type Options struct {
	// Workers bounds how many reconciliation units run at once across
	// entity types. Dates within one entity type always run in order.
	Workers int

	// MaxAttempts is the per-unit attempt ceiling for transient failures.
	MaxAttempts int

	// RetryBackoff is the initial delay before a retry; it doubles per
	// attempt.
	RetryBackoff time.Duration

	// PollEvery is the background worker's tick interval.
	PollEvery time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 100 * time.Millisecond
	}
	if o.PollEvery <= 0 {
		o.PollEvery = time.Minute
	}
	return o
}

// OptionsFromConfig maps the application config onto rollup options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Workers:     cfg.RollupWorkers,
		MaxAttempts: cfg.RollupMaxAttempts,
		PollEvery:   cfg.RollupPollEvery,
	}.withDefaults()
}
