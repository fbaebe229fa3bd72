package partition

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Granularity is the time-bucket size governing partition key derivation.
type Granularity string

const (
	GranularityHourly Granularity = "hourly"
	GranularityDaily  Granularity = "daily"
)

const (
	hourlyKeyLayout = "2006-01-02T15:00:00"
	dailyKeyLayout  = "2006-01-02"
)

var (
	ErrInvalidGranularity = errors.New("invalid partition granularity")
	ErrUnsafeIdentifier   = errors.New("unsafe sql identifier")
)

// Table and partition names are interpolated into DDL, so they are held to
// a strict allow-list instead of relying on parameter binding.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func ParseGranularity(raw string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(raw))) {
	case GranularityHourly:
		return GranularityHourly, nil
	case GranularityDaily:
		return GranularityDaily, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, raw)
	}
}

// ValidateIdentifier rejects any logical table name that cannot be spliced
// into DDL safely.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrUnsafeIdentifier, name)
	}
	return nil
}

// Policy maps (timestamp, granularity) to canonical partition keys and
// physical partition names. It is total: a zero timestamp is substituted
// with the current time and logged, never rejected, because upstream
// producers may omit or mangle event timestamps.
type Policy struct {
	log *zap.Logger
}

func NewPolicy(log *zap.Logger) *Policy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{log: log.Named("partition.policy")}
}

// DeriveKey returns the canonical partition key for t at the given
// granularity. Hourly keys truncate to the hour (2006-01-02T15:00:00),
// daily keys to the UTC calendar day (2006-01-02).
func (p *Policy) DeriveKey(t time.Time, g Granularity) string {
	t = p.NormalizeTime(t)
	if g == GranularityHourly {
		return t.Truncate(time.Hour).Format(hourlyKeyLayout)
	}
	return t.Format(dailyKeyLayout)
}

// Truncate returns t aligned to the start of its partition bucket.
func (p *Policy) Truncate(t time.Time, g Granularity) time.Time {
	t = p.NormalizeTime(t)
	if g == GranularityHourly {
		return t.Truncate(time.Hour)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Next returns the lower bound of the partition bucket after t's bucket.
func (p *Policy) Next(t time.Time, g Granularity) time.Time {
	start := p.Truncate(t, g)
	if g == GranularityHourly {
		return start.Add(time.Hour)
	}
	return start.AddDate(0, 0, 1)
}

// PhysicalName derives the partition table name for (logicalTable, key).
// The mapping is deterministic and reversible: lower(table_p_key) with
// `-` and `:` replaced by `_`.
func (p *Policy) PhysicalName(logicalTable, key string) string {
	return strings.ToLower(logicalTable + "_p_" + sanitizeKey(key))
}

// NormalizeTime converts t to UTC, substituting (and logging) the current
// time when t is missing.
func (p *Policy) NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		now := time.Now().UTC()
		p.log.Warn("missing partition timestamp, substituting now",
			zap.Time("substituted", now),
		)
		return now
	}
	return t.UTC()
}

func sanitizeKey(key string) string {
	replacer := strings.NewReplacer("-", "_", ":", "_")
	return replacer.Replace(key)
}
