package partition

import (
	"context"
	"fmt"
	"time"

	obsmetrics "github.com/shoppulse/shoppulse/internal/observability/metrics"
	"github.com/shoppulse/shoppulse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Policy *Policy
}

// Provisioner ensures physical partitions exist before any write targets
// them. It is safe under concurrent callers: the loser of a creation race
// treats "already exists" as success.
type Provisioner struct {
	db     *gorm.DB
	log    *zap.Logger
	policy *Policy
}

func NewProvisioner(p Params) *Provisioner {
	return &Provisioner{
		db:     p.DB,
		log:    p.Log.Named("partition.provisioner"),
		policy: p.Policy,
	}
}

// EnsurePartition walks [rangeStart, rangeEnd] in granularity-sized steps
// and creates every missing partition of table covering the range.
func (pr *Provisioner) EnsurePartition(ctx context.Context, table string, g Granularity, rangeStart, rangeEnd time.Time) error {
	if err := ValidateIdentifier(table); err != nil {
		return err
	}
	if g != GranularityHourly && g != GranularityDaily {
		return fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}
	if rangeEnd.Before(rangeStart) {
		rangeStart, rangeEnd = rangeEnd, rangeStart
	}

	last := pr.policy.Truncate(rangeEnd, g)
	for bucket := pr.policy.Truncate(rangeStart, g); !bucket.After(last); bucket = pr.policy.Next(bucket, g) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := pr.ensureBucket(ctx, table, g, bucket); err != nil {
			return err
		}
	}
	return nil
}

// EnsureForTime guarantees the single partition of table covering t.
func (pr *Provisioner) EnsureForTime(ctx context.Context, table string, g Granularity, t time.Time) error {
	return pr.EnsurePartition(ctx, table, g, t, t)
}

// Exists reports whether the physical partition of table covering t exists.
// The database's own catalog is the catalog; there is no shadow table.
func (pr *Provisioner) Exists(ctx context.Context, table string, g Granularity, t time.Time) (bool, error) {
	key := pr.policy.DeriveKey(t, g)
	return pr.tableExists(ctx, pr.policy.PhysicalName(table, key))
}

func (pr *Provisioner) ensureBucket(ctx context.Context, table string, g Granularity, bucket time.Time) error {
	key := pr.policy.DeriveKey(bucket, g)
	physical := pr.policy.PhysicalName(table, key)
	if err := ValidateIdentifier(physical); err != nil {
		return err
	}

	exists, err := pr.tableExists(ctx, physical)
	if err != nil {
		return fmt.Errorf("check partition %s: %w", physical, err)
	}
	if exists {
		return nil
	}

	ddl := pr.createDDL(table, physical, g, key, bucket)
	if err := pr.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		if db.IsDuplicateTableErr(err) {
			// Lost a creation race; the partition is there.
			pr.log.Info("partition already exists",
				zap.String("table", table),
				zap.String("partition", physical),
			)
			return nil
		}
		if db.IsUndefinedTableErr(err) {
			return fmt.Errorf("parent table %s missing: %w", table, err)
		}
		return fmt.Errorf("create partition %s: %w", physical, err)
	}

	obsmetrics.Rollup().IncPartitionCreated(table)
	pr.log.Info("partition created",
		zap.String("table", table),
		zap.String("partition", physical),
		zap.String("key", key),
	)
	return nil
}

func (pr *Provisioner) tableExists(ctx context.Context, name string) (bool, error) {
	if pr.db.Dialector.Name() == "sqlite" {
		var count int64
		err := pr.db.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?`,
			name,
		).Scan(&count).Error
		return count > 0, err
	}

	var regclass *string
	err := pr.db.WithContext(ctx).Raw(`SELECT to_regclass(?)`, name).Scan(&regclass).Error
	if err != nil {
		return false, err
	}
	return regclass != nil, nil
}

// createDDL renders the partition DDL. Identifiers are allow-list
// validated before splicing; keys come from the policy's own formatting,
// never from callers. SQLite (tests) has no declarative partitioning, so
// the partition becomes a plain schema clone and writes stay on the
// parent table.
func (pr *Provisioner) createDDL(table, physical string, g Granularity, key string, bucket time.Time) string {
	if pr.db.Dialector.Name() == "sqlite" {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM %s WHERE 0`, physical, table)
	}

	if g == GranularityHourly {
		return fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES IN ('%s')`,
			physical, table, key,
		)
	}
	nextKey := pr.policy.DeriveKey(pr.policy.Next(bucket, g), g)
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
		physical, table, key, nextKey,
	)
}
