package migration

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
		// The migration set is Postgres DDL (declarative partitioning).
		// Other dialects are for tests, which build their own schema.
		if conn.Dialector.Name() != "postgres" {
			log.Warn("skipping migrations on non-postgres dialect",
				zap.String("dialect", conn.Dialector.Name()))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
