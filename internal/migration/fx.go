package migration

import (
	"github.com/smallbiznis/carebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module applies the schema on startup: embedded SQL migrations on postgres,
// model auto-migration on sqlite.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBMigrate {
			log.Info("skipping schema migrations", zap.String("db_type", cfg.DBType))
			return nil
		}

		if cfg.DBType != "postgres" {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
			log.Info("schema auto-migrated", zap.String("db_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("schema migrations applied")
		return nil
	}),
)
