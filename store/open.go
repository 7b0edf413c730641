package store

import (
	"fmt"
	"log"

	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open builds the store named by driver ("memory" or "postgres"). The Postgres store is
// migrated before it is returned.
func Open(driver, dsn string, clock clockwork.Clock) (Store, error) {
	switch driver {
	case "memory":
		log.Println("⚠️  [Store] using the in-memory store, nothing survives a restart")
		return NewMemoryStore(clock), nil
	case "postgres", "":
		if dsn == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable not set")
		}
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s := NewPostgresStore(db)
		if err := s.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want memory or postgres)", driver)
	}
}
