// Package dbtest opens throwaway SQLite databases carrying the settlement schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
)

// AllModels lists every table the settlement services touch.
func AllModels() []any {
	return []any{
		&models.Activity{},
		&models.ActivityOwner{},
		&models.Establishment{},
		&models.PartnerRegistration{},
		&models.EstablishmentReferralLink{},
		&models.Booking{},
		&models.EstablishmentCommission{},
		&models.CommissionInvoice{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// Open returns an isolated in-memory database migrated with the given models,
// or with AllModels when none are passed. The pool is pinned to one connection
// so transactional code paths see the same database.
func Open(t testing.TB, tables ...any) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:ah_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(tables) == 0 {
		tables = AllModels()
	}
	if err := conn.AutoMigrate(tables...); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}
