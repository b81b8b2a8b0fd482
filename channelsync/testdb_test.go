package channelsync

import (
	"fmt"
	"strings"
	"testing"

	"github.com/otelciro/pms_backend/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.MigrateAll(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedHotel(t *testing.T, db *gorm.DB, hotelId string) {
	t.Helper()
	if err := db.Create(&models.Hotel{ID: hotelId, Name: "Test Hotel", Currency: "EUR", IsActive: true}).Error; err != nil {
		t.Fatalf("seed hotel: %v", err)
	}
}
