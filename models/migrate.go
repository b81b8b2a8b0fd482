package models

import (
	"log"

	"github.com/otelciro/pms_backend/config"
	"gorm.io/gorm"
)

func allModels() []interface{} {
	return []interface{}{
		&Hotel{},
		&User{},
		&Guest{},
		&RoomType{},
		&Room{},
		&RatePlan{},
		&DailyRate{},
		&RoomInventory{},
		&Reservation{},
		&ChargeItem{},
		&ExternalIdentityMapping{},
		&SyncCheckpoint{},
		&AuditRecord{},
		&RateLimitSample{},
		&InboundReservationEvent{},
		&ProviderToken{},
		&ChannelConnection{},
		&ChannelCodeMapping{},
	}
}

func MigrateTable() {
	if err := config.GetDB().AutoMigrate(allModels()...); err != nil {
		log.Printf("auto migrate failed: %v", err)
	}
}

// MigrateAll runs AutoMigrate against an explicit DB handle. Used by tests
// running on an in-memory database.
func MigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(allModels()...)
}
