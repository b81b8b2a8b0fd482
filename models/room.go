package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoomStatusAvailable  = "Available"
	RoomStatusReserved   = "Reserved"
	RoomStatusOccupied   = "Occupied"
	RoomStatusOutOfOrder = "OutOfOrder"
)

type RoomType struct {
	ID        int       `gorm:"primary_key" json:"id"`
	HotelId   string    `gorm:"index;size:64;not null" json:"hotel_id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Code      string    `gorm:"size:64" json:"code"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Room struct {
	ID         int       `gorm:"primary_key" json:"id"`
	HotelId    string    `gorm:"index;size:64;not null" json:"hotel_id"`
	RoomTypeId int       `gorm:"index;not null" json:"room_type_id"`
	Number     string    `gorm:"size:20" json:"number"`
	Status     string    `gorm:"size:20;not null" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type RatePlan struct {
	ID        int       `gorm:"primary_key" json:"id"`
	HotelId   string    `gorm:"index;size:64;not null" json:"hotel_id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Code      string    `gorm:"size:64" json:"code"`
	IsDefault bool      `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DailyRate is the nightly price per (hotel, room type, rate plan, date).
type DailyRate struct {
	ID         uint            `gorm:"primary_key" json:"id"`
	HotelId    string          `gorm:"uniqueIndex:idx_daily_rate,priority:1;size:64;not null" json:"hotel_id"`
	RoomTypeId int             `gorm:"uniqueIndex:idx_daily_rate,priority:2;not null" json:"room_type_id"`
	RatePlanId int             `gorm:"uniqueIndex:idx_daily_rate,priority:3;not null" json:"rate_plan_id"`
	Date       time.Time       `gorm:"uniqueIndex:idx_daily_rate,priority:4;type:date;not null" json:"date"`
	Price      decimal.Decimal `gorm:"type:decimal(18,2)" json:"price"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// RoomInventory is availability/restrictions per (hotel, room type, date).
type RoomInventory struct {
	ID              uint      `gorm:"primary_key" json:"id"`
	HotelId         string    `gorm:"uniqueIndex:idx_room_inventory,priority:1;size:64;not null" json:"hotel_id"`
	RoomTypeId      int       `gorm:"uniqueIndex:idx_room_inventory,priority:2;not null" json:"room_type_id"`
	Date            time.Time `gorm:"uniqueIndex:idx_room_inventory,priority:3;type:date;not null" json:"date"`
	Allotment       int       `json:"allotment"`
	StopSell        bool      `gorm:"default:false" json:"stop_sell"`
	MinStay         int       `json:"min_stay"`
	MaxStay         int       `json:"max_stay"`
	ClosedArrival   bool      `gorm:"default:false" json:"closed_arrival"`
	ClosedDeparture bool      `gorm:"default:false" json:"closed_departure"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
