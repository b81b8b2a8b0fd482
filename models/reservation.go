package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReservationStatusConfirmed  = "Confirmed"
	ReservationStatusTentative  = "Tentative"
	ReservationStatusRequested  = "Requested"
	ReservationStatusCancelled  = "Cancelled"
	ReservationStatusBlocked    = "Blocked"
	ReservationStatusInquiry    = "Inquiry"
	ReservationStatusNoShow     = "No Show"
	ReservationStatusInHouse    = "In House"
	ReservationStatusCheckedOut = "Checked Out"
)

const (
	ReservationSourceChannel = "channel"
	ReservationSourceDirect  = "direct"
)

type Reservation struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	HotelId             string          `gorm:"index;size:64;not null" json:"hotel_id"`
	GuestId             int             `gorm:"index" json:"guest_id"`
	RoomTypeId          int             `gorm:"index" json:"room_type_id"`
	RatePlanId          int             `json:"rate_plan_id"`
	RoomId              *int            `gorm:"index" json:"room_id"`
	Status              string          `gorm:"index;size:20;not null" json:"status"`
	Source              string          `gorm:"size:20" json:"source"`
	SourceReservationId string          `gorm:"index;size:128" json:"source_reservation_id"`
	ArrivalDate         time.Time       `json:"arrival_date"`
	DepartureDate       time.Time       `json:"departure_date"`
	Adults              int             `json:"adults"`
	Children            int             `json:"children"`
	TotalAmount         decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_amount"`
	Currency            string          `gorm:"size:8" json:"currency"`
	Notes               string          `gorm:"type:text" json:"notes"`
	CancelledAt         *time.Time      `json:"cancelled_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ChargeItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ReservationId int             `gorm:"index;not null" json:"reservation_id"`
	HotelId       string          `gorm:"index;size:64;not null" json:"hotel_id"`
	Description   string          `gorm:"size:255" json:"description"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2)" json:"amount"`
	Currency      string          `gorm:"size:8" json:"currency"`
	PostedAt      time.Time       `json:"posted_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
