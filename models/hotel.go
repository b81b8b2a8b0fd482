package models

import (
	"context"
	"time"

	"github.com/otelciro/pms_backend/config"
)

type Hotel struct {
	ID             string    `gorm:"primary_key;size:64" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Timezone       string    `gorm:"size:64" json:"timezone"`
	Currency       string    `gorm:"size:8" json:"currency"`
	OrganizationId string    `gorm:"size:64" json:"organization_id"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetHotelById(ctx context.Context, hotelId string) (*Hotel, error) {
	var hotel Hotel
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", hotelId).Take(&hotel).Error; err != nil {
		return nil, err
	}
	return &hotel, nil
}

type Guest struct {
	ID        int       `gorm:"primary_key" json:"id"`
	HotelId   string    `gorm:"index:idx_guest_email,priority:1;size:64;not null" json:"hotel_id"`
	FirstName string    `gorm:"size:128" json:"first_name"`
	LastName  string    `gorm:"size:128" json:"last_name"`
	Email     string    `gorm:"index:idx_guest_email,priority:2;size:255" json:"email"`
	Phone     string    `gorm:"size:64" json:"phone"`
	Country   string    `gorm:"size:64" json:"country"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:128;not null" json:"username"`
	PasswordHash string    `gorm:"size:128" json:"-"`
	Role         string    `gorm:"size:20" json:"role"`
	HotelId      string    `gorm:"index;size:64" json:"hotel_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	UserRoleAdmin   = "admin"
	UserRoleManager = "manager"
)
