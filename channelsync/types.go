package channelsync

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const (
	SyncTypeBookings = "bookings"
	SyncTypeCalendar = "calendar"
	SyncTypeAll      = "all"
)

const (
	SyncStateSuccess = "success"
	SyncStatePartial = "partial"
	SyncStateSkipped = "skipped"
	SyncStateAborted = "aborted"
)

// SyncSettings is the typed form of SyncCheckpoint.SettingsJSON.
type SyncSettings struct {
	BookingsIntervalMinutes int `json:"bookingsIntervalMinutes" validate:"gte=0"`
	CalendarIntervalHours   int `json:"calendarIntervalHours" validate:"gte=0"`
	CalendarWindowDays      int `json:"calendarWindowDays" validate:"gte=0,lte=730"`
	BootstrapDays           int `json:"bootstrapDays" validate:"gte=0,lte=730"`
}

func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		BookingsIntervalMinutes: 60,
		CalendarIntervalHours:   6,
		CalendarWindowDays:      365,
		BootstrapDays:           90,
	}
}

func DecodeSyncSettings(raw []byte) SyncSettings {
	if len(raw) == 0 {
		return DefaultSyncSettings()
	}
	var settings SyncSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return DefaultSyncSettings()
	}
	if err := validate.Struct(settings); err != nil {
		return DefaultSyncSettings()
	}
	return normalizeSyncSettings(settings)
}

func EncodeSyncSettings(settings SyncSettings) []byte {
	b, _ := json.Marshal(normalizeSyncSettings(settings))
	return b
}

func normalizeSyncSettings(settings SyncSettings) SyncSettings {
	defaults := DefaultSyncSettings()
	if settings.BookingsIntervalMinutes == 0 {
		settings.BookingsIntervalMinutes = defaults.BookingsIntervalMinutes
	}
	if settings.CalendarIntervalHours == 0 {
		settings.CalendarIntervalHours = defaults.CalendarIntervalHours
	}
	if settings.CalendarWindowDays == 0 {
		settings.CalendarWindowDays = defaults.CalendarWindowDays
	}
	if settings.BootstrapDays == 0 {
		settings.BootstrapDays = defaults.BootstrapDays
	}
	return settings
}

// SyncRequest triggers a delta sync for one hotel or, with an empty
// HotelId, every sync-eligible hotel.
type SyncRequest struct {
	SyncType  string `json:"syncType" validate:"required,oneof=bookings calendar all"`
	HotelId   string `json:"hotelId"`
	ForceSync bool   `json:"forceSync"`
	TraceId   string `json:"traceId"`
}

// SyncOutcome is the structured result of one (hotel, entity type) run.
type SyncOutcome struct {
	HotelId   string `json:"hotelId"`
	SyncType  string `json:"syncType"`
	State     string `json:"state"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Skipped   int    `json:"skipped,omitempty"`
	Failed    int    `json:"failed"`
	Message   string `json:"message,omitempty"`
}

func (o SyncOutcome) Success() bool {
	return o.State == SyncStateSuccess || o.State == SyncStatePartial || o.State == SyncStateSkipped
}

// TokenAction is the token-manager command family.
type TokenAction struct {
	Action    string `json:"action" validate:"required,oneof=refresh_token diagnostics"`
	TokenType string `json:"tokenType" validate:"omitempty,oneof=read write"`
}

// SchedulerAction is the scheduler command family.
type SchedulerAction struct {
	Action   string `json:"action" validate:"required,oneof=run_scheduled manual_trigger health_check"`
	SyncType string `json:"syncType" validate:"omitempty,oneof=bookings calendar all"`
	HotelId  string `json:"hotelId"`
}

// RecoveryOptions are the composable flags of manual recovery.
type RecoveryOptions struct {
	ForceBootstrap bool   `json:"forceBootstrap"`
	ResetTokens    bool   `json:"resetTokens"`
	ClearErrors    bool   `json:"clearErrors"`
	RequeueEvents  bool   `json:"requeueEvents"`
	ResyncFromDate string `json:"resyncFromDate" validate:"omitempty,datetime=2006-01-02"`
}

// RecoveryAction is the recovery command family.
type RecoveryAction struct {
	Action     string          `json:"action" validate:"required,oneof=auto_recovery manual_recovery reset_sync_state repair_data_integrity"`
	HotelId    string          `json:"hotelId"`
	EntityType string          `json:"entityType"`
	Options    RecoveryOptions `json:"recoveryOptions"`
}

// WebhookEvent is one inbound reservation push from a channel.
// Credential and Raw are transport-level and never part of the JSON body.
type WebhookEvent struct {
	ChannelId     string          `json:"channelId" validate:"required"`
	ReservationId string          `json:"reservationId" validate:"required"`
	Action        string          `json:"action" validate:"required,oneof=create update cancel"`
	Data          WebhookData     `json:"data"`
	Credential    string          `json:"-"`
	Raw           json.RawMessage `json:"-"`
}

type WebhookData struct {
	HotelId      string          `json:"hotelId" validate:"required"`
	Status       string          `json:"status"`
	RoomTypeCode string          `json:"roomTypeCode"`
	RatePlanCode string          `json:"ratePlanCode"`
	Arrival      string          `json:"arrival"`
	Departure    string          `json:"departure"`
	Adults       int             `json:"adults"`
	Children     int             `json:"children"`
	TotalAmount  json.Number     `json:"totalAmount"`
	Currency     string          `json:"currency"`
	Notes        string          `json:"notes"`
	CancelReason string          `json:"cancelReason"`
	Guest        WebhookGuest    `json:"guest"`
	Charges      []WebhookCharge `json:"charges"`
}

type WebhookGuest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
}

type WebhookCharge struct {
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
}

// WebhookResult is returned to the pushing channel.
type WebhookResult struct {
	Success       bool   `json:"success"`
	EventId       uint   `json:"eventId,omitempty"`
	ReservationId int    `json:"reservationId,omitempty"`
	Message       string `json:"message,omitempty"`
}
