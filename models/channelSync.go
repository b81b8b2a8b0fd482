package models

import "time"

const (
	ProviderBeds24 = "beds24"
)

const (
	EntityTypeBooking  = "booking"
	EntityTypeGuest    = "guest"
	EntityTypeRoomType = "room_type"
	EntityTypeCalendar = "calendar"
)

const (
	AuditStatusSuccess = "success"
	AuditStatusError   = "error"
	AuditStatusPartial = "partial"
)

const (
	TokenTypeRead  = "read"
	TokenTypeWrite = "write"
)

const (
	EventStatusPending   = "pending"
	EventStatusProcessed = "processed"
	EventStatusError     = "error"
)

const (
	MappingKindRoomType = "room_type"
	MappingKindRatePlan = "rate_plan"
)

// ExternalIdentityMapping is the idempotency backbone of the sync engine:
// at most one internal entity per (provider, entity_type, external_id).
// Concurrent writers can race the resolve-then-create upsert into
// duplicate rows; the integrity repair pass collapses them, keeping the
// newest.
type ExternalIdentityMapping struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	Provider     string     `gorm:"index:idx_identity_mapping,priority:1;size:50;not null" json:"provider"`
	EntityType   string     `gorm:"index:idx_identity_mapping,priority:2;size:50;not null" json:"entity_type"`
	ExternalId   string     `gorm:"index:idx_identity_mapping,priority:3;size:128;not null" json:"external_id"`
	InternalId   string     `gorm:"size:128;not null" json:"internal_id"`
	HotelId      string     `gorm:"index;size:64" json:"hotel_id"`
	LastSeenAt   *time.Time `json:"last_seen_at"`
	MetadataJSON []byte     `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncCheckpoint records delta-sync progress per (provider, hotel).
// The last_* cursors are monotonic; advances go through
// channelsync.advanceCheckpoint which never lets them regress.
type SyncCheckpoint struct {
	ID                       uint       `gorm:"primary_key" json:"id"`
	Provider                 string     `gorm:"uniqueIndex:idx_sync_checkpoint,priority:1;size:50;not null" json:"provider"`
	HotelId                  string     `gorm:"uniqueIndex:idx_sync_checkpoint,priority:2;size:64;not null" json:"hotel_id"`
	BootstrapCompleted       bool       `gorm:"default:false" json:"bootstrap_completed"`
	SyncEnabled              bool       `gorm:"default:true" json:"sync_enabled"`
	DisabledReason           string     `gorm:"type:text" json:"disabled_reason"`
	LastBookingsModifiedFrom *time.Time `json:"last_bookings_modified_from"`
	LastBookingsSyncAt       *time.Time `json:"last_bookings_sync_at"`
	LastCalendarStart        *time.Time `json:"last_calendar_start"`
	LastCalendarEnd          *time.Time `json:"last_calendar_end"`
	LastCalendarSyncAt       *time.Time `json:"last_calendar_sync_at"`
	SettingsJSON             []byte     `gorm:"type:json" json:"settings"`
	CreatedAt                time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// AuditRecord is the append-only audit trail. Payloads are stored after
// redaction; recovery's pattern analysis reads error rows from here.
type AuditRecord struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	Provider       string    `gorm:"index;size:50;not null" json:"provider"`
	Operation      string    `gorm:"index;size:64;not null" json:"operation"`
	HotelId        string    `gorm:"index;size:64" json:"hotel_id"`
	EntityType     string    `gorm:"index;size:50" json:"entity_type"`
	ExternalId     string    `gorm:"size:128" json:"external_id"`
	Status         string    `gorm:"index;size:20;not null" json:"status"`
	Cost           int       `json:"cost"`
	LimitRemaining int       `json:"limit_remaining"`
	LimitResetsIn  int       `json:"limit_resets_in"`
	DurationMs     int64     `json:"duration_ms"`
	RequestJSON    []byte    `gorm:"type:json" json:"request"`
	ResponseJSON   []byte    `gorm:"type:json" json:"response"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message"`
	TraceId        string    `gorm:"size:64" json:"trace_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

type RateLimitSample struct {
	ID               uint      `gorm:"primary_key" json:"id"`
	Provider         string    `gorm:"index;size:50;not null" json:"provider"`
	Cost             int       `json:"cost"`
	FiveMinRemaining int       `json:"five_min_remaining"`
	DailyRemaining   int       `json:"daily_remaining"`
	HeadersJSON      []byte    `gorm:"type:json" json:"response_headers"`
	RecordedAt       time.Time `gorm:"autoCreateTime;index" json:"recorded_at"`
}

// InboundReservationEvent persists every webhook push before processing.
// Rows are append-only; updates and cancels add new rows, never overwrite.
type InboundReservationEvent struct {
	ID                   uint       `gorm:"primary_key" json:"id"`
	ChannelId            string     `gorm:"index:idx_inbound_event,priority:1;size:64;not null" json:"channel_id"`
	ChannelReservationId string     `gorm:"index:idx_inbound_event,priority:2;size:128;not null" json:"channel_reservation_id"`
	HotelId              string     `gorm:"index;size:64;not null" json:"hotel_id"`
	Action               string     `gorm:"size:20;not null" json:"action"`
	GuestJSON            []byte     `gorm:"type:json" json:"guest_data"`
	BookingJSON          []byte     `gorm:"type:json" json:"booking_data"`
	RawJSON              []byte     `gorm:"type:json" json:"raw_data"`
	ProcessingStatus     string     `gorm:"index;size:20;not null" json:"processing_status"`
	ReservationId        *int       `gorm:"index" json:"reservation_id"`
	ErrorMessage         string     `gorm:"type:text" json:"error_message"`
	ProcessedAt          *time.Time `json:"processed_at"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// ProviderToken holds the current access token per token type.
type ProviderToken struct {
	ID              uint       `gorm:"primary_key" json:"id"`
	Provider        string     `gorm:"uniqueIndex:idx_provider_token,priority:1;size:50;not null" json:"provider"`
	TokenType       string     `gorm:"uniqueIndex:idx_provider_token,priority:2;size:20;not null" json:"token_type"`
	AccessToken     string     `gorm:"type:text" json:"-"`
	Scopes          string     `gorm:"size:255" json:"scopes"`
	ExpiresAt       *time.Time `json:"expires_at"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at"`
	PropertiesCount int        `json:"properties_count"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ChannelConnection authorizes a channel to push reservations for a hotel.
type ChannelConnection struct {
	ID                 uint      `gorm:"primary_key" json:"id"`
	HotelId            string    `gorm:"uniqueIndex:idx_channel_conn,priority:1;size:64;not null" json:"hotel_id"`
	ChannelId          string    `gorm:"uniqueIndex:idx_channel_conn,priority:2;size:64;not null" json:"channel_id"`
	Active             bool      `gorm:"default:true" json:"active"`
	PushCredentialHash string    `gorm:"size:128" json:"-"`
	ChannelHotelCode   string    `gorm:"size:64" json:"channel_hotel_code"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ChannelCodeMapping maps a channel's room-type / rate-plan code to an
// internal id. Consulted by the webhook processor before its fallbacks.
type ChannelCodeMapping struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	HotelId     string    `gorm:"uniqueIndex:idx_channel_code,priority:1;size:64;not null" json:"hotel_id"`
	ChannelId   string    `gorm:"uniqueIndex:idx_channel_code,priority:2;size:64;not null" json:"channel_id"`
	Kind        string    `gorm:"uniqueIndex:idx_channel_code,priority:3;size:20;not null" json:"kind"`
	ChannelCode string    `gorm:"uniqueIndex:idx_channel_code,priority:4;size:64;not null" json:"channel_code"`
	InternalId  int       `gorm:"not null" json:"internal_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
