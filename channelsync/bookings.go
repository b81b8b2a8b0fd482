package channelsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/otelciro/pms_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type channelListResponse struct {
	Success bool              `json:"success"`
	Data    []json.RawMessage `json:"data"`
	Count   int               `json:"count"`
	Pages   struct {
		NextPageExists bool `json:"nextPageExists"`
	} `json:"pages"`
}

// flexId is an identifier the channel serializes as either a JSON number
// or a string, depending on endpoint and record age.
type flexId string

func (f *flexId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexId(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexId(n.String())
	return nil
}

func (f flexId) String() string { return string(f) }

type channelBooking struct {
	ID        flexId      `json:"id"`
	Status    string      `json:"status"`
	Arrival   string      `json:"arrival"`
	Departure string      `json:"departure"`
	RoomId    flexId      `json:"roomId"`
	NumAdult  int         `json:"numAdult"`
	NumChild  int         `json:"numChild"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone"`
	Country   string      `json:"country"`
	Price     json.Number `json:"price"`
	Currency  string      `json:"currency"`
	Notes     string      `json:"notes"`
	Modified  string      `json:"modified"`
}

// mapBookingStatus is total: every channel status maps to exactly one
// internal status, anything unknown lands on Confirmed.
func mapBookingStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "confirmed", "new":
		return models.ReservationStatusConfirmed
	case "request":
		return models.ReservationStatusRequested
	case "cancelled":
		return models.ReservationStatusCancelled
	case "black":
		return models.ReservationStatusBlocked
	case "inquiry":
		return models.ReservationStatusInquiry
	default:
		return models.ReservationStatusConfirmed
	}
}

// syncBookings pulls bookings modified since the checkpoint cursor. A
// per-record failure is counted and skipped; a transport-level failure
// aborts the whole batch with the checkpoint untouched.
func syncBookings(ctx context.Context, db *gorm.DB, client *channelClient, hotelId string, cp *models.SyncCheckpoint) SyncOutcome {
	outcome := SyncOutcome{HotelId: hotelId, SyncType: SyncTypeBookings}
	started := time.Now()

	modifiedFrom := time.Now().Add(-7 * 24 * time.Hour)
	if cp.LastBookingsModifiedFrom != nil {
		modifiedFrom = *cp.LastBookingsModifiedFrom
	}

	var maxModified time.Time
	var limits rateLimits
	page := 1

	for {
		params := url.Values{}
		params.Set("modifiedFrom", modifiedFrom.UTC().Format(time.RFC3339))
		params.Set("page", strconv.Itoa(page))
		params.Set("limit", "100")

		resp, err := client.Call(ctx, "GET", "/bookings", params, nil, models.TokenTypeRead)
		if resp != nil {
			limits = resp.Limits
		}
		if err != nil {
			outcome.State = SyncStateAborted
			outcome.Message = err.Error()
			_ = writeAudit(ctx, db, auditEntry{
				Operation:      "bookings_sync",
				HotelId:        hotelId,
				EntityType:     models.EntityTypeBooking,
				Status:         models.AuditStatusError,
				Cost:           limits.Cost,
				LimitRemaining: limits.FiveMinRemaining,
				LimitResetsIn:  limits.ResetsIn,
				DurationMs:     time.Since(started).Milliseconds(),
				ErrorMessage:   err.Error(),
			})
			return outcome
		}

		var parsed channelListResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			outcome.State = SyncStateAborted
			outcome.Message = "invalid bookings payload: " + err.Error()
			_ = writeAudit(ctx, db, auditEntry{
				Operation:      "bookings_sync",
				HotelId:        hotelId,
				EntityType:     models.EntityTypeBooking,
				Status:         models.AuditStatusError,
				Cost:           limits.Cost,
				LimitRemaining: limits.FiveMinRemaining,
				LimitResetsIn:  limits.ResetsIn,
				DurationMs:     time.Since(started).Milliseconds(),
				ErrorMessage:   outcome.Message,
			})
			return outcome
		}

		for _, raw := range parsed.Data {
			outcome.Processed++
			modified, err := processBookingRecord(ctx, db, hotelId, raw)
			if err != nil {
				outcome.Failed++
				_ = writeAudit(ctx, db, auditEntry{
					Operation:      "bookings_sync",
					HotelId:        hotelId,
					EntityType:     models.EntityTypeBooking,
					ExternalId:     bookingExternalId(raw),
					Status:         models.AuditStatusError,
					Cost:           limits.Cost,
					LimitRemaining: limits.FiveMinRemaining,
					LimitResetsIn:  limits.ResetsIn,
					Request:        raw,
					ErrorMessage:   err.Error(),
				})
				continue
			}
			outcome.Succeeded++
			if modified.After(maxModified) {
				maxModified = modified
			}
		}

		if !parsed.Pages.NextPageExists {
			break
		}
		page++
	}

	now := time.Now()
	if !maxModified.IsZero() {
		if err := advanceBookingsCheckpoint(ctx, db, hotelId, maxModified, now); err != nil {
			outcome.State = SyncStateAborted
			outcome.Message = "checkpoint advance failed: " + err.Error()
			return outcome
		}
	} else {
		_ = db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
			Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, hotelId).
			Update("last_bookings_sync_at", now).Error
	}

	status := models.AuditStatusSuccess
	outcome.State = SyncStateSuccess
	if outcome.Failed > 0 {
		status = models.AuditStatusPartial
		outcome.State = SyncStatePartial
		outcome.Message = fmt.Sprintf("%d of %d records failed", outcome.Failed, outcome.Processed)
	}
	_ = writeAudit(ctx, db, auditEntry{
		Operation:      "bookings_sync",
		HotelId:        hotelId,
		EntityType:     models.EntityTypeBooking,
		Status:         status,
		Cost:           limits.Cost,
		LimitRemaining: limits.FiveMinRemaining,
		LimitResetsIn:  limits.ResetsIn,
		DurationMs:     time.Since(started).Milliseconds(),
	})
	return outcome
}

func bookingExternalId(raw []byte) string {
	var peek struct {
		ID flexId `json:"id"`
	}
	_ = json.Unmarshal(raw, &peek)
	return peek.ID.String()
}

func processBookingRecord(ctx context.Context, db *gorm.DB, hotelId string, raw []byte) (time.Time, error) {
	var booking channelBooking
	if err := json.Unmarshal(raw, &booking); err != nil {
		return time.Time{}, &MappingError{EntityType: models.EntityTypeBooking, Message: "invalid payload: " + err.Error()}
	}

	extID := strings.TrimSpace(booking.ID.String())
	if extID == "" {
		return time.Time{}, &MappingError{EntityType: models.EntityTypeBooking, Message: "booking id missing"}
	}

	modified, err := time.Parse(time.RFC3339, strings.TrimSpace(booking.Modified))
	if err != nil {
		return time.Time{}, &MappingError{EntityType: models.EntityTypeBooking, ExternalId: extID, Message: "invalid modified timestamp"}
	}

	status := mapBookingStatus(booking.Status)

	mapping, err := resolveMapping(ctx, db, models.EntityTypeBooking, extID)
	if err != nil {
		return time.Time{}, err
	}

	if mapping != nil {
		if err := updateMappedReservation(ctx, db, mapping, booking, status); err != nil {
			return time.Time{}, err
		}
		_ = upsertMapping(ctx, db, models.EntityTypeBooking, extID, mapping.InternalId, hotelId, map[string]string{"modified": booking.Modified})
	} else {
		if err := createReservationFromBooking(ctx, db, hotelId, extID, booking, status); err != nil {
			return time.Time{}, err
		}
	}
	return modified, nil
}

func updateMappedReservation(ctx context.Context, db *gorm.DB, mapping *models.ExternalIdentityMapping, booking channelBooking, status string) error {
	internalID, err := strconv.Atoi(mapping.InternalId)
	if err != nil {
		return &MappingError{EntityType: models.EntityTypeBooking, ExternalId: mapping.ExternalId, Message: "invalid internal id"}
	}

	var reservation models.Reservation
	if err := db.WithContext(ctx).Where("id = ?", internalID).Take(&reservation).Error; err != nil {
		return &MappingError{EntityType: models.EntityTypeBooking, ExternalId: mapping.ExternalId, Message: "mapped reservation not found"}
	}

	updates := map[string]interface{}{
		"status": status,
	}
	if arrival, err := time.Parse("2006-01-02", booking.Arrival); err == nil {
		updates["arrival_date"] = arrival
	}
	if departure, err := time.Parse("2006-01-02", booking.Departure); err == nil {
		updates["departure_date"] = departure
	}
	if price := decimalFromNumber(booking.Price); !price.IsZero() {
		updates["total_amount"] = price
	}
	if booking.NumAdult > 0 {
		updates["adults"] = booking.NumAdult
	}
	if booking.NumChild > 0 {
		updates["children"] = booking.NumChild
	}
	if status == models.ReservationStatusCancelled && reservation.Status != models.ReservationStatusCancelled {
		updates["cancelled_at"] = time.Now()
	}
	return db.WithContext(ctx).Model(&reservation).Updates(updates).Error
}

func createReservationFromBooking(ctx context.Context, db *gorm.DB, hotelId string, extID string, booking channelBooking, status string) error {
	guestID, err := resolveOrCreateGuest(ctx, db, hotelId, models.Guest{
		FirstName: strings.TrimSpace(booking.FirstName),
		LastName:  strings.TrimSpace(booking.LastName),
		Email:     strings.TrimSpace(booking.Email),
		Phone:     strings.TrimSpace(booking.Phone),
		Country:   strings.TrimSpace(booking.Country),
	})
	if err != nil {
		return err
	}

	roomTypeID := 0
	if roomID := strings.TrimSpace(booking.RoomId.String()); roomID != "" {
		if roomMapping, err := resolveMapping(ctx, db, models.EntityTypeRoomType, roomID); err == nil && roomMapping != nil {
			if id, err := strconv.Atoi(roomMapping.InternalId); err == nil {
				roomTypeID = id
			}
		}
	}

	reservation := models.Reservation{
		HotelId:             hotelId,
		GuestId:             guestID,
		RoomTypeId:          roomTypeID,
		Status:              status,
		Source:              models.ReservationSourceChannel,
		SourceReservationId: extID,
		Adults:              booking.NumAdult,
		Children:            booking.NumChild,
		TotalAmount:         decimalFromNumber(booking.Price),
		Currency:            strings.TrimSpace(booking.Currency),
		Notes:               strings.TrimSpace(booking.Notes),
	}
	if arrival, err := time.Parse("2006-01-02", booking.Arrival); err == nil {
		reservation.ArrivalDate = arrival
	}
	if departure, err := time.Parse("2006-01-02", booking.Departure); err == nil {
		reservation.DepartureDate = departure
	}
	if status == models.ReservationStatusCancelled {
		now := time.Now()
		reservation.CancelledAt = &now
	}

	if err := db.WithContext(ctx).Create(&reservation).Error; err != nil {
		return err
	}
	return upsertMapping(ctx, db, models.EntityTypeBooking, extID, strconv.Itoa(reservation.ID), hotelId, map[string]string{"modified": booking.Modified})
}

func resolveOrCreateGuest(ctx context.Context, db *gorm.DB, hotelId string, input models.Guest) (int, error) {
	if input.Email != "" {
		var existing models.Guest
		err := db.WithContext(ctx).
			Where("hotel_id = ? AND email = ?", hotelId, input.Email).
			Take(&existing).Error
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}

	input.HotelId = hotelId
	if input.FirstName == "" && input.LastName == "" {
		input.LastName = "Channel Guest"
	}
	if err := db.WithContext(ctx).Create(&input).Error; err != nil {
		return 0, err
	}
	return input.ID, nil
}

// advanceBookingsCheckpoint is compare-and-only-advance: a concurrent
// writer that already advanced further wins, this write becomes a no-op on
// the cursor. The sync timestamp always moves.
func advanceBookingsCheckpoint(ctx context.Context, db *gorm.DB, hotelId string, watermark time.Time, syncedAt time.Time) error {
	if err := db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
		Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, hotelId).
		Where("last_bookings_modified_from IS NULL OR last_bookings_modified_from <= ?", watermark).
		Update("last_bookings_modified_from", watermark).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
		Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, hotelId).
		Update("last_bookings_sync_at", syncedAt).Error
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}
