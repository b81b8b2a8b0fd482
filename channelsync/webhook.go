package channelsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/models"
	"github.com/otelciro/pms_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func mapWebhookStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "confirmed":
		return models.ReservationStatusConfirmed
	case "pending":
		return models.ReservationStatusTentative
	case "cancelled":
		return models.ReservationStatusCancelled
	case "no_show":
		return models.ReservationStatusNoShow
	case "checked_in":
		return models.ReservationStatusInHouse
	case "checked_out":
		return models.ReservationStatusCheckedOut
	default:
		return models.ReservationStatusConfirmed
	}
}

// ProcessWebhookEvent handles one inbound reservation push. The event is
// persisted before processing so a failure downstream never loses the
// payload; the stored row is what recovery replays.
func ProcessWebhookEvent(ctx context.Context, db *gorm.DB, event WebhookEvent) WebhookResult {
	if err := validate.Struct(event); err != nil {
		return WebhookResult{Success: false, Message: "invalid event: " + err.Error()}
	}

	conn, err := activeConnection(ctx, db, event.Data.HotelId, event.ChannelId)
	if err != nil {
		return WebhookResult{Success: false, Message: err.Error()}
	}
	if conn.PushCredentialHash != "" {
		if err := utils.ComparePassword(conn.PushCredentialHash, event.Credential); err != nil {
			return WebhookResult{Success: false, Message: "invalid push credential"}
		}
	}

	record, err := persistInboundEvent(ctx, db, event)
	if err != nil {
		return WebhookResult{Success: false, Message: "event persist failed: " + err.Error()}
	}

	reservationID, err := applyWebhookAction(ctx, db, conn, event)
	if err != nil {
		markEventError(ctx, db, record, err)
		return WebhookResult{Success: false, EventId: record.ID, Message: err.Error()}
	}

	markEventProcessed(ctx, db, record, reservationID)
	return WebhookResult{Success: true, EventId: record.ID, ReservationId: reservationID}
}

func activeConnection(ctx context.Context, db *gorm.DB, hotelId string, channelId string) (*models.ChannelConnection, error) {
	var conn models.ChannelConnection
	err := db.WithContext(ctx).
		Where("hotel_id = ? AND channel_id = ?", hotelId, channelId).
		Take(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no channel connection for hotel %s and channel %s", hotelId, channelId)
	}
	if err != nil {
		return nil, err
	}
	if !conn.Active {
		return nil, fmt.Errorf("channel connection inactive for hotel %s and channel %s", hotelId, channelId)
	}
	return &conn, nil
}

func persistInboundEvent(ctx context.Context, db *gorm.DB, event WebhookEvent) (*models.InboundReservationEvent, error) {
	guestJSON, _ := json.Marshal(event.Data.Guest)
	bookingJSON, _ := json.Marshal(event.Data)
	raw := []byte(event.Raw)
	if len(raw) == 0 {
		raw = bookingJSON
	}

	record := models.InboundReservationEvent{
		ChannelId:            event.ChannelId,
		ChannelReservationId: event.ReservationId,
		HotelId:              event.Data.HotelId,
		Action:               event.Action,
		GuestJSON:            RedactJSON(guestJSON),
		BookingJSON:          RedactJSON(bookingJSON),
		RawJSON:              RedactJSON(raw),
		ProcessingStatus:     models.EventStatusPending,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func markEventProcessed(ctx context.Context, db *gorm.DB, record *models.InboundReservationEvent, reservationID int) {
	now := time.Now()
	updates := map[string]interface{}{
		"processing_status": models.EventStatusProcessed,
		"processed_at":      now,
	}
	if reservationID != 0 {
		updates["reservation_id"] = reservationID
	}
	_ = db.WithContext(ctx).Model(record).Updates(updates).Error
}

func markEventError(ctx context.Context, db *gorm.DB, record *models.InboundReservationEvent, cause error) {
	now := time.Now()
	_ = db.WithContext(ctx).Model(record).Updates(map[string]interface{}{
		"processing_status": models.EventStatusError,
		"error_message":     cause.Error(),
		"processed_at":      now,
	}).Error

	config.GetLogger().WithFields(logrus.Fields{
		"module":                 "channelsync",
		"channel_id":             record.ChannelId,
		"channel_reservation_id": record.ChannelReservationId,
		"hotel_id":               record.HotelId,
		"action":                 record.Action,
	}).Error(cause.Error())
}

func applyWebhookAction(ctx context.Context, db *gorm.DB, conn *models.ChannelConnection, event WebhookEvent) (int, error) {
	existing, err := findChannelReservation(ctx, db, event.Data.HotelId, event.ReservationId)
	if err != nil {
		return 0, err
	}

	switch event.Action {
	case "create":
		if existing != nil {
			// replayed create: apply as update, never duplicate
			return existing.ID, updateChannelReservation(ctx, db, existing, event.Data)
		}
		return createChannelReservation(ctx, db, conn, event)
	case "update":
		if existing == nil {
			return 0, fmt.Errorf("update for unknown reservation %s", event.ReservationId)
		}
		return existing.ID, updateChannelReservation(ctx, db, existing, event.Data)
	case "cancel":
		if existing == nil {
			return 0, fmt.Errorf("cancel for unknown reservation %s", event.ReservationId)
		}
		return existing.ID, cancelChannelReservation(ctx, db, existing, event.Data)
	default:
		return 0, fmt.Errorf("unsupported action %q", event.Action)
	}
}

func findChannelReservation(ctx context.Context, db *gorm.DB, hotelId string, channelReservationId string) (*models.Reservation, error) {
	var reservation models.Reservation
	err := db.WithContext(ctx).
		Where("hotel_id = ? AND source = ? AND source_reservation_id = ?", hotelId, models.ReservationSourceChannel, channelReservationId).
		Take(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func createChannelReservation(ctx context.Context, db *gorm.DB, conn *models.ChannelConnection, event WebhookEvent) (int, error) {
	data := event.Data

	guestID, err := resolveOrCreateGuest(ctx, db, data.HotelId, models.Guest{
		FirstName: strings.TrimSpace(data.Guest.FirstName),
		LastName:  strings.TrimSpace(data.Guest.LastName),
		Email:     strings.TrimSpace(data.Guest.Email),
		Phone:     strings.TrimSpace(data.Guest.Phone),
		Country:   strings.TrimSpace(data.Guest.Country),
	})
	if err != nil {
		return 0, err
	}

	roomTypeID, err := resolveRoomType(ctx, db, conn, data.RoomTypeCode)
	if err != nil {
		return 0, err
	}
	ratePlanID := resolveRatePlan(ctx, db, conn, data.RatePlanCode)

	reservation := models.Reservation{
		HotelId:             data.HotelId,
		GuestId:             guestID,
		RoomTypeId:          roomTypeID,
		RatePlanId:          ratePlanID,
		Status:              mapWebhookStatus(data.Status),
		Source:              models.ReservationSourceChannel,
		SourceReservationId: event.ReservationId,
		Adults:              data.Adults,
		Children:            data.Children,
		TotalAmount:         decimalFromNumber(data.TotalAmount),
		Currency:            strings.TrimSpace(data.Currency),
		Notes:               strings.TrimSpace(data.Notes),
	}
	if arrival, err := time.Parse("2006-01-02", data.Arrival); err == nil {
		reservation.ArrivalDate = arrival
	}
	if departure, err := time.Parse("2006-01-02", data.Departure); err == nil {
		reservation.DepartureDate = departure
	}

	if roomID := assignRoom(ctx, db, data.HotelId, roomTypeID); roomID != 0 {
		reservation.RoomId = &roomID
	}

	if err := db.WithContext(ctx).Create(&reservation).Error; err != nil {
		return 0, err
	}

	for _, charge := range data.Charges {
		item := models.ChargeItem{
			ReservationId: reservation.ID,
			HotelId:       data.HotelId,
			Description:   strings.TrimSpace(charge.Description),
			Amount:        decimalFromNumber(charge.Amount),
			Currency:      strings.TrimSpace(charge.Currency),
			PostedAt:      time.Now(),
		}
		if err := db.WithContext(ctx).Create(&item).Error; err != nil {
			return reservation.ID, err
		}
	}
	return reservation.ID, nil
}

// updateChannelReservation applies only the fields the payload carries; a
// dates-only update must not touch the reservation's status.
func updateChannelReservation(ctx context.Context, db *gorm.DB, reservation *models.Reservation, data WebhookData) error {
	updates := map[string]interface{}{}
	if strings.TrimSpace(data.Status) != "" {
		status := mapWebhookStatus(data.Status)
		updates["status"] = status
		if status == models.ReservationStatusCancelled && reservation.Status != models.ReservationStatusCancelled {
			updates["cancelled_at"] = time.Now()
		}
	}
	if arrival, err := time.Parse("2006-01-02", data.Arrival); err == nil {
		updates["arrival_date"] = arrival
	}
	if departure, err := time.Parse("2006-01-02", data.Departure); err == nil {
		updates["departure_date"] = departure
	}
	if amount := decimalFromNumber(data.TotalAmount); !amount.IsZero() {
		updates["total_amount"] = amount
	}
	if data.Adults > 0 {
		updates["adults"] = data.Adults
	}
	if data.Children > 0 {
		updates["children"] = data.Children
	}
	if notes := strings.TrimSpace(data.Notes); notes != "" {
		updates["notes"] = notes
	}
	if len(updates) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(reservation).Updates(updates).Error
}

func cancelChannelReservation(ctx context.Context, db *gorm.DB, reservation *models.Reservation, data WebhookData) error {
	updates := map[string]interface{}{
		"status":       models.ReservationStatusCancelled,
		"cancelled_at": time.Now(),
	}
	if reason := strings.TrimSpace(data.CancelReason); reason != "" {
		updates["notes"] = strings.TrimSpace(reservation.Notes + "\nCancelled: " + reason)
	}
	if err := db.WithContext(ctx).Model(reservation).Updates(updates).Error; err != nil {
		return err
	}

	if reservation.RoomId != nil {
		if err := db.WithContext(ctx).Model(&models.Room{}).
			Where("id = ? AND status = ?", *reservation.RoomId, models.RoomStatusReserved).
			Update("status", models.RoomStatusAvailable).Error; err != nil {
			return err
		}
		if err := db.WithContext(ctx).Model(reservation).Update("room_id", nil).Error; err != nil {
			return err
		}
	}
	return nil
}

// resolveRoomType tries the connection's configured code mapping, then an
// exact code match, then falls back to the hotel's first room type. The
// fallback is deliberate: a reservation on the wrong room type beats a
// dropped reservation, and the warning makes it findable.
func resolveRoomType(ctx context.Context, db *gorm.DB, conn *models.ChannelConnection, code string) (int, error) {
	code = strings.TrimSpace(code)

	if code != "" {
		var mapping models.ChannelCodeMapping
		err := db.WithContext(ctx).
			Where("hotel_id = ? AND channel_id = ? AND kind = ? AND channel_code = ?",
				conn.HotelId, conn.ChannelId, models.MappingKindRoomType, code).
			Take(&mapping).Error
		if err == nil {
			return mapping.InternalId, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}

		var roomType models.RoomType
		err = db.WithContext(ctx).
			Where("hotel_id = ? AND code = ?", conn.HotelId, code).
			Take(&roomType).Error
		if err == nil {
			return roomType.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}

	var fallback models.RoomType
	err := db.WithContext(ctx).
		Where("hotel_id = ?", conn.HotelId).Order("id").Take(&fallback).Error
	if err != nil {
		return 0, fmt.Errorf("no room type available for hotel %s", conn.HotelId)
	}

	config.GetLogger().WithFields(logrus.Fields{
		"module":       "channelsync",
		"hotel_id":     conn.HotelId,
		"channel_id":   conn.ChannelId,
		"room_code":    code,
		"room_type_id": fallback.ID,
	}).Warn("unmapped room type code, using first configured room type")
	return fallback.ID, nil
}

func resolveRatePlan(ctx context.Context, db *gorm.DB, conn *models.ChannelConnection, code string) int {
	code = strings.TrimSpace(code)

	if code != "" {
		var mapping models.ChannelCodeMapping
		err := db.WithContext(ctx).
			Where("hotel_id = ? AND channel_id = ? AND kind = ? AND channel_code = ?",
				conn.HotelId, conn.ChannelId, models.MappingKindRatePlan, code).
			Take(&mapping).Error
		if err == nil {
			return mapping.InternalId
		}

		var plan models.RatePlan
		if err := db.WithContext(ctx).
			Where("hotel_id = ? AND code = ?", conn.HotelId, code).
			Take(&plan).Error; err == nil {
			return plan.ID
		}
	}

	if id, err := defaultRatePlanId(ctx, db, conn.HotelId); err == nil {
		return id
	}
	return 0
}

func assignRoom(ctx context.Context, db *gorm.DB, hotelId string, roomTypeID int) int {
	var room models.Room
	err := db.WithContext(ctx).
		Where("hotel_id = ? AND room_type_id = ? AND status = ?", hotelId, roomTypeID, models.RoomStatusAvailable).
		Order("number").
		Take(&room).Error
	if err != nil {
		return 0
	}
	if err := db.WithContext(ctx).Model(&room).Update("status", models.RoomStatusReserved).Error; err != nil {
		return 0
	}
	return room.ID
}
