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

	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type channelCalendarEntry struct {
	RoomId          flexId      `json:"roomId"`
	From            string      `json:"from"`
	To              string      `json:"to"`
	NumAvail        *int        `json:"numAvail"`
	Price1          json.Number `json:"price1"`
	MinStay         *int        `json:"minStay"`
	MaxStay         *int        `json:"maxStay"`
	ClosedArrival   *bool       `json:"closedArrival"`
	ClosedDeparture *bool       `json:"closedDeparture"`
	StopSell        *bool       `json:"stopSell"`
}

// syncCalendar pulls rates and availability for the full forward window.
// Calendar is always a full-window resync, there is no delta cursor: the
// provider can silently rewrite any date in the window.
func syncCalendar(ctx context.Context, db *gorm.DB, client *channelClient, hotelId string, settings SyncSettings) SyncOutcome {
	outcome := SyncOutcome{HotelId: hotelId, SyncType: SyncTypeCalendar}
	started := time.Now()

	windowStart := time.Now().Truncate(24 * time.Hour)
	windowEnd := windowStart.AddDate(0, 0, settings.CalendarWindowDays)

	roomIds, err := mappedExternalRoomIds(ctx, db, hotelId)
	if err != nil {
		outcome.State = SyncStateAborted
		outcome.Message = err.Error()
		return outcome
	}
	if len(roomIds) == 0 {
		outcome.State = SyncStateSkipped
		outcome.Message = "no room type mappings configured"
		return outcome
	}

	params := url.Values{}
	params.Set("startDate", windowStart.Format("2006-01-02"))
	params.Set("endDate", windowEnd.Format("2006-01-02"))
	params.Set("roomId", strings.Join(roomIds, ","))

	resp, err := client.Call(ctx, "GET", "/inventory/rooms/calendar", params, nil, models.TokenTypeRead)
	var limits rateLimits
	if resp != nil {
		limits = resp.Limits
	}
	if err != nil {
		outcome.State = SyncStateAborted
		outcome.Message = err.Error()
		_ = writeAudit(ctx, db, auditEntry{
			Operation:      "calendar_sync",
			HotelId:        hotelId,
			EntityType:     models.EntityTypeCalendar,
			Status:         models.AuditStatusError,
			Cost:           limits.Cost,
			LimitRemaining: limits.FiveMinRemaining,
			LimitResetsIn:  limits.ResetsIn,
			DurationMs:     time.Since(started).Milliseconds(),
			ErrorMessage:   err.Error(),
		})
		return outcome
	}

	var parsed struct {
		Success bool                   `json:"success"`
		Data    []channelCalendarEntry `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		outcome.State = SyncStateAborted
		outcome.Message = "invalid calendar payload: " + err.Error()
		return outcome
	}

	ratePlanID, err := defaultRatePlanId(ctx, db, hotelId)
	if err != nil {
		outcome.State = SyncStateAborted
		outcome.Message = err.Error()
		return outcome
	}

	for _, entry := range parsed.Data {
		outcome.Processed++
		err := applyCalendarEntry(ctx, db, hotelId, ratePlanID, entry)
		if errors.Is(err, errUnmappedRoom) {
			outcome.Skipped++
			config.GetLogger().WithFields(logrus.Fields{
				"module":   "channelsync",
				"hotel_id": hotelId,
				"room_id":  entry.RoomId.String(),
			}).Warn("calendar entry for unmapped room skipped")
			continue
		}
		if err != nil {
			outcome.Failed++
			_ = writeAudit(ctx, db, auditEntry{
				Operation:      "calendar_sync",
				HotelId:        hotelId,
				EntityType:     models.EntityTypeCalendar,
				ExternalId:     entry.RoomId.String(),
				Status:         models.AuditStatusError,
				Cost:           limits.Cost,
				LimitRemaining: limits.FiveMinRemaining,
				LimitResetsIn:  limits.ResetsIn,
				ErrorMessage:   err.Error(),
			})
			continue
		}
		outcome.Succeeded++
	}

	now := time.Now()
	_ = db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
		Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, hotelId).
		Updates(map[string]interface{}{
			"last_calendar_start":   windowStart,
			"last_calendar_end":     windowEnd,
			"last_calendar_sync_at": now,
		}).Error

	status := models.AuditStatusSuccess
	outcome.State = SyncStateSuccess
	if outcome.Failed > 0 {
		status = models.AuditStatusPartial
		outcome.State = SyncStatePartial
		outcome.Message = fmt.Sprintf("%d of %d entries failed", outcome.Failed, outcome.Processed)
	}
	_ = writeAudit(ctx, db, auditEntry{
		Operation:      "calendar_sync",
		HotelId:        hotelId,
		EntityType:     models.EntityTypeCalendar,
		Status:         status,
		Cost:           limits.Cost,
		LimitRemaining: limits.FiveMinRemaining,
		LimitResetsIn:  limits.ResetsIn,
		DurationMs:     time.Since(started).Milliseconds(),
	})
	return outcome
}

func mappedExternalRoomIds(ctx context.Context, db *gorm.DB, hotelId string) ([]string, error) {
	var mappings []models.ExternalIdentityMapping
	err := db.WithContext(ctx).
		Where("provider = ? AND entity_type = ? AND hotel_id = ?", models.ProviderBeds24, models.EntityTypeRoomType, hotelId).
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(mappings))
	for _, m := range mappings {
		ids = append(ids, m.ExternalId)
	}
	return ids, nil
}

func defaultRatePlanId(ctx context.Context, db *gorm.DB, hotelId string) (int, error) {
	var plan models.RatePlan
	err := db.WithContext(ctx).
		Where("hotel_id = ? AND is_default = ?", hotelId, true).
		Take(&plan).Error
	if err == nil {
		return plan.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	err = db.WithContext(ctx).Where("hotel_id = ?", hotelId).Order("id").Take(&plan).Error
	if err != nil {
		return 0, fmt.Errorf("no rate plan configured for hotel %s", hotelId)
	}
	return plan.ID, nil
}

// errUnmappedRoom marks calendar entries for rooms without a room-type
// mapping. The caller skips these with a warning instead of failing them.
var errUnmappedRoom = errors.New("room type not mapped")

// applyCalendarEntry fans a from..to range out into per-day rate and
// inventory rows.
func applyCalendarEntry(ctx context.Context, db *gorm.DB, hotelId string, ratePlanID int, entry channelCalendarEntry) error {
	extRoomID := strings.TrimSpace(entry.RoomId.String())
	mapping, err := resolveMapping(ctx, db, models.EntityTypeRoomType, extRoomID)
	if err != nil {
		return err
	}
	if mapping == nil {
		return errUnmappedRoom
	}
	roomTypeID, err := strconv.Atoi(mapping.InternalId)
	if err != nil {
		return &MappingError{EntityType: models.EntityTypeRoomType, ExternalId: extRoomID, Message: "invalid internal id"}
	}

	from, err := time.Parse("2006-01-02", entry.From)
	if err != nil {
		return &MappingError{EntityType: models.EntityTypeCalendar, ExternalId: extRoomID, Message: "invalid from date"}
	}
	to := from
	if entry.To != "" {
		if to, err = time.Parse("2006-01-02", entry.To); err != nil {
			return &MappingError{EntityType: models.EntityTypeCalendar, ExternalId: extRoomID, Message: "invalid to date"}
		}
	}
	if to.Before(from) {
		return &MappingError{EntityType: models.EntityTypeCalendar, ExternalId: extRoomID, Message: "date range reversed"}
	}

	price := decimalFromNumber(entry.Price1)

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !price.IsZero() {
			if err := upsertDailyRate(ctx, db, hotelId, roomTypeID, ratePlanID, day, entry); err != nil {
				return err
			}
		}
		if err := upsertRoomInventory(ctx, db, hotelId, roomTypeID, day, entry); err != nil {
			return err
		}
	}
	return nil
}

func upsertDailyRate(ctx context.Context, db *gorm.DB, hotelId string, roomTypeID int, ratePlanID int, day time.Time, entry channelCalendarEntry) error {
	price := decimalFromNumber(entry.Price1)

	var existing models.DailyRate
	err := db.WithContext(ctx).
		Where("hotel_id = ? AND room_type_id = ? AND rate_plan_id = ? AND date = ?", hotelId, roomTypeID, ratePlanID, day).
		Take(&existing).Error
	if err == nil {
		return db.WithContext(ctx).Model(&existing).Update("price", price).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return db.WithContext(ctx).Create(&models.DailyRate{
		HotelId:    hotelId,
		RoomTypeId: roomTypeID,
		RatePlanId: ratePlanID,
		Date:       day,
		Price:      price,
	}).Error
}

func upsertRoomInventory(ctx context.Context, db *gorm.DB, hotelId string, roomTypeID int, day time.Time, entry channelCalendarEntry) error {
	var existing models.RoomInventory
	err := db.WithContext(ctx).
		Where("hotel_id = ? AND room_type_id = ? AND date = ?", hotelId, roomTypeID, day).
		Take(&existing).Error

	updates := map[string]interface{}{}
	if entry.NumAvail != nil {
		updates["allotment"] = *entry.NumAvail
	}
	if entry.StopSell != nil {
		updates["stop_sell"] = *entry.StopSell
	}
	if entry.MinStay != nil {
		updates["min_stay"] = *entry.MinStay
	}
	if entry.MaxStay != nil {
		updates["max_stay"] = *entry.MaxStay
	}
	if entry.ClosedArrival != nil {
		updates["closed_arrival"] = *entry.ClosedArrival
	}
	if entry.ClosedDeparture != nil {
		updates["closed_departure"] = *entry.ClosedDeparture
	}

	if err == nil {
		if len(updates) == 0 {
			return nil
		}
		return db.WithContext(ctx).Model(&existing).Updates(updates).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	row := models.RoomInventory{HotelId: hotelId, RoomTypeId: roomTypeID, Date: day}
	if entry.NumAvail != nil {
		row.Allotment = *entry.NumAvail
	}
	if entry.StopSell != nil {
		row.StopSell = *entry.StopSell
	}
	if entry.MinStay != nil {
		row.MinStay = *entry.MinStay
	}
	if entry.MaxStay != nil {
		row.MaxStay = *entry.MaxStay
	}
	if entry.ClosedArrival != nil {
		row.ClosedArrival = *entry.ClosedArrival
	}
	if entry.ClosedDeparture != nil {
		row.ClosedDeparture = *entry.ClosedDeparture
	}
	return db.WithContext(ctx).Create(&row).Error
}
