package channelsync

import (
	"context"
	"errors"
	"time"

	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunSync executes a delta sync request. An empty HotelId fans out to
// every hotel with an enabled checkpoint; outcomes are returned per
// (hotel, entity type) pair.
func RunSync(ctx context.Context, db *gorm.DB, req SyncRequest) ([]SyncOutcome, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	hotelIds, err := resolveSyncTargets(ctx, db, req.HotelId)
	if err != nil {
		return nil, err
	}

	client := newChannelClient(ctx, db)
	var outcomes []SyncOutcome
	for _, hotelId := range hotelIds {
		outcomes = append(outcomes, syncHotel(ctx, db, client, hotelId, req.SyncType, req.ForceSync)...)
	}
	return outcomes, nil
}

func resolveSyncTargets(ctx context.Context, db *gorm.DB, hotelId string) ([]string, error) {
	if hotelId != "" {
		return []string{hotelId}, nil
	}
	var checkpoints []models.SyncCheckpoint
	err := db.WithContext(ctx).
		Where("provider = ? AND sync_enabled = ?", models.ProviderBeds24, true).
		Find(&checkpoints).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(checkpoints))
	for _, cp := range checkpoints {
		ids = append(ids, cp.HotelId)
	}
	return ids, nil
}

func syncHotel(ctx context.Context, db *gorm.DB, client *channelClient, hotelId string, syncType string, force bool) []SyncOutcome {
	cp, err := getOrCreateCheckpoint(ctx, db, hotelId)
	if err != nil {
		return []SyncOutcome{{HotelId: hotelId, SyncType: syncType, State: SyncStateAborted, Message: err.Error()}}
	}

	if !cp.SyncEnabled && !force {
		return []SyncOutcome{{
			HotelId:  hotelId,
			SyncType: syncType,
			State:    SyncStateSkipped,
			Message:  "sync disabled: " + cp.DisabledReason,
		}}
	}

	settings := DecodeSyncSettings(cp.SettingsJSON)

	if !cp.BootstrapCompleted {
		if err := bootstrapHotel(ctx, db, cp, settings); err != nil {
			return []SyncOutcome{{HotelId: hotelId, SyncType: syncType, State: SyncStateAborted, Message: "bootstrap failed: " + err.Error()}}
		}
	}

	var outcomes []SyncOutcome
	now := time.Now()

	if syncType == SyncTypeBookings || syncType == SyncTypeAll {
		interval := time.Duration(settings.BookingsIntervalMinutes) * time.Minute
		if !force && cp.LastBookingsSyncAt != nil && now.Sub(*cp.LastBookingsSyncAt) < interval {
			outcomes = append(outcomes, SyncOutcome{
				HotelId:  hotelId,
				SyncType: SyncTypeBookings,
				State:    SyncStateSkipped,
				Message:  "synced within interval",
			})
		} else {
			outcomes = append(outcomes, syncBookings(ctx, db, client, hotelId, cp))
		}
	}

	if syncType == SyncTypeCalendar || syncType == SyncTypeAll {
		interval := time.Duration(settings.CalendarIntervalHours) * time.Hour
		if !force && cp.LastCalendarSyncAt != nil && now.Sub(*cp.LastCalendarSyncAt) < interval {
			outcomes = append(outcomes, SyncOutcome{
				HotelId:  hotelId,
				SyncType: SyncTypeCalendar,
				State:    SyncStateSkipped,
				Message:  "synced within interval",
			})
		} else {
			outcomes = append(outcomes, syncCalendar(ctx, db, client, hotelId, settings))
		}
	}

	for _, outcome := range outcomes {
		if outcome.State == SyncStateAborted {
			config.GetLogger().WithFields(logrus.Fields{
				"module":    "channelsync",
				"hotel_id":  outcome.HotelId,
				"sync_type": outcome.SyncType,
			}).Error(outcome.Message)
		}
	}
	return outcomes
}

func getOrCreateCheckpoint(ctx context.Context, db *gorm.DB, hotelId string) (*models.SyncCheckpoint, error) {
	var cp models.SyncCheckpoint
	err := db.WithContext(ctx).
		Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, hotelId).
		Take(&cp).Error
	if err == nil {
		return &cp, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cp = models.SyncCheckpoint{
		Provider:     models.ProviderBeds24,
		HotelId:      hotelId,
		SyncEnabled:  true,
		SettingsJSON: EncodeSyncSettings(DefaultSyncSettings()),
	}
	if err := db.WithContext(ctx).Create(&cp).Error; err != nil {
		return nil, err
	}
	return &cp, nil
}

// bootstrapHotel seeds the bookings cursor so the first delta sync
// imports the configured backfill window instead of the default 7 days.
// The flag flips once; a later cursor reset does not re-trigger it.
func bootstrapHotel(ctx context.Context, db *gorm.DB, cp *models.SyncCheckpoint, settings SyncSettings) error {
	if cp.LastBookingsModifiedFrom == nil {
		seed := time.Now().AddDate(0, 0, -settings.BootstrapDays)
		if err := db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
			Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, cp.HotelId).
			Update("last_bookings_modified_from", seed).Error; err != nil {
			return err
		}
		cp.LastBookingsModifiedFrom = &seed
	}

	if err := db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
		Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, cp.HotelId).
		Update("bootstrap_completed", true).Error; err != nil {
		return err
	}
	cp.BootstrapCompleted = true

	config.GetLogger().WithFields(logrus.Fields{
		"module":         "channelsync",
		"hotel_id":       cp.HotelId,
		"bootstrap_days": settings.BootstrapDays,
	}).Info("bootstrap cursor seeded")
	return nil
}
