package channelsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const recoveryErrorThreshold = 3

// triggerSyncFn indirection lets recovery tests observe re-triggered syncs.
var triggerSyncFn = func(ctx context.Context, db *gorm.DB, syncType string, hotelId string) error {
	if asyncSyncEnabled() {
		return PublishSyncRequest(ctx, SyncRequest{SyncType: syncType, HotelId: hotelId, ForceSync: true})
	}
	_, err := RunSync(ctx, db, SyncRequest{SyncType: syncType, HotelId: hotelId, ForceSync: true})
	return err
}

// RecoveryReport summarizes what a recovery run found and did.
type RecoveryReport struct {
	Action       string         `json:"action"`
	HotelId      string         `json:"hotelId,omitempty"`
	ErrorCount   int64          `json:"errorCount"`
	Patterns     []string       `json:"patterns,omitempty"`
	ActionsTaken []string       `json:"actionsTaken"`
	RepairCounts map[string]int `json:"repairCounts,omitempty"`
}

// errorGroup accumulates the 24h error trail for one (hotel, entity type).
type errorGroup struct {
	hotelId    string
	entityType string
	count      int
	authHits   int
	rateHits   int
}

// AutoRecovery inspects the recent error trail, grouped per (hotel, entity
// type), and applies the matching remedy per group. A group needs at least
// three errors to count: fewer is noise, not a pattern.
func AutoRecovery(ctx context.Context, db *gorm.DB, hotelId string) (*RecoveryReport, error) {
	report := &RecoveryReport{Action: "auto_recovery", HotelId: hotelId}
	since := time.Now().Add(-24 * time.Hour)

	var records []models.AuditRecord
	q := db.WithContext(ctx).
		Where("provider = ? AND status = ? AND created_at >= ?", models.ProviderBeds24, models.AuditStatusError, since)
	if hotelId != "" {
		q = q.Where("hotel_id = ?", hotelId)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	report.ErrorCount = int64(len(records))

	groups := map[string]*errorGroup{}
	var order []string
	for _, record := range records {
		key := record.HotelId + "/" + record.EntityType
		group, ok := groups[key]
		if !ok {
			group = &errorGroup{hotelId: record.HotelId, entityType: record.EntityType}
			groups[key] = group
			order = append(order, key)
		}
		group.count++
		message := strings.ToLower(record.ErrorMessage)
		switch {
		case strings.Contains(message, "auth") || strings.Contains(message, "token") || strings.Contains(message, "401"):
			group.authHits++
		case strings.Contains(message, "rate") || strings.Contains(message, "limit") || strings.Contains(message, "429"):
			group.rateHits++
		}
	}

	tokenRefreshed := false
	for _, key := range order {
		group := groups[key]
		if group.count < recoveryErrorThreshold {
			continue
		}

		if group.authHits > 0 {
			report.Patterns = append(report.Patterns, fmt.Sprintf("%s: auth failures (%d)", key, group.authHits))
			if !tokenRefreshed {
				tokenRefreshed = true
				if _, err := refreshTokenFn(ctx, db, models.TokenTypeRead); err != nil {
					report.ActionsTaken = append(report.ActionsTaken, "read token refresh failed: "+err.Error())
				} else {
					report.ActionsTaken = append(report.ActionsTaken, "refreshed read token")
				}
			}
		}

		rateLimited := false
		if group.rateHits > 0 && group.hotelId != "" {
			rateLimited = true
			report.Patterns = append(report.Patterns, fmt.Sprintf("%s: rate limit hits (%d)", key, group.rateHits))
			reason := fmt.Sprintf("auto recovery: %d rate limit errors in 24h", group.rateHits)
			if err := setSyncEnabled(ctx, db, group.hotelId, false, reason); err != nil {
				report.ActionsTaken = append(report.ActionsTaken, fmt.Sprintf("disable sync for %s failed: %v", group.hotelId, err))
			} else {
				report.ActionsTaken = append(report.ActionsTaken, "disabled sync for "+group.hotelId+" pending rate limit reset")
			}
		}

		// a hotel just disabled for rate limiting is not immediately re-run
		if !rateLimited && group.hotelId != "" {
			var syncType string
			switch group.entityType {
			case models.EntityTypeBooking:
				syncType = SyncTypeBookings
			case models.EntityTypeCalendar:
				syncType = SyncTypeCalendar
			}
			if syncType != "" {
				if err := triggerSyncFn(ctx, db, syncType, group.hotelId); err != nil {
					report.ActionsTaken = append(report.ActionsTaken, fmt.Sprintf("re-trigger %s sync for %s failed: %v", syncType, group.hotelId, err))
				} else {
					report.ActionsTaken = append(report.ActionsTaken, fmt.Sprintf("re-triggered %s sync for %s", syncType, group.hotelId))
				}
			}
		}
	}

	if len(report.ActionsTaken) == 0 {
		if report.ErrorCount < recoveryErrorThreshold {
			report.ActionsTaken = append(report.ActionsTaken, "no action, error count below threshold")
		} else {
			report.ActionsTaken = append(report.ActionsTaken, "no group crossed the threshold with a known pattern")
		}
	}

	config.GetLogger().WithFields(logrus.Fields{
		"module":      "channelsync",
		"hotel_id":    hotelId,
		"error_count": report.ErrorCount,
		"patterns":    report.Patterns,
	}).Info("auto recovery completed")
	return report, nil
}

// ManualRecovery applies the operator-selected remedies. Flags compose;
// each one reports independently.
func ManualRecovery(ctx context.Context, db *gorm.DB, action RecoveryAction) (*RecoveryReport, error) {
	report := &RecoveryReport{Action: "manual_recovery", HotelId: action.HotelId}
	opts := action.Options

	if opts.ResetTokens {
		for _, tokenType := range []string{models.TokenTypeRead, models.TokenTypeWrite} {
			if err := db.WithContext(ctx).
				Where("provider = ? AND token_type = ?", models.ProviderBeds24, tokenType).
				Delete(&models.ProviderToken{}).Error; err != nil {
				return nil, err
			}
			if refreshCredential(tokenType) == "" {
				report.ActionsTaken = append(report.ActionsTaken, "purged "+tokenType+" token, no refresh credential configured")
				continue
			}
			if _, err := refreshTokenFn(ctx, db, tokenType); err != nil {
				report.ActionsTaken = append(report.ActionsTaken, fmt.Sprintf("%s token refresh failed: %v", tokenType, err))
			} else {
				report.ActionsTaken = append(report.ActionsTaken, "purged and refreshed "+tokenType+" token")
			}
		}
	}

	if opts.ForceBootstrap {
		if err := db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
			Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, action.HotelId).
			Updates(map[string]interface{}{
				"bootstrap_completed":         false,
				"last_bookings_modified_from": nil,
			}).Error; err != nil {
			return nil, err
		}
		report.ActionsTaken = append(report.ActionsTaken, "bootstrap flag cleared, next sync re-imports")
	}

	if opts.ResyncFromDate != "" {
		from, err := time.Parse("2006-01-02", opts.ResyncFromDate)
		if err != nil {
			return nil, fmt.Errorf("invalid resyncFromDate %q", opts.ResyncFromDate)
		}
		// manual override bypasses the monotonic guard on purpose
		if err := db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
			Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, action.HotelId).
			Update("last_bookings_modified_from", from).Error; err != nil {
			return nil, err
		}
		report.ActionsTaken = append(report.ActionsTaken, "bookings cursor moved to "+opts.ResyncFromDate)
		if err := triggerSyncFn(ctx, db, SyncTypeBookings, action.HotelId); err != nil {
			report.ActionsTaken = append(report.ActionsTaken, "immediate resync failed: "+err.Error())
		} else {
			report.ActionsTaken = append(report.ActionsTaken, "triggered bookings sync from the rewound cursor")
		}
	}

	if opts.ClearErrors {
		q := db.WithContext(ctx).
			Where("provider = ? AND status = ?", models.ProviderBeds24, models.AuditStatusError)
		if action.HotelId != "" {
			q = q.Where("hotel_id = ?", action.HotelId)
		}
		if action.EntityType != "" {
			q = q.Where("entity_type = ?", action.EntityType)
		}
		result := q.Delete(&models.AuditRecord{})
		if result.Error != nil {
			return nil, result.Error
		}
		report.ActionsTaken = append(report.ActionsTaken, fmt.Sprintf("cleared %d error records", result.RowsAffected))
	}

	if opts.RequeueEvents {
		result := db.WithContext(ctx).Model(&models.InboundReservationEvent{}).
			Where("hotel_id = ? AND processing_status = ?", action.HotelId, models.EventStatusError).
			Update("processing_status", models.EventStatusPending)
		if result.Error != nil {
			return nil, result.Error
		}
		report.ActionsTaken = append(report.ActionsTaken, fmt.Sprintf("requeued %d errored events", result.RowsAffected))
	}

	if len(report.ActionsTaken) == 0 {
		report.ActionsTaken = append(report.ActionsTaken, "no recovery option selected")
	}
	return report, nil
}

// ResetSyncState returns a hotel's checkpoint to a clean pre-bootstrap
// slate and disables sync: the hotel stays quiet until an operator
// re-enables it for a fresh bootstrap. Mappings and audit history stay.
func ResetSyncState(ctx context.Context, db *gorm.DB, hotelId string) (*RecoveryReport, error) {
	report := &RecoveryReport{Action: "reset_sync_state", HotelId: hotelId}

	if err := db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
		Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, hotelId).
		Updates(map[string]interface{}{
			"bootstrap_completed":         false,
			"sync_enabled":                false,
			"disabled_reason":             "sync state reset, awaiting fresh bootstrap",
			"last_bookings_modified_from": nil,
			"last_bookings_sync_at":       nil,
			"last_calendar_start":         nil,
			"last_calendar_end":           nil,
			"last_calendar_sync_at":       nil,
		}).Error; err != nil {
		return nil, err
	}
	report.ActionsTaken = append(report.ActionsTaken, "checkpoint reset, sync disabled until re-enabled")
	return report, nil
}

// RepairDataIntegrity scans for the known inconsistency classes and fixes
// each in place, reporting per-category counts.
func RepairDataIntegrity(ctx context.Context, db *gorm.DB, hotelId string) (*RecoveryReport, error) {
	report := &RecoveryReport{
		Action:       "repair_data_integrity",
		HotelId:      hotelId,
		RepairCounts: map[string]int{},
	}

	orphaned, err := repairOrphanedMappings(ctx, db, hotelId)
	if err != nil {
		return nil, err
	}
	report.RepairCounts["orphaned_mappings"] = orphaned

	dupMappings, err := repairDuplicateMappings(ctx, db, hotelId)
	if err != nil {
		return nil, err
	}
	report.RepairCounts["duplicate_mappings"] = dupMappings

	staleCheckpoints, err := repairStaleCheckpoints(ctx, db, hotelId)
	if err != nil {
		return nil, err
	}
	report.RepairCounts["stale_checkpoints"] = staleCheckpoints

	expiredTokens, err := repairExpiredTokens(ctx, db)
	if err != nil {
		return nil, err
	}
	report.RepairCounts["expired_tokens"] = expiredTokens

	duplicates, err := repairDuplicateReservations(ctx, db, hotelId)
	if err != nil {
		return nil, err
	}
	report.RepairCounts["duplicate_reservations"] = duplicates

	stuck, err := repairStuckEvents(ctx, db, hotelId)
	if err != nil {
		return nil, err
	}
	report.RepairCounts["stuck_events"] = stuck

	rooms, err := repairRoomAssignments(ctx, db, hotelId)
	if err != nil {
		return nil, err
	}
	report.RepairCounts["stale_room_assignments"] = rooms

	total := 0
	for _, n := range report.RepairCounts {
		total += n
	}
	report.ActionsTaken = append(report.ActionsTaken, fmt.Sprintf("repaired %d inconsistencies", total))
	return report, nil
}

// repairOrphanedMappings removes identity mappings whose internal entity no
// longer exists.
func repairOrphanedMappings(ctx context.Context, db *gorm.DB, hotelId string) (int, error) {
	var mappings []models.ExternalIdentityMapping
	q := db.WithContext(ctx).Where("provider = ?", models.ProviderBeds24)
	if hotelId != "" {
		q = q.Where("hotel_id = ?", hotelId)
	}
	if err := q.Find(&mappings).Error; err != nil {
		return 0, err
	}

	removed := 0
	for _, mapping := range mappings {
		var target interface{}
		switch mapping.EntityType {
		case models.EntityTypeBooking:
			target = &models.Reservation{}
		case models.EntityTypeRoomType:
			target = &models.RoomType{}
		case models.EntityTypeGuest:
			target = &models.Guest{}
		default:
			continue
		}
		var count int64
		if err := db.WithContext(ctx).Model(target).
			Where("id = ?", mapping.InternalId).Count(&count).Error; err != nil {
			return removed, err
		}
		if count == 0 {
			if err := db.WithContext(ctx).Delete(&models.ExternalIdentityMapping{}, mapping.ID).Error; err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// repairDuplicateMappings collapses duplicate (entity_type, external_id)
// mapping rows down to the most recently created one. Duplicates appear
// when concurrent deliveries race the resolve-then-create upsert.
func repairDuplicateMappings(ctx context.Context, db *gorm.DB, hotelId string) (int, error) {
	var mappings []models.ExternalIdentityMapping
	q := db.WithContext(ctx).Where("provider = ?", models.ProviderBeds24)
	if hotelId != "" {
		q = q.Where("hotel_id = ?", hotelId)
	}
	if err := q.Order("created_at DESC, id DESC").Find(&mappings).Error; err != nil {
		return 0, err
	}

	seen := map[string]bool{}
	removed := 0
	for _, mapping := range mappings {
		key := mapping.EntityType + "/" + mapping.ExternalId
		if !seen[key] {
			seen[key] = true
			continue
		}
		if err := db.WithContext(ctx).Delete(&models.ExternalIdentityMapping{}, mapping.ID).Error; err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// repairStaleCheckpoints deletes checkpoints of hotels that no longer
// exist.
func repairStaleCheckpoints(ctx context.Context, db *gorm.DB, hotelId string) (int, error) {
	var checkpoints []models.SyncCheckpoint
	q := db.WithContext(ctx).Where("provider = ?", models.ProviderBeds24)
	if hotelId != "" {
		q = q.Where("hotel_id = ?", hotelId)
	}
	if err := q.Find(&checkpoints).Error; err != nil {
		return 0, err
	}

	removed := 0
	for _, cp := range checkpoints {
		var count int64
		if err := db.WithContext(ctx).Model(&models.Hotel{}).
			Where("id = ?", cp.HotelId).Count(&count).Error; err != nil {
			return removed, err
		}
		if count == 0 {
			if err := db.WithContext(ctx).Delete(&models.SyncCheckpoint{}, cp.ID).Error; err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// repairExpiredTokens drops stored tokens that are past their expiry; the
// next caller forces a fresh exchange.
func repairExpiredTokens(ctx context.Context, db *gorm.DB) (int, error) {
	result := db.WithContext(ctx).
		Where("provider = ? AND expires_at IS NOT NULL AND expires_at < ?", models.ProviderBeds24, time.Now()).
		Delete(&models.ProviderToken{})
	return int(result.RowsAffected), result.Error
}

// repairDuplicateReservations keeps the most recent reservation per
// channel reservation id and cancels the rest.
func repairDuplicateReservations(ctx context.Context, db *gorm.DB, hotelId string) (int, error) {
	var reservations []models.Reservation
	q := db.WithContext(ctx).
		Where("source = ? AND source_reservation_id <> ''", models.ReservationSourceChannel)
	if hotelId != "" {
		q = q.Where("hotel_id = ?", hotelId)
	}
	if err := q.Order("updated_at DESC").Find(&reservations).Error; err != nil {
		return 0, err
	}

	seen := map[string]bool{}
	cancelled := 0
	for _, reservation := range reservations {
		key := reservation.HotelId + "/" + reservation.SourceReservationId
		if !seen[key] {
			seen[key] = true
			continue
		}
		if reservation.Status == models.ReservationStatusCancelled {
			continue
		}
		if err := db.WithContext(ctx).Model(&models.Reservation{}).
			Where("id = ?", reservation.ID).
			Updates(map[string]interface{}{
				"status":       models.ReservationStatusCancelled,
				"cancelled_at": time.Now(),
				"notes":        strings.TrimSpace(reservation.Notes + "\nCancelled: duplicate of newer channel reservation"),
			}).Error; err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// repairStuckEvents fails out webhook events that have been pending for
// over an hour so recovery can requeue them deliberately.
func repairStuckEvents(ctx context.Context, db *gorm.DB, hotelId string) (int, error) {
	cutoff := time.Now().Add(-1 * time.Hour)
	q := db.WithContext(ctx).Model(&models.InboundReservationEvent{}).
		Where("processing_status = ? AND created_at < ?", models.EventStatusPending, cutoff)
	if hotelId != "" {
		q = q.Where("hotel_id = ?", hotelId)
	}
	result := q.Updates(map[string]interface{}{
		"processing_status": models.EventStatusError,
		"error_message":     "stuck in pending for over an hour",
	})
	return int(result.RowsAffected), result.Error
}

// repairRoomAssignments releases rooms still held by cancelled
// reservations.
func repairRoomAssignments(ctx context.Context, db *gorm.DB, hotelId string) (int, error) {
	var reservations []models.Reservation
	q := db.WithContext(ctx).
		Where("status = ? AND room_id IS NOT NULL", models.ReservationStatusCancelled)
	if hotelId != "" {
		q = q.Where("hotel_id = ?", hotelId)
	}
	if err := q.Find(&reservations).Error; err != nil {
		return 0, err
	}

	released := 0
	for _, reservation := range reservations {
		if err := db.WithContext(ctx).Model(&models.Room{}).
			Where("id = ? AND status = ?", *reservation.RoomId, models.RoomStatusReserved).
			Update("status", models.RoomStatusAvailable).Error; err != nil {
			return released, err
		}
		if err := db.WithContext(ctx).Model(&models.Reservation{}).
			Where("id = ?", reservation.ID).
			Update("room_id", nil).Error; err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

func setSyncEnabled(ctx context.Context, db *gorm.DB, hotelId string, enabled bool, reason string) error {
	return db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
		Where("provider = ? AND hotel_id = ?", models.ProviderBeds24, hotelId).
		Updates(map[string]interface{}{
			"sync_enabled":    enabled,
			"disabled_reason": reason,
		}).Error
}
