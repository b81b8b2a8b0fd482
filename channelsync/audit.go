package channelsync

import (
	"context"
	"time"

	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/models"
	"github.com/otelciro/pms_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// auditEntry is the write-side shape of an AuditRecord. Payloads are
// redacted before they touch the database; the raw bytes never persist.
type auditEntry struct {
	Operation      string
	HotelId        string
	EntityType     string
	ExternalId     string
	Status         string
	Cost           int
	LimitRemaining int
	LimitResetsIn  int
	DurationMs     int64
	Request        []byte
	Response       []byte
	ErrorMessage   string
}

func writeAudit(ctx context.Context, db *gorm.DB, entry auditEntry) error {
	traceId, _ := utils.GetCorrelationIdFromContext(ctx)

	record := models.AuditRecord{
		Provider:       models.ProviderBeds24,
		Operation:      entry.Operation,
		HotelId:        entry.HotelId,
		EntityType:     entry.EntityType,
		ExternalId:     entry.ExternalId,
		Status:         entry.Status,
		Cost:           entry.Cost,
		LimitRemaining: entry.LimitRemaining,
		LimitResetsIn:  entry.LimitResetsIn,
		DurationMs:     entry.DurationMs,
		RequestJSON:    RedactJSON(entry.Request),
		ResponseJSON:   RedactJSON(entry.Response),
		ErrorMessage:   entry.ErrorMessage,
		TraceId:        traceId,
	}
	err := db.WithContext(ctx).Create(&record).Error

	if entry.Status == models.AuditStatusError {
		if logger := config.GetLogger(); logger != nil {
			logger.WithFields(logrus.Fields{
				"module":      "channelsync",
				"operation":   entry.Operation,
				"hotel_id":    entry.HotelId,
				"entity_type": entry.EntityType,
				"external_id": entry.ExternalId,
				"trace_id":    traceId,
			}).Error(entry.ErrorMessage)
		}
	}
	return err
}

func auditErrorCount(ctx context.Context, db *gorm.DB, hotelId string, since time.Time) (int64, error) {
	var count int64
	q := db.WithContext(ctx).Model(&models.AuditRecord{}).
		Where("provider = ? AND status = ? AND created_at >= ?", models.ProviderBeds24, models.AuditStatusError, since)
	if hotelId != "" {
		q = q.Where("hotel_id = ?", hotelId)
	}
	err := q.Count(&count).Error
	return count, err
}
