package channelsync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/otelciro/pms_backend/models"
	"gorm.io/gorm"
)

// resolveMapping returns the mapping row or nil when the external entity
// has never been seen.
func resolveMapping(ctx context.Context, db *gorm.DB, entityType string, externalId string) (*models.ExternalIdentityMapping, error) {
	var mapping models.ExternalIdentityMapping
	err := db.WithContext(ctx).
		Where("provider = ? AND entity_type = ? AND external_id = ?",
			models.ProviderBeds24, entityType, externalId).
		Take(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

// upsertMapping is idempotent: an existing row never changes its
// internal_id ownership, only metadata and last_seen_at are refreshed.
// This is what makes replays and concurrent re-delivery safe.
func upsertMapping(ctx context.Context, db *gorm.DB, entityType string, externalId string, internalId string, hotelId string, metadata map[string]string) error {
	externalId = strings.TrimSpace(externalId)
	if externalId == "" {
		return &MappingError{EntityType: entityType, Message: "external id is empty"}
	}

	var metadataJSON []byte
	if len(metadata) > 0 {
		metadataJSON, _ = json.Marshal(metadata)
	}
	now := time.Now()

	existing, err := resolveMapping(ctx, db, entityType, externalId)
	if err != nil {
		return err
	}
	if existing != nil {
		updates := map[string]interface{}{
			"last_seen_at": now,
		}
		if metadataJSON != nil {
			updates["metadata_json"] = metadataJSON
		}
		return db.WithContext(ctx).Model(existing).Updates(updates).Error
	}

	mapping := models.ExternalIdentityMapping{
		Provider:     models.ProviderBeds24,
		EntityType:   entityType,
		ExternalId:   externalId,
		InternalId:   internalId,
		HotelId:      hotelId,
		LastSeenAt:   &now,
		MetadataJSON: metadataJSON,
	}
	return db.WithContext(ctx).Create(&mapping).Error
}
