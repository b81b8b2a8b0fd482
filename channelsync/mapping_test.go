package channelsync

import (
	"context"
	"testing"

	"github.com/otelciro/pms_backend/models"
)

func TestUpsertMappingNeverChangesInternalId(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := upsertMapping(ctx, db, models.EntityTypeBooking, "B100", "1", "hotel-1", nil); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// replay with a different internal id must not steal ownership
	if err := upsertMapping(ctx, db, models.EntityTypeBooking, "B100", "999", "hotel-1", map[string]string{"modified": "2026-08-01T00:00:00Z"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	mapping, err := resolveMapping(ctx, db, models.EntityTypeBooking, "B100")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if mapping == nil {
		t.Fatal("mapping not found")
	}
	if mapping.InternalId != "1" {
		t.Errorf("internal id changed on replay: got %q, want %q", mapping.InternalId, "1")
	}
	if mapping.LastSeenAt == nil {
		t.Error("last_seen_at not set")
	}
	if len(mapping.MetadataJSON) == 0 {
		t.Error("metadata not refreshed on replay")
	}

	var count int64
	db.Model(&models.ExternalIdentityMapping{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 mapping row, got %d", count)
	}
}

func TestUpsertMappingRejectsEmptyExternalId(t *testing.T) {
	db := newTestDB(t)

	err := upsertMapping(context.Background(), db, models.EntityTypeBooking, "  ", "1", "hotel-1", nil)
	if !IsMappingError(err) {
		t.Errorf("expected MappingError for empty external id, got %v", err)
	}
}

func TestResolveMappingAbsent(t *testing.T) {
	db := newTestDB(t)

	mapping, err := resolveMapping(context.Background(), db, models.EntityTypeBooking, "nope")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if mapping != nil {
		t.Errorf("expected nil for unseen external id, got %+v", mapping)
	}
}
