package channelsync

import (
	"context"
	"testing"
	"time"

	"github.com/otelciro/pms_backend/models"
)

func TestDecodeSyncSettings(t *testing.T) {
	defaults := DefaultSyncSettings()

	cases := []struct {
		name string
		raw  []byte
		want SyncSettings
	}{
		{"empty", nil, defaults},
		{"invalid json", []byte("{oops"), defaults},
		{"negative rejected", []byte(`{"bookingsIntervalMinutes":-5}`), defaults},
		{"partial normalized", []byte(`{"bookingsIntervalMinutes":30}`), SyncSettings{
			BookingsIntervalMinutes: 30,
			CalendarIntervalHours:   defaults.CalendarIntervalHours,
			CalendarWindowDays:      defaults.CalendarWindowDays,
			BootstrapDays:           defaults.BootstrapDays,
		}},
	}
	for _, tc := range cases {
		if got := DecodeSyncSettings(tc.raw); got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestGetOrCreateCheckpointDefaults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cp, err := getOrCreateCheckpoint(ctx, db, "hotel-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !cp.SyncEnabled {
		t.Error("new checkpoint should be enabled")
	}
	if cp.BootstrapCompleted {
		t.Error("new checkpoint should not be bootstrapped")
	}
	if DecodeSyncSettings(cp.SettingsJSON) != DefaultSyncSettings() {
		t.Error("new checkpoint should carry default settings")
	}

	again, err := getOrCreateCheckpoint(ctx, db, "hotel-1")
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if again.ID != cp.ID {
		t.Error("second call created a new row")
	}
}

func TestSyncHotelSkipsWithinInterval(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cp, _ := getOrCreateCheckpoint(ctx, db, "hotel-1")
	now := time.Now()
	db.Model(cp).Updates(map[string]interface{}{
		"bootstrap_completed":   true,
		"last_bookings_sync_at": now,
		"last_calendar_sync_at": now,
	})

	// client with no credits would fail loudly if anything got past the throttle
	client := &channelClient{remaining: 0}
	outcomes := syncHotel(ctx, db, client, "hotel-1", SyncTypeAll, false)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, outcome := range outcomes {
		if outcome.State != SyncStateSkipped {
			t.Errorf("%s: state = %q, want skipped", outcome.SyncType, outcome.State)
		}
	}
}

func TestSyncHotelDisabledSkips(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cp, _ := getOrCreateCheckpoint(ctx, db, "hotel-1")
	db.Model(cp).Updates(map[string]interface{}{
		"sync_enabled":    false,
		"disabled_reason": "rate limited",
	})

	outcomes := syncHotel(ctx, db, &channelClient{remaining: 0}, "hotel-1", SyncTypeAll, false)
	if len(outcomes) != 1 || outcomes[0].State != SyncStateSkipped {
		t.Fatalf("disabled hotel should yield one skipped outcome, got %+v", outcomes)
	}
}

func TestBootstrapSeedsBookingsCursor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cp, _ := getOrCreateCheckpoint(ctx, db, "hotel-1")
	settings := DefaultSyncSettings()

	if err := bootstrapHotel(ctx, db, cp, settings); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	var after models.SyncCheckpoint
	db.Where("hotel_id = ?", "hotel-1").Take(&after)
	if !after.BootstrapCompleted {
		t.Error("bootstrap flag not set")
	}
	if after.LastBookingsModifiedFrom == nil {
		t.Fatal("cursor not seeded")
	}
	expected := time.Now().AddDate(0, 0, -settings.BootstrapDays)
	if diff := after.LastBookingsModifiedFrom.Sub(expected); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cursor = %v, want about %v", after.LastBookingsModifiedFrom, expected)
	}
}

func TestResolveSyncTargetsOnlyEnabled(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, hotelId := range []string{"hotel-1", "hotel-2", "hotel-3"} {
		if _, err := getOrCreateCheckpoint(ctx, db, hotelId); err != nil {
			t.Fatalf("checkpoint %s: %v", hotelId, err)
		}
	}
	db.Model(&models.SyncCheckpoint{}).Where("hotel_id = ?", "hotel-2").
		Update("sync_enabled", false)

	targets, err := resolveSyncTargets(ctx, db, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("targets = %v, want hotel-1 and hotel-3", targets)
	}
	for _, hotelId := range targets {
		if hotelId == "hotel-2" {
			t.Error("disabled hotel included in fan-out")
		}
	}
}

func TestRunSyncRejectsInvalidRequest(t *testing.T) {
	db := newTestDB(t)

	if _, err := RunSync(context.Background(), db, SyncRequest{SyncType: "everything"}); err == nil {
		t.Error("unknown sync type should be rejected")
	}
	if _, err := RunSync(context.Background(), db, SyncRequest{}); err == nil {
		t.Error("missing sync type should be rejected")
	}
}
