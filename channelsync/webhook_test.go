package channelsync

import (
	"context"
	"testing"

	"github.com/otelciro/pms_backend/models"
	"github.com/otelciro/pms_backend/utils"
	"gorm.io/gorm"
)

func seedWebhookFixtures(t *testing.T, db *gorm.DB) {
	t.Helper()
	seedHotel(t, db, "hotel-1")

	fixtures := []interface{}{
		&models.ChannelConnection{HotelId: "hotel-1", ChannelId: "booking.com", Active: true},
		&models.RoomType{HotelId: "hotel-1", Name: "Double", Code: "DBL"},
		&models.RatePlan{HotelId: "hotel-1", Name: "Standard", Code: "STD", IsDefault: true},
	}
	for _, fixture := range fixtures {
		if err := db.Create(fixture).Error; err != nil {
			t.Fatalf("seed fixture %T: %v", fixture, err)
		}
	}

	var roomType models.RoomType
	db.Where("hotel_id = ?", "hotel-1").Take(&roomType)
	rooms := []models.Room{
		{HotelId: "hotel-1", RoomTypeId: roomType.ID, Number: "101", Status: models.RoomStatusAvailable},
		{HotelId: "hotel-1", RoomTypeId: roomType.ID, Number: "102", Status: models.RoomStatusAvailable},
	}
	for i := range rooms {
		if err := db.Create(&rooms[i]).Error; err != nil {
			t.Fatalf("seed room: %v", err)
		}
	}
}

func testWebhookEvent(action string) WebhookEvent {
	return WebhookEvent{
		ChannelId:     "booking.com",
		ReservationId: "BC-555",
		Action:        action,
		Data: WebhookData{
			HotelId:      "hotel-1",
			Status:       "confirmed",
			RoomTypeCode: "DBL",
			RatePlanCode: "STD",
			Arrival:      "2026-10-10",
			Departure:    "2026-10-12",
			Adults:       2,
			TotalAmount:  "240.00",
			Currency:     "EUR",
			Guest: WebhookGuest{
				FirstName: "Jane",
				LastName:  "Roe",
				Email:     "jane@example.com",
			},
			Charges: []WebhookCharge{
				{Description: "Room charge", Amount: "240.00", Currency: "EUR"},
			},
		},
	}
}

func TestMapWebhookStatusTotal(t *testing.T) {
	cases := map[string]string{
		"confirmed":   models.ReservationStatusConfirmed,
		"pending":     models.ReservationStatusTentative,
		"cancelled":   models.ReservationStatusCancelled,
		"no_show":     models.ReservationStatusNoShow,
		"checked_in":  models.ReservationStatusInHouse,
		"checked_out": models.ReservationStatusCheckedOut,
		"anything":    models.ReservationStatusConfirmed,
		"":            models.ReservationStatusConfirmed,
	}
	for input, want := range cases {
		if got := mapWebhookStatus(input); got != want {
			t.Errorf("mapWebhookStatus(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestProcessWebhookEventCreate(t *testing.T) {
	db := newTestDB(t)
	seedWebhookFixtures(t, db)

	result := ProcessWebhookEvent(context.Background(), db, testWebhookEvent("create"))
	if !result.Success {
		t.Fatalf("create failed: %s", result.Message)
	}
	if result.ReservationId == 0 {
		t.Fatal("no reservation id returned")
	}

	var reservation models.Reservation
	if err := db.Where("id = ?", result.ReservationId).Take(&reservation).Error; err != nil {
		t.Fatalf("reservation missing: %v", err)
	}
	if reservation.Status != models.ReservationStatusConfirmed {
		t.Errorf("status = %q", reservation.Status)
	}
	if reservation.RoomId == nil {
		t.Error("no room auto-assigned")
	} else {
		var room models.Room
		db.Where("id = ?", *reservation.RoomId).Take(&room)
		if room.Status != models.RoomStatusReserved {
			t.Errorf("assigned room status = %q, want Reserved", room.Status)
		}
	}

	var chargeCount int64
	db.Model(&models.ChargeItem{}).Where("reservation_id = ?", reservation.ID).Count(&chargeCount)
	if chargeCount != 1 {
		t.Errorf("charges = %d, want 1", chargeCount)
	}

	var event models.InboundReservationEvent
	if err := db.Where("channel_reservation_id = ?", "BC-555").Take(&event).Error; err != nil {
		t.Fatalf("inbound event not persisted: %v", err)
	}
	if event.ProcessingStatus != models.EventStatusProcessed {
		t.Errorf("event status = %q", event.ProcessingStatus)
	}
}

func TestProcessWebhookEventCreateReplayIdempotent(t *testing.T) {
	db := newTestDB(t)
	seedWebhookFixtures(t, db)
	ctx := context.Background()

	first := ProcessWebhookEvent(ctx, db, testWebhookEvent("create"))
	second := ProcessWebhookEvent(ctx, db, testWebhookEvent("create"))
	if !first.Success || !second.Success {
		t.Fatalf("results: %+v / %+v", first, second)
	}
	if first.ReservationId != second.ReservationId {
		t.Errorf("replay created a new reservation: %d vs %d", first.ReservationId, second.ReservationId)
	}

	var count int64
	db.Model(&models.Reservation{}).Count(&count)
	if count != 1 {
		t.Errorf("reservation rows = %d, want 1", count)
	}
}

func TestProcessWebhookEventCancelReleasesRoom(t *testing.T) {
	db := newTestDB(t)
	seedWebhookFixtures(t, db)
	ctx := context.Background()

	created := ProcessWebhookEvent(ctx, db, testWebhookEvent("create"))
	if !created.Success {
		t.Fatalf("create: %s", created.Message)
	}

	var before models.Reservation
	db.Where("id = ?", created.ReservationId).Take(&before)
	if before.RoomId == nil {
		t.Fatal("precondition: no room assigned")
	}
	roomID := *before.RoomId

	cancel := testWebhookEvent("cancel")
	cancel.Data.CancelReason = "guest request"
	result := ProcessWebhookEvent(ctx, db, cancel)
	if !result.Success {
		t.Fatalf("cancel: %s", result.Message)
	}

	var after models.Reservation
	db.Where("id = ?", created.ReservationId).Take(&after)
	if after.Status != models.ReservationStatusCancelled {
		t.Errorf("status = %q, want Cancelled", after.Status)
	}
	if after.CancelledAt == nil {
		t.Error("cancellation timestamp not set")
	}
	if after.RoomId != nil {
		t.Error("room still assigned after cancel")
	}

	var room models.Room
	db.Where("id = ?", roomID).Take(&room)
	if room.Status != models.RoomStatusAvailable {
		t.Errorf("room status = %q, want Available", room.Status)
	}
}

func TestProcessWebhookEventUpdateForUnknownFails(t *testing.T) {
	db := newTestDB(t)
	seedWebhookFixtures(t, db)

	// an update needs an existing reservation; never invent one
	result := ProcessWebhookEvent(context.Background(), db, testWebhookEvent("update"))
	if result.Success {
		t.Fatal("update of unknown reservation should fail")
	}

	var count int64
	db.Model(&models.Reservation{}).Count(&count)
	if count != 0 {
		t.Errorf("reservation rows = %d, want 0", count)
	}

	var event models.InboundReservationEvent
	if err := db.Where("channel_reservation_id = ?", "BC-555").Take(&event).Error; err != nil {
		t.Fatalf("failed event should still be persisted: %v", err)
	}
	if event.ProcessingStatus != models.EventStatusError {
		t.Errorf("event status = %q, want error", event.ProcessingStatus)
	}
}

func TestProcessWebhookEventUpdateWithoutStatusKeepsStatus(t *testing.T) {
	db := newTestDB(t)
	seedWebhookFixtures(t, db)
	ctx := context.Background()

	create := testWebhookEvent("create")
	create.Data.Status = "checked_in"
	created := ProcessWebhookEvent(ctx, db, create)
	if !created.Success {
		t.Fatalf("create: %s", created.Message)
	}

	// dates-only update: the payload carries no status
	update := testWebhookEvent("update")
	update.Data.Status = ""
	update.Data.Arrival = ""
	update.Data.Departure = "2026-10-14"
	result := ProcessWebhookEvent(ctx, db, update)
	if !result.Success {
		t.Fatalf("update: %s", result.Message)
	}

	var after models.Reservation
	db.Where("id = ?", created.ReservationId).Take(&after)
	if after.Status != models.ReservationStatusInHouse {
		t.Errorf("status = %q, want InHouse untouched", after.Status)
	}
	if after.DepartureDate.Format("2006-01-02") != "2026-10-14" {
		t.Errorf("departure not updated: %v", after.DepartureDate)
	}
}

func TestProcessWebhookEventCancelUnknownFails(t *testing.T) {
	db := newTestDB(t)
	seedWebhookFixtures(t, db)

	result := ProcessWebhookEvent(context.Background(), db, testWebhookEvent("cancel"))
	if result.Success {
		t.Fatal("cancel of unknown reservation should fail")
	}

	var event models.InboundReservationEvent
	if err := db.Where("channel_reservation_id = ?", "BC-555").Take(&event).Error; err != nil {
		t.Fatalf("failed event should still be persisted: %v", err)
	}
	if event.ProcessingStatus != models.EventStatusError {
		t.Errorf("event status = %q, want error", event.ProcessingStatus)
	}
	if event.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
}

func TestProcessWebhookEventInactiveConnectionRejected(t *testing.T) {
	db := newTestDB(t)
	seedWebhookFixtures(t, db)
	db.Model(&models.ChannelConnection{}).
		Where("channel_id = ?", "booking.com").
		Update("active", false)

	result := ProcessWebhookEvent(context.Background(), db, testWebhookEvent("create"))
	if result.Success {
		t.Fatal("inactive connection should be rejected")
	}

	var count int64
	db.Model(&models.InboundReservationEvent{}).Count(&count)
	if count != 0 {
		t.Errorf("rejected push should not persist an event, got %d", count)
	}
}

func TestProcessWebhookEventUnmappedRoomCodeFallsBack(t *testing.T) {
	db := newTestDB(t)
	seedWebhookFixtures(t, db)

	event := testWebhookEvent("create")
	event.Data.RoomTypeCode = "NO-SUCH-CODE"
	result := ProcessWebhookEvent(context.Background(), db, event)
	if !result.Success {
		t.Fatalf("fallback should keep the booking: %s", result.Message)
	}

	var reservation models.Reservation
	db.Where("id = ?", result.ReservationId).Take(&reservation)
	var firstRoomType models.RoomType
	db.Where("hotel_id = ?", "hotel-1").Order("id").Take(&firstRoomType)
	if reservation.RoomTypeId != firstRoomType.ID {
		t.Errorf("expected fallback to first room type %d, got %d", firstRoomType.ID, reservation.RoomTypeId)
	}
}

func TestProcessWebhookEventPushCredential(t *testing.T) {
	db := newTestDB(t)
	seedWebhookFixtures(t, db)
	ctx := context.Background()

	hash, err := utils.HashPassword("push-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	db.Model(&models.ChannelConnection{}).
		Where("channel_id = ?", "booking.com").
		Update("push_credential_hash", string(hash))

	event := testWebhookEvent("create")
	event.Credential = "wrong"
	if result := ProcessWebhookEvent(ctx, db, event); result.Success {
		t.Fatal("wrong push credential should be rejected")
	}

	event.Credential = "push-secret"
	if result := ProcessWebhookEvent(ctx, db, event); !result.Success {
		t.Fatalf("valid push credential rejected: %s", result.Message)
	}
}

func TestResolveRoomTypePrefersCodeMapping(t *testing.T) {
	db := newTestDB(t)
	seedWebhookFixtures(t, db)
	ctx := context.Background()

	other := models.RoomType{HotelId: "hotel-1", Name: "Suite", Code: "STE"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	mapping := models.ChannelCodeMapping{
		HotelId:     "hotel-1",
		ChannelId:   "booking.com",
		Kind:        models.MappingKindRoomType,
		ChannelCode: "DBL",
		InternalId:  other.ID,
	}
	if err := db.Create(&mapping).Error; err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	conn := &models.ChannelConnection{HotelId: "hotel-1", ChannelId: "booking.com"}
	got, err := resolveRoomType(ctx, db, conn, "DBL")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != other.ID {
		t.Errorf("configured mapping should win over code match: got %d, want %d", got, other.ID)
	}
}
