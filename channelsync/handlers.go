package channelsync

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/models"
)

// TokenHandler serves the token-manager command family.
func TokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var action TokenAction
		if err := c.ShouldBindJSON(&action); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(action); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()

		switch action.Action {
		case "refresh_token":
			tokenType := action.TokenType
			if tokenType == "" {
				tokenType = models.TokenTypeRead
			}
			token, err := RefreshToken(ctx, db, tokenType)
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"success":   true,
				"tokenType": token.TokenType,
				"expiresAt": token.ExpiresAt,
				"scopes":    token.Scopes,
			})
		case "diagnostics":
			diagnostics, err := TokenDiagnostics(ctx, db)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "tokens": diagnostics})
		}
	}
}

// SyncHandler triggers a delta sync directly or hands it to Pub/Sub when
// async delivery is configured.
func SyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()

		if req.HotelId != "" {
			if _, err := models.GetHotelById(ctx, req.HotelId); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "hotel not found"})
				return
			}
		}

		if asyncSyncEnabled() {
			if err := PublishSyncRequest(ctx, req); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"success": true, "queued": true})
			return
		}

		outcomes, err := RunSync(ctx, config.GetDB(), req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "outcomes": outcomes})
	}
}

// SchedulerHandler serves the scheduler command family.
func SchedulerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var action SchedulerAction
		if err := c.ShouldBindJSON(&action); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(action); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()

		switch action.Action {
		case "run_scheduled":
			outcomes, health, err := RunScheduled(ctx, db)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "outcomes": outcomes, "health": health})
		case "manual_trigger":
			outcomes, err := ManualTrigger(ctx, db, action.SyncType, action.HotelId)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "outcomes": outcomes})
		case "health_check":
			status := HealthCheck(ctx, db)
			code := http.StatusOK
			if !status.Healthy {
				code = http.StatusServiceUnavailable
			}
			c.JSON(code, status)
		}
	}
}

// RecoveryHandler serves the recovery command family.
func RecoveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var action RecoveryAction
		if err := c.ShouldBindJSON(&action); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(action); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()

		var (
			report *RecoveryReport
			err    error
		)
		switch action.Action {
		case "auto_recovery":
			report, err = AutoRecovery(ctx, db, action.HotelId)
		case "manual_recovery":
			report, err = ManualRecovery(ctx, db, action)
		case "reset_sync_state":
			if action.HotelId == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "hotelId is required"})
				return
			}
			report, err = ResetSyncState(ctx, db, action.HotelId)
		case "repair_data_integrity":
			report, err = RepairDataIntegrity(ctx, db, action.HotelId)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
	}
}

// WebhookHandler accepts inbound reservation pushes from channels.
func WebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		var event WebhookEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		event.Raw = raw
		event.Credential = c.GetHeader("x-push-credential")

		result := ProcessWebhookEvent(c.Request.Context(), config.GetDB(), event)
		code := http.StatusOK
		if !result.Success {
			code = http.StatusUnprocessableEntity
		}
		c.JSON(code, result)
	}
}

// AuditHandler is the read-only audit trail, newest first.
func AuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		q := db.Model(&models.AuditRecord{}).Where("provider = ?", models.ProviderBeds24)
		if hotelId := strings.TrimSpace(c.Query("hotelId")); hotelId != "" {
			q = q.Where("hotel_id = ?", hotelId)
		}
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			q = q.Where("status = ?", status)
		}

		limit := 50
		if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
			limit = v
		}

		var records []models.AuditRecord
		if err := q.Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

// CheckpointsHandler lists sync checkpoints, optionally for one hotel.
func CheckpointsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		q := db.Where("provider = ?", models.ProviderBeds24)
		if hotelId := strings.TrimSpace(c.Query("hotelId")); hotelId != "" {
			q = q.Where("hotel_id = ?", hotelId)
		}

		var checkpoints []models.SyncCheckpoint
		if err := q.Find(&checkpoints).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"checkpoints": checkpoints})
	}
}
