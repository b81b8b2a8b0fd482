package channelsync

import (
	"context"
	"fmt"
	"time"

	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const creditSafetyThreshold = 20

// HealthStatus is the scheduler's view of the sync engine.
type HealthStatus struct {
	Healthy          bool      `json:"healthy"`
	StoreReachable   bool      `json:"storeReachable"`
	ReadTokenValid   bool      `json:"readTokenValid"`
	WriteTokenValid  bool      `json:"writeTokenValid"`
	EligibleHotels   int64     `json:"eligibleHotels"`
	CreditsRemaining int       `json:"creditsRemaining"`
	ErrorsLast24h    int64     `json:"errorsLast24h"`
	Alerts           []string  `json:"alerts,omitempty"`
	CheckedAt        time.Time `json:"checkedAt"`
}

// RunScheduled is the cron entrypoint. Every cycle starts with a health
// check; then it fans out an unforced sync of both entity types over
// every enabled hotel, with the per-checkpoint intervals deciding what
// actually runs. With credits near exhaustion the sync is skipped rather
// than burning the reserve, but the health check still reports.
func RunScheduled(ctx context.Context, db *gorm.DB) ([]SyncOutcome, HealthStatus, error) {
	health := HealthCheck(ctx, db)
	if !health.Healthy {
		config.GetLogger().WithFields(logrus.Fields{
			"module": "channelsync",
			"alerts": health.Alerts,
		}).Warn("scheduled health check raised alerts")
	}

	if health.CreditsRemaining >= 0 && health.CreditsRemaining < creditSafetyThreshold {
		config.GetLogger().WithFields(logrus.Fields{
			"module":    "channelsync",
			"remaining": health.CreditsRemaining,
		}).Warn("scheduled sync skipped, credits below safety threshold")
		return []SyncOutcome{{
			SyncType: SyncTypeAll,
			State:    SyncStateSkipped,
			Message:  fmt.Sprintf("credits below safety threshold (%d remaining)", health.CreditsRemaining),
		}}, health, nil
	}

	outcomes, err := RunSync(ctx, db, SyncRequest{SyncType: SyncTypeAll})
	return outcomes, health, err
}

// ManualTrigger forces a sync regardless of intervals and credit
// threshold. Operator judgement overrides the safety rails.
func ManualTrigger(ctx context.Context, db *gorm.DB, syncType string, hotelId string) ([]SyncOutcome, error) {
	if syncType == "" {
		syncType = SyncTypeAll
	}
	return RunSync(ctx, db, SyncRequest{SyncType: syncType, HotelId: hotelId, ForceSync: true})
}

func HealthCheck(ctx context.Context, db *gorm.DB) HealthStatus {
	status := HealthStatus{CheckedAt: time.Now()}

	var probe int64
	if err := db.WithContext(ctx).Model(&models.SyncCheckpoint{}).Count(&probe).Error; err != nil {
		status.Alerts = append(status.Alerts, "store unreachable: "+err.Error())
	} else {
		status.StoreReachable = true
	}

	status.ReadTokenValid = tokenValid(ctx, db, models.TokenTypeRead)
	if !status.ReadTokenValid {
		status.Alerts = append(status.Alerts, "read token missing or expired")
	}
	status.WriteTokenValid = tokenValid(ctx, db, models.TokenTypeWrite)

	if status.StoreReachable {
		_ = db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
			Where("provider = ? AND sync_enabled = ?", models.ProviderBeds24, true).
			Count(&status.EligibleHotels).Error
	}

	status.CreditsRemaining = -1
	if snap, ok := latestCreditSnapshot(ctx, db); ok {
		status.CreditsRemaining = snap.FiveMinRemaining
		if snap.FiveMinRemaining >= 0 && snap.FiveMinRemaining < creditSafetyThreshold {
			status.Alerts = append(status.Alerts, fmt.Sprintf("credits low: %d remaining", snap.FiveMinRemaining))
		}
	}

	if status.StoreReachable {
		count, err := auditErrorCount(ctx, db, "", time.Now().Add(-24*time.Hour))
		if err == nil {
			status.ErrorsLast24h = count
			if count > 10 {
				status.Alerts = append(status.Alerts, fmt.Sprintf("%d sync errors in the last 24h", count))
			}
		}
	}

	status.Healthy = len(status.Alerts) == 0
	return status
}
