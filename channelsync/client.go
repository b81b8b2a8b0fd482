package channelsync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/models"
	"github.com/otelciro/pms_backend/utils"
	"gorm.io/gorm"
)

const (
	headerFiveMinRemaining = "X-FiveMinCreditLimit-Remaining"
	headerFiveMinResetsIn  = "X-FiveMinCreditLimit-ResetsIn"
	headerDailyRemaining   = "X-DailyCreditLimit-Remaining"
	headerRequestCost      = "X-RequestCost"

	creditSnapshotKey = "channelsync:credits"
)

// creditSnapshot is the latest known credit budget, cached in Redis and
// readable by the scheduler's safety check. Headers are authoritative;
// anything tracked locally is a best-effort hint.
type creditSnapshot struct {
	FiveMinRemaining int       `json:"five_min_remaining"`
	DailyRemaining   int       `json:"daily_remaining"`
	ResetsIn         int       `json:"resets_in"`
	RecordedAt       time.Time `json:"recorded_at"`
}

type rateLimits struct {
	Cost             int
	FiveMinRemaining int
	DailyRemaining   int
	ResetsIn         int
	Present          bool
}

func parseRateLimits(h http.Header) rateLimits {
	limits := rateLimits{Cost: 1, FiveMinRemaining: -1, DailyRemaining: -1, ResetsIn: -1}
	if v, err := strconv.Atoi(strings.TrimSpace(h.Get(headerRequestCost))); err == nil {
		limits.Cost = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(h.Get(headerFiveMinRemaining))); err == nil {
		limits.FiveMinRemaining = v
		limits.Present = true
	}
	if v, err := strconv.Atoi(strings.TrimSpace(h.Get(headerDailyRemaining))); err == nil {
		limits.DailyRemaining = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(h.Get(headerFiveMinResetsIn))); err == nil {
		limits.ResetsIn = v
	}
	return limits
}

type apiResponse struct {
	StatusCode int
	Body       []byte
	Limits     rateLimits
}

// channelClient wraps calls to the channel-manager API. One client lives
// for one invocation; its remaining-credit estimate is invocation-local
// state, never shared process state (see DESIGN.md).
type channelClient struct {
	baseURL   string
	orgID     string
	http      *http.Client
	db        *gorm.DB
	token     func(ctx context.Context, tokenType string) (string, error)
	refresh   func(ctx context.Context, tokenType string) (string, error)
	remaining int
	resetsIn  int
}

func newChannelClient(ctx context.Context, db *gorm.DB) *channelClient {
	baseURL := utils.EnvOrDefault("CHANNEL_API_BASE_URL", "https://api.beds24.com/v2")
	timeout := time.Duration(utils.IntFromEnv("CHANNEL_API_TIMEOUT_SECONDS", 30)) * time.Second

	c := &channelClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		orgID:   utils.EnvOrDefault("CHANNEL_ORGANIZATION_ID", ""),
		http:    &http.Client{Timeout: timeout},
		db:      db,
		token: func(ctx context.Context, tokenType string) (string, error) {
			return activeAccessToken(ctx, db, tokenType)
		},
		refresh: func(ctx context.Context, tokenType string) (string, error) {
			token, err := RefreshToken(ctx, db, tokenType)
			if err != nil {
				return "", err
			}
			return token.AccessToken, nil
		},
		remaining: utils.IntFromEnv("CHANNEL_FIVE_MIN_CREDITS", 300),
	}

	// Seed the estimate from the most recent snapshot when one exists.
	var snap creditSnapshot
	if ok, err := config.GetRedisObject(creditSnapshotKey, &snap); err == nil && ok {
		c.remaining = snap.FiveMinRemaining
		c.resetsIn = snap.ResetsIn
	}
	return c
}

// Call issues one request against the channel API. Rate-limit headers are
// parsed and persisted on every response regardless of status; once the
// tracked remaining count reaches zero the call is refused without being
// transmitted.
func (c *channelClient) Call(ctx context.Context, method string, path string, params url.Values, body any, tokenType string) (*apiResponse, error) {
	if c.remaining <= 0 {
		return nil, &RateLimitError{Remaining: c.remaining, ResetsIn: c.resetsIn}
	}

	token, err := c.token(ctx, tokenType)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, method, path, params, body, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Reactive refresh, retried once.
		token, err = c.refresh(ctx, tokenType)
		if err != nil {
			return nil, err
		}
		resp, err = c.doRequest(ctx, method, path, params, body, token)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &AuthError{Message: "access token rejected after refresh"}
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.remaining = 0
		return nil, &RateLimitError{Remaining: 0, ResetsIn: resp.Limits.ResetsIn}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &TransportError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(resp.Body))}
	}
	return resp, nil
}

func (c *channelClient) doRequest(ctx context.Context, method string, path string, params url.Values, body any, token string) (*apiResponse, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("token", token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.orgID != "" {
		req.Header.Set("X-Organization-Id", c.orgID)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Message: err.Error()}
	}
	defer httpResp.Body.Close()

	respBody, _ := io.ReadAll(httpResp.Body)
	limits := parseRateLimits(httpResp.Header)
	c.recordLimits(ctx, limits, httpResp.Header)

	return &apiResponse{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Limits:     limits,
	}, nil
}

// recordLimits persists a RateLimitSample and reconciles the local
// estimate: the header value overwrites it, a missing header costs one
// optimistic decrement.
func (c *channelClient) recordLimits(ctx context.Context, limits rateLimits, headers http.Header) {
	if limits.Present {
		c.remaining = limits.FiveMinRemaining
		c.resetsIn = limits.ResetsIn
	} else {
		c.remaining -= limits.Cost
	}

	if c.db != nil {
		headersJSON, _ := json.Marshal(headers)
		sample := models.RateLimitSample{
			Provider:         models.ProviderBeds24,
			Cost:             limits.Cost,
			FiveMinRemaining: limits.FiveMinRemaining,
			DailyRemaining:   limits.DailyRemaining,
			HeadersJSON:      headersJSON,
		}
		_ = c.db.WithContext(ctx).Create(&sample).Error
	}

	_ = config.SetRedisObject(creditSnapshotKey, creditSnapshot{
		FiveMinRemaining: c.remaining,
		DailyRemaining:   limits.DailyRemaining,
		ResetsIn:         limits.ResetsIn,
		RecordedAt:       time.Now(),
	}, 10*time.Minute)
}

// latestCreditSnapshot reads the cached snapshot, falling back to the most
// recent persisted sample when the cache is cold.
func latestCreditSnapshot(ctx context.Context, db *gorm.DB) (creditSnapshot, bool) {
	var snap creditSnapshot
	if ok, err := config.GetRedisObject(creditSnapshotKey, &snap); err == nil && ok {
		return snap, true
	}
	var sample models.RateLimitSample
	if err := db.WithContext(ctx).
		Where("provider = ?", models.ProviderBeds24).
		Order("id desc").
		First(&sample).Error; err != nil {
		return creditSnapshot{}, false
	}
	return creditSnapshot{
		FiveMinRemaining: sample.FiveMinRemaining,
		DailyRemaining:   sample.DailyRemaining,
		RecordedAt:       sample.RecordedAt,
	}, true
}
