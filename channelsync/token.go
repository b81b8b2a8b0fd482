package channelsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/models"
	"github.com/otelciro/pms_backend/utils"
	"gorm.io/gorm"
)

const tokenCacheKeyPrefix = "channelsync:token:"

// refreshTokenFn indirection lets recovery tests count refresh calls.
var refreshTokenFn = RefreshToken

type authTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
	Scopes    string `json:"scopes"`
}

func refreshCredential(tokenType string) string {
	switch tokenType {
	case models.TokenTypeWrite:
		return strings.TrimSpace(utils.EnvOrDefault("CHANNEL_REFRESH_TOKEN_WRITE", ""))
	default:
		return strings.TrimSpace(utils.EnvOrDefault("CHANNEL_REFRESH_TOKEN_READ", ""))
	}
}

// RefreshToken exchanges the stored refresh credential for a fresh access
// token and persists it. A rejected credential is an AuthError: there is no
// way to recover without operator intervention.
func RefreshToken(ctx context.Context, db *gorm.DB, tokenType string) (*models.ProviderToken, error) {
	if tokenType != models.TokenTypeRead && tokenType != models.TokenTypeWrite {
		return nil, errors.New("unknown token type: " + tokenType)
	}
	credential := refreshCredential(tokenType)
	if credential == "" {
		return nil, &AuthError{Message: "refresh credential not configured for " + tokenType + " token"}
	}

	baseURL := strings.TrimRight(utils.EnvOrDefault("CHANNEL_API_BASE_URL", "https://api.beds24.com/v2"), "/")
	timeout := time.Duration(utils.IntFromEnv("CHANNEL_API_TIMEOUT_SECONDS", 30)) * time.Second

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/authentication/token", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("refreshToken", credential)
	req.Header.Set("Accept", "application/json")

	httpClient := &http.Client{Timeout: timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Message: "refresh credential rejected (" + strings.TrimSpace(string(body)) + ")"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var parsed authTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.Token) == "" {
		return nil, &AuthError{Message: "auth endpoint returned empty token"}
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(parsed.ExpiresIn) * time.Second)
	if parsed.ExpiresIn <= 0 {
		expiresAt = now.Add(24 * time.Hour)
	}

	token, err := saveProviderToken(ctx, db, tokenType, parsed.Token, parsed.Scopes, expiresAt)
	if err != nil {
		return nil, err
	}
	_ = config.SetRedisObject(tokenCacheKeyPrefix+tokenType, token, time.Until(expiresAt))
	return token, nil
}

func saveProviderToken(ctx context.Context, db *gorm.DB, tokenType string, accessToken string, scopes string, expiresAt time.Time) (*models.ProviderToken, error) {
	now := time.Now()
	var token models.ProviderToken
	err := db.WithContext(ctx).
		Where("provider = ? AND token_type = ?", models.ProviderBeds24, tokenType).
		Take(&token).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		token = models.ProviderToken{
			Provider:        models.ProviderBeds24,
			TokenType:       tokenType,
			AccessToken:     accessToken,
			Scopes:          scopes,
			ExpiresAt:       &expiresAt,
			LastRefreshedAt: &now,
		}
		if err := db.WithContext(ctx).Create(&token).Error; err != nil {
			return nil, err
		}
		return &token, nil
	}

	updates := map[string]interface{}{
		"access_token":      accessToken,
		"expires_at":        expiresAt,
		"last_refreshed_at": now,
	}
	if scopes != "" {
		updates["scopes"] = scopes
	}
	if err := db.WithContext(ctx).Model(&token).Updates(updates).Error; err != nil {
		return nil, err
	}
	token.AccessToken = accessToken
	token.ExpiresAt = &expiresAt
	token.LastRefreshedAt = &now
	return &token, nil
}

// activeAccessToken returns a usable access token for the type, refreshing
// proactively when the stored one is missing or expired.
func activeAccessToken(ctx context.Context, db *gorm.DB, tokenType string) (string, error) {
	var cached models.ProviderToken
	if ok, err := config.GetRedisObject(tokenCacheKeyPrefix+tokenType, &cached); err == nil && ok {
		if cached.ExpiresAt != nil && cached.ExpiresAt.After(time.Now()) && cached.AccessToken != "" {
			touchTokenUsage(ctx, db, tokenType)
			return cached.AccessToken, nil
		}
	}

	var token models.ProviderToken
	err := db.WithContext(ctx).
		Where("provider = ? AND token_type = ?", models.ProviderBeds24, tokenType).
		Take(&token).Error
	if err == nil && token.ExpiresAt != nil && token.ExpiresAt.After(time.Now()) && token.AccessToken != "" {
		touchTokenUsage(ctx, db, tokenType)
		return token.AccessToken, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	refreshed, err := refreshTokenFn(ctx, db, tokenType)
	if err != nil {
		return "", err
	}
	touchTokenUsage(ctx, db, tokenType)
	return refreshed.AccessToken, nil
}

func touchTokenUsage(ctx context.Context, db *gorm.DB, tokenType string) {
	_ = db.WithContext(ctx).Model(&models.ProviderToken{}).
		Where("provider = ? AND token_type = ?", models.ProviderBeds24, tokenType).
		Update("last_used_at", time.Now()).Error
}

type TokenDiagnostic struct {
	Scopes          string     `json:"scopes"`
	ExpiresAt       *time.Time `json:"expiresAt"`
	LastUsedAt      *time.Time `json:"lastUsedAt"`
	LastRefreshedAt *time.Time `json:"lastRefreshedAt"`
	IsExpired       bool       `json:"isExpired"`
	PropertiesCount int        `json:"propertiesCount"`
}

// TokenDiagnostics reports the state of every stored token plus the number
// of sync-eligible hotels the tokens currently serve.
func TokenDiagnostics(ctx context.Context, db *gorm.DB) (map[string]TokenDiagnostic, error) {
	var tokens []models.ProviderToken
	if err := db.WithContext(ctx).
		Where("provider = ?", models.ProviderBeds24).
		Find(&tokens).Error; err != nil {
		return nil, err
	}

	var eligible int64
	_ = db.WithContext(ctx).Model(&models.SyncCheckpoint{}).
		Where("provider = ? AND sync_enabled = ?", models.ProviderBeds24, true).
		Count(&eligible).Error

	out := make(map[string]TokenDiagnostic, len(tokens))
	for _, token := range tokens {
		expired := token.ExpiresAt == nil || !token.ExpiresAt.After(time.Now())
		out[token.TokenType] = TokenDiagnostic{
			Scopes:          token.Scopes,
			ExpiresAt:       token.ExpiresAt,
			LastUsedAt:      token.LastUsedAt,
			LastRefreshedAt: token.LastRefreshedAt,
			IsExpired:       expired,
			PropertiesCount: int(eligible),
		}
	}
	return out, nil
}

// tokenValid reports whether a non-expired token of the type is stored.
func tokenValid(ctx context.Context, db *gorm.DB, tokenType string) bool {
	var token models.ProviderToken
	err := db.WithContext(ctx).
		Where("provider = ? AND token_type = ?", models.ProviderBeds24, tokenType).
		Take(&token).Error
	if err != nil {
		return false
	}
	return token.AccessToken != "" && token.ExpiresAt != nil && token.ExpiresAt.After(time.Now())
}
