package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/utils"
	"golang.org/x/crypto/bcrypt"
)

type LoginInfo struct {
	Token    string `json:"token"`
	ApiToken string `json:"apiToken"`
	Username string `json:"username"`
	Role     string `json:"role"`
	HotelId  string `json:"hotelId,omitempty"`
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	db := config.GetDB()

	var user User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error; err != nil {
			return nil, errors.New("invalid username or password")
		}
	}

	err = utils.ComparePassword(user.PasswordHash, password)
	if err != nil && err == bcrypt.ErrMismatchedHashAndPassword {
		return nil, errors.New("invalid username or password")
	}
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	apiToken, err := utils.JwtGenerate(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	lifespan := time.Duration(utils.IntFromEnv("TOKEN_HOUR_LIFESPAN", 24)) * time.Hour
	if err := config.SetRedisValue("Token:"+token, user.Username, lifespan); err != nil {
		return nil, err
	}

	return &LoginInfo{
		Token:    token,
		ApiToken: apiToken,
		Username: user.Username,
		Role:     user.Role,
		HotelId:  user.HotelId,
	}, nil
}

func Logout(token string) error {
	return config.RemoveRedisKey("Token:" + token)
}
