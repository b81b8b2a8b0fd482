package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/otelciro/pms_backend/appctx"
	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/utils"
)

func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		ctx := utils.SetTokenInContext(c.Request.Context(), token)

		username, exists, err := config.GetRedisValue("Token:" + token)
		if err == nil && exists {
			ctx = utils.SetUsernameInContext(ctx, username)
		} else {
			// no session: accept a signed api token instead
			parsed, jwtErr := utils.JwtValidate(token)
			if jwtErr != nil || !parsed.Valid {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			if claims, ok := parsed.Claims.(*utils.JwtCustomClaim); ok {
				ctx = appctx.Set(ctx, appctx.ContextKeyUserId, claims.ID)
			}
		}

		if hotelId := c.Request.Header.Get("x-hotel-id"); hotelId != "" {
			ctx = utils.SetHotelIdInContext(ctx, hotelId)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
