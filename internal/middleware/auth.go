package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
	"github.com/labstack/echo/v4"
)

// AuthJWTMiddleware accepts a bearer token or the jwt-token cookie. With no
// secret configured every request is let through.
func (mw *MiddlewareManager) AuthJWTMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if mw.cfg.Server.JwtSecretKey == "" {
				return next(c)
			}

			bearerHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if bearerHeader != "" {
				headerParts := strings.Split(bearerHeader, " ")
				if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "bearer") {
					mw.logger.Errorf("AuthJWTMiddleware RequestID: %s, ERROR: malformed authorization header", utils.GetRequestID(c))
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
				}
				if err := mw.validateJWTToken(headerParts[1], c); err != nil {
					mw.logger.Errorf("AuthJWTMiddleware RequestID: %s, ERROR: %v", utils.GetRequestID(c), err)
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
				}
				return next(c)
			}

			cookie, err := c.Cookie("jwt-token")
			if err != nil {
				mw.logger.Debugf("AuthJWTMiddleware RequestID: %s, no token: %v", utils.GetRequestID(c), err)
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			if err = mw.validateJWTToken(cookie.Value, c); err != nil {
				mw.logger.Errorf("AuthJWTMiddleware RequestID: %s, ERROR: %v", utils.GetRequestID(c), err)
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			return next(c)
		}
	}
}

func (mw *MiddlewareManager) validateJWTToken(tokenString string, c echo.Context) error {
	if tokenString == "" {
		return fmt.Errorf("invalid token string")
	}

	claims, err := utils.ValidateToken(tokenString, mw.cfg.Server.JwtSecretKey)
	if err != nil {
		return err
	}

	c.Set("claims", claims)
	ctx := context.WithValue(c.Request().Context(), utils.ClaimsCtxKey{}, claims)
	c.SetRequest(c.Request().WithContext(ctx))
	return nil
}
