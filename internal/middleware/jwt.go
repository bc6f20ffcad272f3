package middleware

import (
	"net/http"
	"strings"

	"stockroom/internal/common"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// ActorHeader names the caller when JWT auth is disabled
const ActorHeader = "X-Actor"

// JWTMiddleware validates HS256 bearer tokens and records the subject claim
// as the acting identity
func JWTMiddleware(jwtSecret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(jwtSecret),
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				return
			}
			setActor(c, sub)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		},
	})
}

// HeaderActorMiddleware trusts the X-Actor header. Use only without JWT.
func HeaderActorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if actor := strings.TrimSpace(c.Request().Header.Get(ActorHeader)); actor != "" {
				setActor(c, actor)
			}
			return next(c)
		}
	}
}

func setActor(c echo.Context, actor string) {
	ctx := common.WithActor(c.Request().Context(), actor)
	c.SetRequest(c.Request().WithContext(ctx))
}
