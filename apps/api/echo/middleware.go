package echoapi

import "github.com/labstack/echo/v4"

// roleMiddleware lets through the identities having role. It runs after sessionMiddleware.
func roleMiddleware(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if contextIdentity(ctx).Role == role {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
