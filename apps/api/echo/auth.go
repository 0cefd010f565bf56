package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/user"
)

var (
	contextIdentityKey = "identity"
	contextTokenKey    = "token"
	tokenQueryParam    = "token"
)

// requestToken returns the session token of the Authorization header, or of the token query parameter.
func requestToken(ctx echo.Context) string {
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if scheme := "Bearer "; len(auth) > len(scheme) && strings.EqualFold(auth[:len(scheme)], scheme) {
		return strings.TrimSpace(auth[len(scheme):])
	}
	return ctx.QueryParam(tokenQueryParam)
}

// sessionMiddleware resolves the session token to the Identity stored in the echo.Context.
func sessionMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token := requestToken(ctx)
			if token == "" {
				return errUnauthorized
			}
			id, err := svc.Identify(ctx.Request().Context(), token)
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					return errUnauthorized
				}
				return errors.Wrap(err, "identifying session")
			}
			ctx.Set(contextIdentityKey, id)
			ctx.Set(contextTokenKey, token)
			return next(ctx)
		}
	}
}

// contextIdentity returns the authenticated Identity, or the zero Identity.
func contextIdentity(ctx echo.Context) core.Identity {
	id, _ := ctx.Get(contextIdentityKey).(core.Identity)
	return id
}

func contextToken(ctx echo.Context) string {
	token, _ := ctx.Get(contextTokenKey).(string)
	return token
}
