package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"

	"guildhall/internal/models"
	"guildhall/internal/progression"
)

type ctxKey string

var ctxKeyAuthPrincipal ctxKey = "AUTH_PRINCIPAL"

// Authn resolves a bearer token into a principal. Requests without a token pass
// through unauthenticated; a bad token is refused.
func Authn(verifier interface {
	Validate(token string) (*models.Principal, error)
},
) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				return next(c)
			}

			token = strings.TrimSpace(token)
			if len(token) == 0 {
				return next(c)
			}

			principal, err := verifier.Validate(token)
			if err != nil {
				// although it's a client error, we don't want to detailed information
				//nolint:errcheck
				httpx.Abort(c, errorx.Wrap(errors.New("invalid access token"), errorx.Authn), -1)
				return nil
			}

			ctx := context.WithValue(c.Request().Context(), ctxKeyAuthPrincipal, principal)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func ResolvePrincipal(ctx context.Context) (*models.Principal, error) {
	principal, ok := ctx.Value(ctxKeyAuthPrincipal).(*models.Principal)
	if !ok || principal == nil {
		return nil, progression.ErrNotAuthenticated
	}
	return principal, nil
}

func paramUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, progression.Invalid("invalid_id", "%s must be a uuid", name)
	}
	return id, nil
}

// pagination reads limit and offset, falling back to defaults on junk.
func pagination(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = defaultLimit
	}

	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
