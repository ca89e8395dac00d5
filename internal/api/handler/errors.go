package handler

import (
	"errors"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"

	"guildhall/internal/pkg/limiter"
	"guildhall/internal/progression"
	"guildhall/internal/services"
)

type errorClass string

const (
	classAuthn        errorClass = "authn"
	classNotExist     errorClass = "not_exist"
	classInvalid      errorClass = "invalid"
	classValidation   errorClass = "validation"
	classRateLimiting errorClass = "rate_limiting"
	classService      errorClass = "service"
)

func classify(err error) errorClass {
	switch {
	case errors.Is(err, progression.ErrNotAuthenticated),
		errors.Is(err, progression.ErrNotAuthorized),
		errors.Is(err, services.ErrInvalidToken):
		return classAuthn
	case errors.Is(err, progression.ErrNotFound):
		return classNotExist
	case errors.Is(err, progression.ErrValidation):
		return classValidation
	case errors.Is(err, progression.ErrInvalidState),
		errors.Is(err, services.ErrUserQuestLock),
		errors.Is(err, services.ErrLeaderboardLock):
		return classInvalid
	case errors.Is(err, limiter.ErrRateLimited):
		return classRateLimiting
	default:
		return classService
	}
}

func wrapError(err error) error {
	switch classify(err) {
	case classAuthn:
		return errorx.Wrap(err, errorx.Authn)
	case classNotExist:
		return errorx.Wrap(err, errorx.NotExist)
	case classValidation:
		return errorx.Wrap(err, errorx.Validation)
	case classInvalid:
		return errorx.Wrap(err, errorx.Invalid)
	case classRateLimiting:
		return errorx.Wrap(err, errorx.RateLimiting)
	default:
		return errorx.Wrap(err, errorx.Service)
	}
}

// abort writes data, or err mapped onto the toolkit's error kinds.
func abort(c echo.Context, data any, err error) error {
	if err != nil {
		return httpx.RestAbort(c, nil, wrapError(err))
	}
	return httpx.RestAbort(c, data, nil)
}
