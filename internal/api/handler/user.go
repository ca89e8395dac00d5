package handler

import (
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"

	"guildhall/internal/api"
	"guildhall/internal/services"
)

type groupUser struct {
	container *do.Injector
}

func (gr *groupUser) Me(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	serviceIdentity, err := do.Invoke[*services.ServiceIdentity](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	profile, err := serviceIdentity.FindOrCreateProfile(ctx, principal)
	return abort(c, profile, err)
}

func (gr *groupUser) UpdateMe(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	var payload api.UpdateProfilePayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceIdentity, err := do.Invoke[*services.ServiceIdentity](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	profile, err := serviceIdentity.UpdateProfile(ctx, principal, payload.DisplayName, payload.AvatarURL)
	return abort(c, profile, err)
}

type groupNotification struct {
	container *do.Injector
}

func (gr *groupNotification) List(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	serviceNotification, err := do.Invoke[*services.ServiceNotification](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	notifications, err := serviceNotification.List(ctx, principal)
	return abort(c, notifications, err)
}

func (gr *groupNotification) Clear(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	serviceNotification, err := do.Invoke[*services.ServiceNotification](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	return abort(c, true, serviceNotification.Clear(ctx, principal))
}

func (gr *groupNotification) LinkTelegram(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	var payload api.LinkTelegramPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceNotification, err := do.Invoke[*services.ServiceNotification](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	return abort(c, true, serviceNotification.LinkChat(ctx, principal, payload.ChatID))
}

func (gr *groupUser) Points(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	serviceLeaderboard, err := do.Invoke[*services.ServiceLeaderboard](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	limit, offset := pagination(c, services.NOTIFICATION_DEFAULT_LIMIT)
	history, err := serviceLeaderboard.GetPointHistory(ctx, principal, limit, offset)
	return abort(c, history, err)
}
