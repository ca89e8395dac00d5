package handler

import (
	"strings"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"

	"guildhall/internal/api"
	"guildhall/internal/progression"
	"guildhall/internal/services"
)

// groupAdmin manages runtime config and roles. Admin role only.
type groupAdmin struct {
	container *do.Injector
}

func (gr *groupAdmin) ListConfigs(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	serviceIdentity, err := do.Invoke[*services.ServiceIdentity](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}
	if err := serviceIdentity.RequireAdmin(ctx, principal); err != nil {
		return abort(c, nil, err)
	}

	serviceConfig, err := do.Invoke[*services.ServiceConfig](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	configs, err := serviceConfig.ListConfigs(ctx)
	return abort(c, configs, err)
}

func (gr *groupAdmin) SetConfig(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	key := strings.ToUpper(strings.TrimSpace(c.Param("key")))
	if key == "" {
		return abort(c, nil, progression.Invalid("invalid_key", "config key is required"))
	}

	var payload api.SetConfigPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceIdentity, err := do.Invoke[*services.ServiceIdentity](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}
	if err := serviceIdentity.RequireAdmin(ctx, principal); err != nil {
		return abort(c, nil, err)
	}

	serviceConfig, err := do.Invoke[*services.ServiceConfig](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	config, err := serviceConfig.SetConfig(ctx, key, strings.TrimSpace(payload.Value))
	return abort(c, config, err)
}

func (gr *groupAdmin) SetRole(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	var payload api.SetRolePayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceIdentity, err := do.Invoke[*services.ServiceIdentity](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	roles, err := serviceIdentity.SetRole(ctx, principal, payload.UserID, payload.Role, payload.Revoke)
	return abort(c, roles, err)
}
