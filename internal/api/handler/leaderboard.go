package handler

import (
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"

	"guildhall/internal/services"
)

type groupLeaderboard struct {
	container *do.Injector
}

func (gr *groupLeaderboard) GetOverallLeaderboard(c echo.Context) error {
	serviceLeaderboard, err := do.Invoke[*services.ServiceLeaderboard](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	leaderboard, err := serviceLeaderboard.GetOverallLeaderboard(ctx, principal)
	return abort(c, leaderboard, err)
}

func (gr *groupLeaderboard) GetWeeklyLeaderboard(c echo.Context) error {
	serviceLeaderboard, err := do.Invoke[*services.ServiceLeaderboard](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	leaderboard, err := serviceLeaderboard.GetWeeklyLeaderboard(ctx, principal)
	return abort(c, leaderboard, err)
}
