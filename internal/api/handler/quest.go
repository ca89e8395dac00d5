package handler

import (
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"

	"guildhall/internal/api"
	"guildhall/internal/services"
)

type groupQuest struct {
	container *do.Injector
}

func (gr *groupQuest) List(c echo.Context) error {
	serviceQuest, err := do.Invoke[*services.ServiceQuest](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	quests, err := serviceQuest.ListPublished(c.Request().Context())
	return abort(c, quests, err)
}

func (gr *groupQuest) Show(c echo.Context) error {
	ctx := c.Request().Context()

	questID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	serviceQuest, err := do.Invoke[*services.ServiceQuest](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	// anonymous readers only see published quests
	principal, _ := ResolvePrincipal(ctx)
	quest, err := serviceQuest.GetQuest(ctx, principal, questID)
	return abort(c, quest, err)
}

func (gr *groupQuest) Accept(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	questID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	var payload api.AcceptQuestPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userQuest, err := serviceProgression.AcceptQuest(ctx, principal, questID, payload.ExclusiveCode)
	return abort(c, userQuest, err)
}
