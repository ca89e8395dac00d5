package handler

import (
	"strings"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"

	"guildhall/internal/api"
	"guildhall/internal/models"
	"guildhall/internal/progression"
	"guildhall/internal/services"
)

type groupUserQuest struct {
	container *do.Injector
}

// statusFilter reads ?status=accepted,in_progress. Unknown values are ignored.
func statusFilter(raw string) []models.UserQuestStatus {
	var statuses []models.UserQuestStatus
	for _, s := range strings.Split(raw, ",") {
		switch status := models.UserQuestStatus(strings.TrimSpace(s)); status {
		case models.UserQuestAccepted, models.UserQuestInProgress, models.UserQuestReadyToClaim,
			models.UserQuestAwaitingFinalApproval, models.UserQuestCompleted,
			models.UserQuestAbandoned, models.UserQuestExpired:
			statuses = append(statuses, status)
		}
	}
	return statuses
}

func (gr *groupUserQuest) List(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userQuests, err := serviceProgression.ListMyQuests(ctx, principal, statusFilter(c.QueryParam("status")))
	return abort(c, userQuests, err)
}

func (gr *groupUserQuest) Show(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	userQuestID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userQuest, err := serviceProgression.GetUserQuest(ctx, principal, userQuestID)
	return abort(c, userQuest, err)
}

func (gr *groupUserQuest) Abandon(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	userQuestID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userQuest, err := serviceProgression.AbandonQuest(ctx, principal, userQuestID)
	return abort(c, userQuest, err)
}

func (gr *groupUserQuest) Claim(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	userQuestID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userQuest, err := serviceProgression.ClaimQuestReward(ctx, principal, userQuestID)
	return abort(c, userQuest, err)
}

func (gr *groupUserQuest) RequestExtension(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	userQuestID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	var payload api.ExtensionRequestPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userQuest, err := serviceProgression.RequestExtension(ctx, principal, userQuestID, payload.Reason)
	return abort(c, userQuest, err)
}

type groupUserObjective struct {
	container *do.Injector
}

func (gr *groupUserObjective) SubmitEvidence(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	userObjectiveID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	var payload api.EvidencePayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userObjective, err := serviceProgression.SubmitEvidence(ctx, principal, userObjectiveID, progression.Evidence{
		Text: payload.Text,
		URL:  payload.URL,
	})
	return abort(c, userObjective, err)
}

func (gr *groupUserObjective) Complete(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	userObjectiveID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userQuest, err := serviceProgression.MarkComplete(ctx, principal, userObjectiveID)
	return abort(c, userQuest, err)
}

func (gr *groupUserObjective) Uncheck(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	userObjectiveID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userQuest, err := serviceProgression.UncheckObjective(ctx, principal, userObjectiveID)
	return abort(c, userQuest, err)
}
