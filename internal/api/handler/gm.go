package handler

import (
	"errors"
	"io"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"

	"guildhall/internal/api"
	"guildhall/internal/models"
	"guildhall/internal/progression"
	"guildhall/internal/services"
)

// groupGM holds the Game Master endpoints. Every service call checks the role
// itself; the handlers only parse input.
type groupGM struct {
	container *do.Injector
}

func (gr *groupGM) ListQuests(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	serviceQuest, err := do.Invoke[*services.ServiceQuest](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	limit, offset := pagination(c, services.QUEST_LIST_DEFAULT_LIMIT)
	quests, err := serviceQuest.ListAll(ctx, principal, limit, offset)
	return abort(c, quests, err)
}

func (gr *groupGM) CreateQuest(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	var payload services.QuestInput
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceQuest, err := do.Invoke[*services.ServiceQuest](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	quest, err := serviceQuest.CreateQuest(ctx, principal, &payload)
	return abort(c, quest, err)
}

func (gr *groupGM) UpdateQuest(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	questID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	var payload services.QuestPatch
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceQuest, err := do.Invoke[*services.ServiceQuest](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	quest, err := serviceQuest.UpdateQuest(ctx, principal, questID, &payload)
	return abort(c, quest, err)
}

func (gr *groupGM) SetQuestStatus(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	questID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	var payload api.QuestStatusPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceQuest, err := do.Invoke[*services.ServiceQuest](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	quest, err := serviceQuest.SetStatus(ctx, principal, questID, models.QuestStatus(payload.Status))
	return abort(c, quest, err)
}

func (gr *groupGM) UploadBadge(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	questID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	file, err := c.FormFile("badge")
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("badge file is required"), errorx.Invalid))
	}

	src, err := file.Open()
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}
	defer src.Close()

	// one extra byte lets the service see an oversized file
	body, err := io.ReadAll(io.LimitReader(src, services.BADGE_MAX_BYTES+1))
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceQuest, err := do.Invoke[*services.ServiceQuest](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	quest, err := serviceQuest.UploadBadge(ctx, principal, questID, body)
	return abort(c, quest, err)
}

func (gr *groupGM) ListSubmissions(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	limit, offset := pagination(c, services.GM_QUEUE_DEFAULT_LIMIT)
	submissions, err := serviceProgression.ListSubmissions(ctx, principal, limit, offset)
	return abort(c, submissions, err)
}

func (gr *groupGM) ReviewSubmission(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	userObjectiveID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	var payload api.ReviewSubmissionPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userObjective, err := serviceProgression.ReviewSubmission(ctx, principal, userObjectiveID, progression.Decision(payload.Decision), payload.Feedback)
	return abort(c, userObjective, err)
}

func (gr *groupGM) ListCompletions(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	limit, offset := pagination(c, services.GM_QUEUE_DEFAULT_LIMIT)
	userQuests, err := serviceProgression.ListCompletions(ctx, principal, limit, offset)
	return abort(c, userQuests, err)
}

func (gr *groupGM) ReviewCompletion(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	userQuestID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	var payload api.ReviewCompletionPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}
	if payload.Approved == nil {
		return abort(c, nil, progression.Invalid("approved_required", "approved is required"))
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userQuest, err := serviceProgression.ReviewQuestCompletion(ctx, principal, userQuestID, *payload.Approved, payload.Feedback)
	return abort(c, userQuest, err)
}

func (gr *groupGM) ListExtensions(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	limit, offset := pagination(c, services.GM_QUEUE_DEFAULT_LIMIT)
	userQuests, err := serviceProgression.ListExtensions(ctx, principal, limit, offset)
	return abort(c, userQuests, err)
}

func (gr *groupGM) DecideExtension(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := ResolvePrincipal(ctx)
	if err != nil {
		return abort(c, nil, err)
	}

	userQuestID, err := paramUUID(c, "id")
	if err != nil {
		return abort(c, nil, err)
	}

	var payload api.DecideExtensionPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}
	if payload.Approved == nil {
		return abort(c, nil, progression.Invalid("approved_required", "approved is required"))
	}

	serviceProgression, err := do.Invoke[*services.ServiceProgression](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	userQuest, err := serviceProgression.DecideExtension(ctx, principal, userQuestID, *payload.Approved, payload.NewDeadline)
	return abort(c, userQuest, err)
}
