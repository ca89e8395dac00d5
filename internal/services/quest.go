package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/uptrace/bun"

	"guildhall/internal/datastore"
	"guildhall/internal/models"
	"guildhall/internal/pkg/caching"
	"guildhall/internal/pkg/storage"
	"guildhall/internal/progression"
)

var validate = validator.New()

type ObjectiveInput struct {
	// Ref names the objective inside the request so siblings can depend on it.
	// An existing objective id works too.
	Ref              string              `json:"ref" toml:"ref" validate:"omitempty,max=64"`
	Title            string              `json:"title" toml:"title" validate:"required,min=3,max=200"`
	Description      string              `json:"description" toml:"description" validate:"max=2000"`
	Points           int                 `json:"points" toml:"points" validate:"min=0,max=100000"`
	DependsOn        string              `json:"depends_on" toml:"depends_on" validate:"omitempty,max=64"`
	EvidenceRequired bool                `json:"evidence_required" toml:"evidence_required"`
	EvidenceType     models.EvidenceType `json:"evidence_type" toml:"evidence_type" validate:"omitempty,oneof=none text link text_or_link"`
}

type QuestInput struct {
	Title                 string           `json:"title" toml:"title" validate:"required,min=3,max=200"`
	Description           string           `json:"description" toml:"description" validate:"max=5000"`
	Points                int              `json:"points" toml:"points" validate:"min=0,max=1000000"`
	CompletionDays        *int             `json:"completion_days" toml:"completion_days" validate:"omitempty,min=1,max=365"`
	IsExclusive           bool             `json:"is_exclusive" toml:"is_exclusive"`
	ExclusiveCode         *string          `json:"exclusive_code" toml:"exclusive_code" validate:"omitempty,min=4,max=64"`
	RequiresFinalApproval bool             `json:"requires_final_approval" toml:"requires_final_approval"`
	Status                string           `json:"status" toml:"status" validate:"omitempty,oneof=draft published archived"`
	Objectives            []ObjectiveInput `json:"objectives" toml:"objectives" validate:"max=50,dive"`
}

// QuestPatch changes only the fields that are set. Anything beyond title and
// description is refused while attempts are open.
type QuestPatch struct {
	Title                 *string           `json:"title" validate:"omitempty,min=3,max=200"`
	Description           *string           `json:"description" validate:"omitempty,max=5000"`
	Points                *int              `json:"points" validate:"omitempty,min=0,max=1000000"`
	CompletionDays        *int              `json:"completion_days" validate:"omitempty,min=0,max=365"`
	IsExclusive           *bool             `json:"is_exclusive"`
	ExclusiveCode         *string           `json:"exclusive_code" validate:"omitempty,min=4,max=64"`
	RequiresFinalApproval *bool             `json:"requires_final_approval"`
	Objectives            *[]ObjectiveInput `json:"objectives" validate:"omitempty,max=50,dive"`
}

func (patch *QuestPatch) structural() bool {
	return patch.Points != nil ||
		patch.CompletionDays != nil ||
		patch.IsExclusive != nil ||
		patch.ExclusiveCode != nil ||
		patch.RequiresFinalApproval != nil ||
		patch.Objectives != nil
}

func invalidInput(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		return progression.Invalid("invalid_input", "%s failed on %s", strings.ToLower(fe.Namespace()), fe.Tag())
	}
	return progression.Invalid("invalid_input", "%s", err.Error())
}

func trimmedCode(code *string) *string {
	if code == nil {
		return nil
	}
	c := strings.TrimSpace(*code)
	if c == "" {
		return nil
	}
	return &c
}

// buildObjectives turns request objectives into rows of questID, resolving
// depends_on against refs in the same request. A ref naming one of current keeps
// that objective's id; any other ref gets a fresh one.
func buildObjectives(questID uuid.UUID, inputs []ObjectiveInput, current []*models.Objective, now time.Time) ([]*models.Objective, error) {
	objectives := make([]*models.Objective, 0, len(inputs))
	refs := make(map[string]uuid.UUID, len(inputs))

	owned := make(map[uuid.UUID]bool, len(current))
	for _, o := range current {
		owned[o.ID] = true
	}

	for i, in := range inputs {
		id := uuid.New()
		if existing, err := uuid.Parse(in.Ref); err == nil && owned[existing] {
			id = existing
		}
		if in.Ref != "" {
			if _, dup := refs[in.Ref]; dup {
				return nil, progression.ErrInvalidObjectiveGraph.WithMessage("objective ref %q used twice", in.Ref)
			}
			refs[in.Ref] = id
		}

		kind := in.EvidenceType
		switch {
		case !in.EvidenceRequired:
			if kind != "" && kind != models.EvidenceNone {
				return nil, progression.Invalid("invalid_evidence_type", "objective %q takes no evidence but names type %s", in.Title, kind)
			}
			kind = models.EvidenceNone
		case kind == "":
			kind = models.EvidenceTextOrLink
		case kind == models.EvidenceNone:
			return nil, progression.Invalid("invalid_evidence_type", "objective %q requires evidence of some type", in.Title)
		}

		objectives = append(objectives, &models.Objective{
			ID:               id,
			QuestID:          questID,
			Title:            strings.TrimSpace(in.Title),
			Description:      strings.TrimSpace(in.Description),
			Points:           in.Points,
			DisplayOrder:     i + 1,
			EvidenceRequired: in.EvidenceRequired,
			EvidenceType:     kind,
			CreatedAt:        now,
		})
	}

	for i, in := range inputs {
		if in.DependsOn == "" {
			continue
		}
		parent, ok := refs[in.DependsOn]
		if !ok {
			return nil, progression.ErrInvalidObjectiveGraph.WithMessage("objective %q depends on unknown ref %q", in.Title, in.DependsOn)
		}
		objectives[i].DependsOnID = &parent
	}

	if err := progression.ValidateObjectiveGraph(objectives); err != nil {
		return nil, err
	}
	return objectives, nil
}

// BuildQuest validates an authoring request and returns the quest with its
// objectives, ready to insert.
func BuildQuest(input *QuestInput, createdBy uuid.UUID, now time.Time) (*models.Quest, error) {
	if err := validate.Struct(input); err != nil {
		return nil, invalidInput(err)
	}

	code := trimmedCode(input.ExclusiveCode)
	if input.IsExclusive && code == nil {
		return nil, progression.ErrExclusiveCodeRequired
	}
	if !input.IsExclusive {
		code = nil
	}

	status := models.QuestStatus(input.Status)
	if status == "" {
		status = models.QuestStatusDraft
	}

	quest := &models.Quest{
		ID:                    uuid.New(),
		Title:                 strings.TrimSpace(input.Title),
		Description:           strings.TrimSpace(input.Description),
		Points:                input.Points,
		Status:                status,
		CompletionDays:        input.CompletionDays,
		IsExclusive:           input.IsExclusive,
		ExclusiveCode:         code,
		RequiresFinalApproval: input.RequiresFinalApproval,
		CreatedBy:             createdBy,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	objectives, err := buildObjectives(quest.ID, input.Objectives, nil, now)
	if err != nil {
		return nil, err
	}
	quest.Objectives = objectives

	if status == models.QuestStatusPublished && len(objectives) == 0 {
		return nil, progression.ErrInvalidObjectiveGraph.WithMessage("a quest needs at least one objective before it is published")
	}
	return quest, nil
}

var badgeTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

type ServiceQuest struct {
	container          *do.Injector
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB
	cache              caching.Cache
	readonlyCache      caching.ReadOnlyCache
	uploader           storage.Uploader

	serviceIdentity *ServiceIdentity
}

func NewServiceQuest(container *do.Injector) (*ServiceQuest, error) {
	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	readonlyCache, err := do.Invoke[caching.ReadOnlyCache](container)
	if err != nil {
		return nil, err
	}

	// badge uploads are optional; without storage the endpoint reports it
	uploader, _ := do.Invoke[storage.Uploader](container)

	serviceIdentity, err := do.Invoke[*ServiceIdentity](container)
	if err != nil {
		return nil, err
	}

	return &ServiceQuest{container, postgresDB, readonlyPostgresDB, cache, readonlyCache, uploader, serviceIdentity}, nil
}

func (service *ServiceQuest) invalidate(ctx context.Context, questID uuid.UUID) {
	//nolint:errcheck
	service.cache.Delete(ctx, DBKeyQuest(questID))
	//nolint:errcheck
	service.cache.Delete(ctx, DBKeyPublishedQuests())
}

func (service *ServiceQuest) ListPublished(ctx context.Context) ([]*models.Quest, error) {
	callback := func() ([]*models.Quest, error) {
		quests, err := datastore.ListQuests(ctx, service.readonlyPostgresDB, []models.QuestStatus{models.QuestStatusPublished}, QUEST_LIST_DEFAULT_LIMIT*4, 0)
		if err != nil {
			return nil, err
		}
		if quests == nil {
			quests = []*models.Quest{}
		}
		return quests, nil
	}

	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyPublishedQuests(), CACHE_TTL_1_MIN, callback)
}

// ListAll is the GM catalog, drafts and archived quests included.
func (service *ServiceQuest) ListAll(ctx context.Context, principal *models.Principal, limit, offset int) ([]*models.Quest, error) {
	if err := service.serviceIdentity.RequireGameMaster(ctx, principal); err != nil {
		return nil, err
	}
	return datastore.ListQuests(ctx, service.readonlyPostgresDB, nil, limit, offset)
}

// GetQuest hides drafts and archived quests from everyone but GMs.
func (service *ServiceQuest) GetQuest(ctx context.Context, principal *models.Principal, questID uuid.UUID) (*models.Quest, error) {
	callback := func() (*models.Quest, error) {
		quest, err := datastore.GetQuestByID(ctx, service.readonlyPostgresDB, questID)
		return quest, progression.NotFound(err, "quest")
	}

	quest, err := caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyQuest(questID), CACHE_TTL_1_MIN, callback)
	if err != nil {
		return nil, err
	}

	if quest.Status != models.QuestStatusPublished {
		if principal == nil {
			return nil, progression.NotFound(sql.ErrNoRows, "quest")
		}
		ok, err := service.serviceIdentity.IsGameMaster(ctx, principal.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, progression.NotFound(sql.ErrNoRows, "quest")
		}
	}
	return quest, nil
}

func (service *ServiceQuest) CreateQuest(ctx context.Context, principal *models.Principal, input *QuestInput) (*models.Quest, error) {
	if err := service.serviceIdentity.RequireGameMaster(ctx, principal); err != nil {
		return nil, err
	}

	quest, err := BuildQuest(input, principal.ID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := datastore.InsertQuest(ctx, service.postgresDB, quest); err != nil {
		return nil, err
	}

	log.Printf("quest %s created by %s (%d objectives)\n", quest.ID, principal.ID, len(quest.Objectives))
	service.invalidate(ctx, quest.ID)
	return quest, nil
}

func (service *ServiceQuest) UpdateQuest(ctx context.Context, principal *models.Principal, questID uuid.UUID, patch *QuestPatch) (*models.Quest, error) {
	if err := service.serviceIdentity.RequireGameMaster(ctx, principal); err != nil {
		return nil, err
	}
	if err := validate.Struct(patch); err != nil {
		return nil, invalidInput(err)
	}

	var quest *models.Quest
	err := service.postgresDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := datastore.LockQuest(ctx, tx, questID); err != nil {
			return progression.NotFound(err, "quest")
		}

		var err error
		quest, err = datastore.GetQuestByID(ctx, tx, questID)
		if err != nil {
			return progression.NotFound(err, "quest")
		}

		if patch.structural() {
			open, err := datastore.CountOpenAttempts(ctx, tx, questID)
			if err != nil {
				return err
			}
			if open > 0 {
				return progression.ErrQuestStructureLocked
			}
		}

		columns, err := applyPatch(quest, patch)
		if err != nil {
			return err
		}

		if patch.Objectives == nil {
			_, err := datastore.EditQuest(ctx, tx, quest, columns...)
			return err
		}

		objectives, err := buildObjectives(quest.ID, *patch.Objectives, quest.Objectives, quest.UpdatedAt)
		if err != nil {
			return err
		}
		if quest.Status == models.QuestStatusPublished && len(objectives) == 0 {
			return progression.ErrInvalidObjectiveGraph.WithMessage("a published quest needs at least one objective")
		}
		quest.Objectives = objectives
		return datastore.ReplaceQuestObjectives(ctx, tx, quest, columns...)
	})
	if err != nil {
		return nil, err
	}

	service.invalidate(ctx, quest.ID)
	return quest, nil
}

// applyPatch copies the patch onto quest and returns the columns to write.
func applyPatch(quest *models.Quest, patch *QuestPatch) ([]string, error) {
	columns := []string{"updated_at"}
	if patch.Title != nil {
		quest.Title = strings.TrimSpace(*patch.Title)
		columns = append(columns, "title")
	}
	if patch.Description != nil {
		quest.Description = strings.TrimSpace(*patch.Description)
		columns = append(columns, "description")
	}
	if patch.Points != nil {
		quest.Points = *patch.Points
		columns = append(columns, "points")
	}
	if patch.CompletionDays != nil {
		quest.CompletionDays = patch.CompletionDays
		if *patch.CompletionDays == 0 {
			quest.CompletionDays = nil
		}
		columns = append(columns, "completion_days")
	}
	if patch.IsExclusive != nil {
		quest.IsExclusive = *patch.IsExclusive
		columns = append(columns, "is_exclusive", "exclusive_code")
	}
	if patch.ExclusiveCode != nil {
		quest.ExclusiveCode = trimmedCode(patch.ExclusiveCode)
		columns = append(columns, "exclusive_code")
	}
	if !quest.IsExclusive {
		quest.ExclusiveCode = nil
	} else if quest.ExclusiveCode == nil {
		return nil, progression.ErrExclusiveCodeRequired
	}
	if patch.RequiresFinalApproval != nil {
		quest.RequiresFinalApproval = *patch.RequiresFinalApproval
		columns = append(columns, "requires_final_approval")
	}
	quest.UpdatedAt = time.Now().UTC()
	return columns, nil
}

func (service *ServiceQuest) SetStatus(ctx context.Context, principal *models.Principal, questID uuid.UUID, status models.QuestStatus) (*models.Quest, error) {
	if err := service.serviceIdentity.RequireGameMaster(ctx, principal); err != nil {
		return nil, err
	}
	if err := validate.Var(string(status), "required,oneof=draft published archived"); err != nil {
		return nil, progression.Invalid("invalid_status", "status must be draft, published or archived")
	}

	quest, err := datastore.GetQuestByID(ctx, service.postgresDB, questID)
	if err != nil {
		return nil, progression.NotFound(err, "quest")
	}
	if status == models.QuestStatusPublished && len(quest.Objectives) == 0 {
		return nil, progression.ErrInvalidObjectiveGraph.WithMessage("a quest needs at least one objective before it is published")
	}

	quest.Status = status
	quest.UpdatedAt = time.Now().UTC()
	if _, err := datastore.EditQuest(ctx, service.postgresDB, quest, "status", "updated_at"); err != nil {
		return nil, err
	}

	log.Printf("quest %s moved to %s by %s\n", quest.ID, status, principal.ID)
	service.invalidate(ctx, quest.ID)
	return quest, nil
}

// UploadBadge stores a badge image and points the quest at it.
func (service *ServiceQuest) UploadBadge(ctx context.Context, principal *models.Principal, questID uuid.UUID, body []byte) (*models.Quest, error) {
	if err := service.serviceIdentity.RequireGameMaster(ctx, principal); err != nil {
		return nil, err
	}
	if service.uploader == nil {
		return nil, ErrStorageDisabled
	}
	if len(body) == 0 || len(body) > BADGE_MAX_BYTES {
		return nil, progression.Invalid("badge_size", "badge must be between 1 byte and %d bytes", BADGE_MAX_BYTES)
	}

	contentType := http.DetectContentType(body)
	ext, ok := badgeTypes[contentType]
	if !ok {
		return nil, progression.Invalid("badge_type", "badge must be a png, jpeg, webp or gif image, got %s", contentType)
	}

	quest, err := datastore.GetQuestByID(ctx, service.postgresDB, questID)
	if err != nil {
		return nil, progression.NotFound(err, "quest")
	}

	url, err := service.uploader.Upload(ctx, fmt.Sprintf("badges/%s/%s.%s", quest.ID, uuid.NewString(), ext), contentType, body)
	if err != nil {
		return nil, err
	}

	quest.BadgeURL = &url
	quest.UpdatedAt = time.Now().UTC()
	if _, err := datastore.EditQuest(ctx, service.postgresDB, quest, "badge_url", "updated_at"); err != nil {
		return nil, err
	}

	service.invalidate(ctx, quest.ID)
	return quest, nil
}
