package progression

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"guildhall/internal/models"
)

// memStore is an in-memory Repository. Transactions run one at a time, which
// stands in for the row locks of the real store, and are discarded on error.
type memStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	quests         map[uuid.UUID]models.Quest
	objectives     map[uuid.UUID]models.Objective
	userQuests     map[uuid.UUID]models.UserQuest
	userObjectives map[uuid.UUID]models.UserObjective
	awards         map[string]models.PointAward
	points         map[uuid.UUID]int
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		quests:         map[uuid.UUID]models.Quest{},
		objectives:     map[uuid.UUID]models.Objective{},
		userQuests:     map[uuid.UUID]models.UserQuest{},
		userObjectives: map[uuid.UUID]models.UserObjective{},
		awards:         map[string]models.PointAward{},
		points:         map[uuid.UUID]int{},
	}}
}

func (s memState) clone() memState {
	c := memState{
		quests:         make(map[uuid.UUID]models.Quest, len(s.quests)),
		objectives:     make(map[uuid.UUID]models.Objective, len(s.objectives)),
		userQuests:     make(map[uuid.UUID]models.UserQuest, len(s.userQuests)),
		userObjectives: make(map[uuid.UUID]models.UserObjective, len(s.userObjectives)),
		awards:         make(map[string]models.PointAward, len(s.awards)),
		points:         make(map[uuid.UUID]int, len(s.points)),
	}
	for k, v := range s.quests {
		c.quests[k] = v
	}
	for k, v := range s.objectives {
		c.objectives[k] = v
	}
	for k, v := range s.userQuests {
		c.userQuests[k] = v
	}
	for k, v := range s.userObjectives {
		c.userObjectives[k] = v
	}
	for k, v := range s.awards {
		c.awards[k] = v
	}
	for k, v := range s.points {
		c.points[k] = v
	}
	return c
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *memStore) addQuest(q *models.Quest, objectives ...*models.Objective) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.quests[q.ID] = *q
	for _, o := range objectives {
		s.state.objectives[o.ID] = *o
	}
}

// swapObjectives replaces the quest's definitions with fresh ones and drops
// progress rows that pointed at the old set, as the objective join would.
func (s *memStore) swapObjectives(questID uuid.UUID, objectives ...*models.Objective) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.state.objectives {
		if o.QuestID == questID {
			delete(s.state.objectives, id)
		}
	}
	for _, o := range objectives {
		s.state.objectives[o.ID] = *o
	}
	for id, uo := range s.state.userObjectives {
		if _, ok := s.state.objectives[uo.ObjectiveID]; !ok {
			delete(s.state.userObjectives, id)
		}
	}
}

func (s *memStore) userQuest(id uuid.UUID) models.UserQuest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.userQuests[id]
}

func (s *memStore) userObjective(id uuid.UUID) models.UserObjective {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.userObjectives[id]
}

func (s *memStore) pointsOf(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.points[userID]
}

func (s *memStore) awardCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.awards)
}

type memTx struct {
	state memState
}

func (tx *memTx) GetQuest(ctx context.Context, id uuid.UUID) (*models.Quest, error) {
	q, ok := tx.state.quests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &q, nil
}

func (tx *memTx) ListObjectives(ctx context.Context, questID uuid.UUID) ([]*models.Objective, error) {
	var list []*models.Objective
	for _, o := range tx.state.objectives {
		if o.QuestID == questID {
			o := o
			list = append(list, &o)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].DisplayOrder < list[j].DisplayOrder })
	return list, nil
}

func (tx *memTx) GetUserQuest(ctx context.Context, id uuid.UUID) (*models.UserQuest, error) {
	uq, ok := tx.state.userQuests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &uq, nil
}

func (tx *memTx) FindUserQuest(ctx context.Context, userID, questID uuid.UUID) (*models.UserQuest, error) {
	for _, uq := range tx.state.userQuests {
		if uq.UserID == userID && uq.QuestID == questID {
			uq := uq
			return &uq, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (tx *memTx) InsertUserQuest(ctx context.Context, uq *models.UserQuest) error {
	for _, existing := range tx.state.userQuests {
		if existing.UserID == uq.UserID && existing.QuestID == uq.QuestID {
			return ErrAlreadyAccepted
		}
	}
	tx.state.userQuests[uq.ID] = *uq
	return nil
}

func (tx *memTx) UpdateUserQuest(ctx context.Context, uq *models.UserQuest) error {
	if _, ok := tx.state.userQuests[uq.ID]; !ok {
		return sql.ErrNoRows
	}
	tx.state.userQuests[uq.ID] = *uq
	return nil
}

func (tx *memTx) ListOverdueUserQuests(ctx context.Context, now time.Time, limit int) ([]*models.UserQuest, error) {
	var list []*models.UserQuest
	for _, uq := range tx.state.userQuests {
		if uq.Deadline == nil || !uq.Deadline.Before(now) {
			continue
		}
		if uq.Status != models.UserQuestAccepted && uq.Status != models.UserQuestInProgress {
			continue
		}
		uq := uq
		list = append(list, &uq)
		if len(list) == limit {
			break
		}
	}
	return list, nil
}

func (tx *memTx) GetUserObjective(ctx context.Context, id uuid.UUID) (*models.UserObjective, error) {
	uo, ok := tx.state.userObjectives[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &uo, nil
}

func (tx *memTx) ListUserObjectives(ctx context.Context, userQuestID uuid.UUID) ([]*models.UserObjective, error) {
	var list []*models.UserObjective
	for _, uo := range tx.state.userObjectives {
		if uo.UserQuestID == userQuestID {
			uo := uo
			list = append(list, &uo)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return tx.state.objectives[list[i].ObjectiveID].DisplayOrder < tx.state.objectives[list[j].ObjectiveID].DisplayOrder
	})
	return list, nil
}

func (tx *memTx) ReplaceUserObjectives(ctx context.Context, userQuestID uuid.UUID, progress []*models.UserObjective) error {
	for id, uo := range tx.state.userObjectives {
		if uo.UserQuestID == userQuestID {
			delete(tx.state.userObjectives, id)
		}
	}
	for _, uo := range progress {
		tx.state.userObjectives[uo.ID] = *uo
	}
	return nil
}

func (tx *memTx) UpdateUserObjectives(ctx context.Context, progress ...*models.UserObjective) error {
	for _, uo := range progress {
		if _, ok := tx.state.userObjectives[uo.ID]; !ok {
			return sql.ErrNoRows
		}
		tx.state.userObjectives[uo.ID] = *uo
	}
	return nil
}

func (tx *memTx) AwardPoints(ctx context.Context, award *models.PointAward) (bool, error) {
	key := award.UserID.String() + "|" + award.Action
	if _, ok := tx.state.awards[key]; ok {
		return false, nil
	}
	tx.state.awards[key] = *award
	tx.state.points[award.UserID] += award.Points
	return true, nil
}
