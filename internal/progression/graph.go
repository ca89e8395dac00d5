package progression

import (
	"github.com/google/uuid"

	"guildhall/internal/models"
)

// ValidateObjectiveGraph checks that a quest's objectives form a forest of
// dependency chains: every predecessor belongs to the same quest and no chain
// loops back on itself.
func ValidateObjectiveGraph(objectives []*models.Objective) error {
	byID := make(map[uuid.UUID]*models.Objective, len(objectives))
	for _, o := range objectives {
		if _, dup := byID[o.ID]; dup {
			return ErrInvalidObjectiveGraph.WithMessage("objective %s listed twice", o.ID)
		}
		byID[o.ID] = o
	}

	for _, o := range objectives {
		if o.DependsOnID == nil {
			continue
		}
		parent, ok := byID[*o.DependsOnID]
		if !ok {
			return ErrInvalidObjectiveGraph.WithMessage("objective %q depends on an objective outside its quest", o.Title)
		}
		if parent.QuestID != o.QuestID {
			return ErrInvalidObjectiveGraph.WithMessage("objective %q depends on an objective outside its quest", o.Title)
		}
	}

	const (
		unseen = iota
		visiting
		done
	)
	state := make(map[uuid.UUID]int, len(objectives))
	for _, o := range objectives {
		// walk up the single-parent chain; meeting a node twice on one walk is a cycle
		var path []uuid.UUID
		cur := o
		for cur != nil && state[cur.ID] == unseen {
			state[cur.ID] = visiting
			path = append(path, cur.ID)
			if cur.DependsOnID == nil {
				cur = nil
				break
			}
			cur = byID[*cur.DependsOnID]
		}
		if cur != nil && state[cur.ID] == visiting {
			return ErrInvalidObjectiveGraph.WithMessage("objective %q is part of a dependency cycle", cur.Title)
		}
		for _, id := range path {
			state[id] = done
		}
	}

	return nil
}

// SyncLocks opens every locked objective whose predecessor is approved and
// returns the ones it changed. It never locks anything: once an objective has
// been opened it stays open even if its predecessor is later reset.
func SyncLocks(progress []*models.UserObjective) []*models.UserObjective {
	approved := make(map[uuid.UUID]bool, len(progress))
	for _, uo := range progress {
		if uo.Status == models.UserObjectiveApproved {
			approved[uo.ObjectiveID] = true
		}
	}

	var unlocked []*models.UserObjective
	for _, uo := range progress {
		if uo.Status != models.UserObjectiveLocked {
			continue
		}
		if uo.DependsOnObjectiveID == nil || approved[*uo.DependsOnObjectiveID] {
			if transitionObjective(uo, objectiveUnlock) == nil {
				unlocked = append(unlocked, uo)
			}
		}
	}
	return unlocked
}

// allApproved reports whether every objective of the quest has an approved
// progress row. A definition with no row counts as unfinished.
func allApproved(objectives map[uuid.UUID]*models.Objective, progress []*models.UserObjective) bool {
	approved := make(map[uuid.UUID]bool, len(progress))
	for _, uo := range progress {
		if uo.Status != models.UserObjectiveApproved {
			return false
		}
		approved[uo.ObjectiveID] = true
	}
	for id := range objectives {
		if !approved[id] {
			return false
		}
	}
	return true
}
