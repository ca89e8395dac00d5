package progression

import (
	"slices"

	"guildhall/internal/models"
)

// rule is one row of a transition table: the statuses an event may fire from,
// the status it lands on, and the error reported for each status it may not.
type rule[S ~string] struct {
	from   []S
	to     S
	denied map[S]*Error
	deny   *Error
}

func (r rule[S]) check(current S) error {
	if slices.Contains(r.from, current) {
		return nil
	}
	if err, ok := r.denied[current]; ok {
		return err
	}
	return r.deny.WithMessage("%s (status %s)", r.deny.Message, current)
}

type objectiveEvent int

const (
	objectiveSubmit objectiveEvent = iota
	objectiveMarkComplete
	objectiveApprove
	objectiveReject
	objectiveUncheck
	objectiveUnlock
)

var userObjectiveRules = map[objectiveEvent]rule[models.UserObjectiveStatus]{
	objectiveSubmit: {
		from: []models.UserObjectiveStatus{models.UserObjectiveAvailable, models.UserObjectiveRejected},
		to:   models.UserObjectiveSubmitted,
		denied: map[models.UserObjectiveStatus]*Error{
			models.UserObjectiveLocked:    ErrNotAvailable,
			models.UserObjectiveSubmitted: ErrAlreadySubmitted,
			models.UserObjectiveApproved:  ErrAlreadyApproved,
		},
		deny: ErrNotAvailable,
	},
	objectiveMarkComplete: {
		from: []models.UserObjectiveStatus{models.UserObjectiveAvailable, models.UserObjectiveRejected},
		to:   models.UserObjectiveApproved,
		denied: map[models.UserObjectiveStatus]*Error{
			models.UserObjectiveLocked:    ErrNotAvailable,
			models.UserObjectiveSubmitted: ErrAlreadySubmitted,
			models.UserObjectiveApproved:  ErrAlreadyApproved,
		},
		deny: ErrNotAvailable,
	},
	objectiveApprove: {
		from: []models.UserObjectiveStatus{models.UserObjectiveSubmitted},
		to:   models.UserObjectiveApproved,
		denied: map[models.UserObjectiveStatus]*Error{
			models.UserObjectiveApproved: ErrAlreadyApproved,
		},
		deny: ErrNotSubmitted,
	},
	// a rejection hands the objective back to the user instead of parking it
	objectiveReject: {
		from: []models.UserObjectiveStatus{models.UserObjectiveSubmitted, models.UserObjectiveApproved},
		to:   models.UserObjectiveAvailable,
		deny: ErrNotSubmitted,
	},
	objectiveUncheck: {
		from: []models.UserObjectiveStatus{
			models.UserObjectiveAvailable,
			models.UserObjectiveSubmitted,
			models.UserObjectiveApproved,
			models.UserObjectiveRejected,
		},
		to:   models.UserObjectiveAvailable,
		deny: ErrCannotUnlock,
	},
	objectiveUnlock: {
		from: []models.UserObjectiveStatus{models.UserObjectiveLocked},
		to:   models.UserObjectiveAvailable,
		deny: ErrInvalidState,
	},
}

type questEvent int

const (
	questReaccept questEvent = iota
	questStart
	questReady
	questRegress
	questComplete
	questAwaitApproval
	questFinalApprove
	questFinalReject
	questAbandon
	questExpire
	questRevive
	questReviveIdle
)

var claimable = []models.UserQuestStatus{
	models.UserQuestAccepted,
	models.UserQuestInProgress,
	models.UserQuestReadyToClaim,
}

var claimDenied = map[models.UserQuestStatus]*Error{
	models.UserQuestCompleted:             ErrAlreadyClaimed,
	models.UserQuestAwaitingFinalApproval: ErrAwaitingApproval,
	models.UserQuestAbandoned:             ErrQuestInactive,
	models.UserQuestExpired:               ErrQuestInactive,
}

var userQuestRules = map[questEvent]rule[models.UserQuestStatus]{
	questReaccept: {
		from: []models.UserQuestStatus{models.UserQuestAbandoned, models.UserQuestExpired},
		to:   models.UserQuestAccepted,
		denied: map[models.UserQuestStatus]*Error{
			models.UserQuestCompleted: ErrAlreadyCompleted,
		},
		deny: ErrAlreadyAccepted,
	},
	questStart: {
		from: []models.UserQuestStatus{models.UserQuestAccepted},
		to:   models.UserQuestInProgress,
		deny: ErrInvalidState,
	},
	questReady: {
		from: []models.UserQuestStatus{models.UserQuestAccepted, models.UserQuestInProgress},
		to:   models.UserQuestReadyToClaim,
		deny: ErrInvalidState,
	},
	questRegress: {
		from: []models.UserQuestStatus{models.UserQuestReadyToClaim, models.UserQuestAwaitingFinalApproval},
		to:   models.UserQuestInProgress,
		deny: ErrInvalidState,
	},
	questComplete: {
		from:   claimable,
		to:     models.UserQuestCompleted,
		denied: claimDenied,
		deny:   ErrInvalidState,
	},
	questAwaitApproval: {
		from:   claimable,
		to:     models.UserQuestAwaitingFinalApproval,
		denied: claimDenied,
		deny:   ErrInvalidState,
	},
	questFinalApprove: {
		from: []models.UserQuestStatus{models.UserQuestAwaitingFinalApproval},
		to:   models.UserQuestCompleted,
		denied: map[models.UserQuestStatus]*Error{
			models.UserQuestCompleted: ErrAlreadyClaimed,
		},
		deny: ErrNotAwaitingApproval,
	},
	questFinalReject: {
		from: []models.UserQuestStatus{models.UserQuestAwaitingFinalApproval},
		to:   models.UserQuestInProgress,
		deny: ErrNotAwaitingApproval,
	},
	questAbandon: {
		from: []models.UserQuestStatus{models.UserQuestAccepted, models.UserQuestInProgress},
		to:   models.UserQuestAbandoned,
		deny: ErrCannotAbandon,
	},
	questExpire: {
		from: []models.UserQuestStatus{models.UserQuestAccepted, models.UserQuestInProgress},
		to:   models.UserQuestExpired,
		deny: ErrInvalidState,
	},
	questRevive: {
		from: []models.UserQuestStatus{models.UserQuestExpired},
		to:   models.UserQuestInProgress,
		deny: ErrInvalidState,
	},
	// expired before any objective was touched
	questReviveIdle: {
		from: []models.UserQuestStatus{models.UserQuestExpired},
		to:   models.UserQuestAccepted,
		deny: ErrInvalidState,
	},
}

func transitionObjective(uo *models.UserObjective, ev objectiveEvent) error {
	r := userObjectiveRules[ev]
	if err := r.check(uo.Status); err != nil {
		return err
	}
	uo.Status = r.to
	return nil
}

func transitionQuest(uq *models.UserQuest, ev questEvent) error {
	r := userQuestRules[ev]
	if err := r.check(uq.Status); err != nil {
		return err
	}
	uq.Status = r.to
	return nil
}

// canFire reports whether ev is allowed from the current status without applying it.
func canFire(uq *models.UserQuest, ev questEvent) bool {
	return userQuestRules[ev].check(uq.Status) == nil
}
