package progression

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindNotAuthenticated Kind = "not_authenticated"
	KindNotAuthorized    Kind = "not_authorized"
	KindNotFound         Kind = "not_found"
	KindInvalidState     Kind = "invalid_state"
	KindValidation       Kind = "validation"
)

// Error is a rule violation surfaced to the caller. A target with an empty Code
// matches every error of its Kind, so errors.Is(err, ErrInvalidState) holds for
// any member of the invalid-state family.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrNotAuthenticated = newError(KindNotAuthenticated, "not_authenticated", "not authenticated")
	ErrNotAuthorized    = newError(KindNotAuthorized, "not_authorized", "not authorized")
	ErrNotFound         = newError(KindNotFound, "", "not found")
	ErrInvalidState     = newError(KindInvalidState, "", "invalid state")
	ErrValidation       = newError(KindValidation, "", "invalid input")
)

var (
	ErrQuestNotAvailable     = newError(KindInvalidState, "quest_not_available", "quest is not available")
	ErrAlreadyAccepted       = newError(KindInvalidState, "already_accepted", "quest already accepted")
	ErrAlreadyCompleted      = newError(KindInvalidState, "already_completed", "quest already completed")
	ErrNotAvailable          = newError(KindInvalidState, "not_available", "objective is locked")
	ErrAlreadySubmitted      = newError(KindInvalidState, "already_submitted", "evidence already submitted")
	ErrAlreadyApproved       = newError(KindInvalidState, "already_approved", "objective already approved")
	ErrNotSubmitted          = newError(KindInvalidState, "not_submitted", "objective has no pending submission")
	ErrCannotUnlock          = newError(KindInvalidState, "cannot_unlock", "locked objectives cannot be reset")
	ErrQuestInactive         = newError(KindInvalidState, "quest_inactive", "quest is no longer active")
	ErrAlreadyClaimed        = newError(KindInvalidState, "already_claimed", "reward already claimed")
	ErrAwaitingApproval      = newError(KindInvalidState, "awaiting_final_approval", "quest is awaiting final approval")
	ErrNotAwaitingApproval   = newError(KindInvalidState, "not_awaiting_final_approval", "quest is not awaiting final approval")
	ErrObjectivesIncomplete  = newError(KindInvalidState, "objectives_incomplete", "all objectives must be approved before claiming")
	ErrCannotAbandon         = newError(KindInvalidState, "cannot_abandon", "quest cannot be abandoned")
	ErrAlreadyRequested      = newError(KindInvalidState, "already_requested", "extension already requested")
	ErrNoDeadline            = newError(KindInvalidState, "no_deadline", "quest has no deadline to extend")
	ErrNoPendingExtension    = newError(KindInvalidState, "no_pending_extension", "no pending extension request")
	ErrEvidenceRequired      = newError(KindInvalidState, "evidence_required", "objective requires evidence, submit it for review")
	ErrEvidenceNotRequired   = newError(KindInvalidState, "evidence_not_required", "objective does not take evidence, mark it complete")
	ErrQuestStructureLocked  = newError(KindInvalidState, "quest_structure_locked", "quest has active attempts, only title, description and badge can change")
	ErrInvalidCode           = newError(KindValidation, "invalid_code", "invalid exclusive code")
	ErrExclusiveCodeRequired = newError(KindValidation, "exclusive_code_required", "exclusive code required")
	ErrFeedbackRequired      = newError(KindValidation, "feedback_required", "feedback must be between 10 and 500 characters")
	ErrFeedbackTooLong       = newError(KindValidation, "feedback_too_long", "feedback must be at most 500 characters")
	ErrReasonLength          = newError(KindValidation, "reason_length", "reason must be between 10 and 500 characters")
	ErrDeadlineNotInFuture   = newError(KindValidation, "deadline_not_in_future", "new deadline must be in the future")
	ErrEvidenceMissing       = newError(KindValidation, "evidence_missing", "evidence text or link is required")
	ErrEvidenceType          = newError(KindValidation, "evidence_type", "evidence does not match the objective's evidence type")
	ErrEvidenceLength        = newError(KindValidation, "evidence_length", "evidence text must be between 10 and 2000 characters")
	ErrInvalidURL            = newError(KindValidation, "invalid_url", "evidence link must be a valid http(s) URL")
	ErrInvalidDecision       = newError(KindValidation, "invalid_decision", "decision must be approve or reject")
	ErrInvalidObjectiveGraph = newError(KindValidation, "invalid_objective_graph", "invalid objective dependencies")
)

// NotFound turns a missing row into a not-found error naming what was looked
// up. Other errors pass through.
func NotFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Kind: KindNotFound, Code: what + "_not_found", Message: strings.ReplaceAll(what, "_", " ") + " not found"}
	}
	return err
}

// Invalid builds a one-off validation error for input checks outside the engine.
func Invalid(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}
