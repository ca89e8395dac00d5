package progression

import (
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"guildhall/internal/models"
)

var validate = validator.New()

// Evidence is what a user hands in for an objective under review.
type Evidence struct {
	Text string `json:"text" validate:"omitempty,min=10,max=2000"`
	URL  string `json:"url" validate:"omitempty,url"`
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// CheckEvidence trims the submission and matches it against the objective's evidence type.
// A text or link objective drops the other field before it is validated.
func CheckEvidence(kind models.EvidenceType, ev Evidence) (Evidence, error) {
	ev.Text = strings.TrimSpace(ev.Text)
	ev.URL = strings.TrimSpace(ev.URL)

	if ev.Text == "" && ev.URL == "" {
		return ev, ErrEvidenceMissing
	}

	// each objective keeps only the kind of evidence it asks for
	switch kind {
	case models.EvidenceText:
		if ev.Text == "" {
			return ev, ErrEvidenceType.WithMessage("this objective takes text evidence")
		}
		ev.URL = ""
	case models.EvidenceLink:
		if ev.URL == "" {
			return ev, ErrEvidenceType.WithMessage("this objective takes a link as evidence")
		}
		ev.Text = ""
	}

	if err := validate.Struct(ev); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 && errs[0].Field() == "Text" {
			return ev, ErrEvidenceLength
		}
		return ev, ErrInvalidURL
	}

	if ev.URL != "" {
		u, err := url.Parse(ev.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ev, ErrInvalidURL
		}
	}

	return ev, nil
}

// CheckReason validates an extension request reason.
func CheckReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if err := validate.Var(reason, "min=10,max=500"); err != nil {
		return reason, ErrReasonLength
	}
	return reason, nil
}

// CheckFeedback validates reviewer feedback. Rejections must explain themselves.
func CheckFeedback(feedback *string, required bool) (*string, error) {
	var text string
	if feedback != nil {
		text = strings.TrimSpace(*feedback)
	}

	if required {
		if err := validate.Var(text, "min=10,max=500"); err != nil {
			return nil, ErrFeedbackRequired
		}
		return &text, nil
	}

	if text == "" {
		return nil, nil
	}
	if err := validate.Var(text, "max=500"); err != nil {
		return nil, ErrFeedbackTooLong
	}
	return &text, nil
}

func checkExclusiveCode(quest *models.Quest, code *string) error {
	if !quest.IsExclusive {
		return nil
	}
	if code == nil || strings.TrimSpace(*code) == "" {
		return ErrExclusiveCodeRequired
	}
	if quest.ExclusiveCode == nil || strings.TrimSpace(*code) != *quest.ExclusiveCode {
		return ErrInvalidCode
	}
	return nil
}
