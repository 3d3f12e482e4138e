package project

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/errs"
)

const (
	minTitleLen  = 3
	maxTitleLen  = 200
	maxNotesLen  = 500
	minApprovals = 1
	maxApprovals = 10

	minDescriptionLen = 10
	amountScale       = 2
)

// maxAmount is the first value NUMERIC(14, 2) cannot hold
var maxAmount = decimal.New(1, 12)

// CreateInput is a new project proposal
type CreateInput struct {
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	ProposedAmount    decimal.Decimal `json:"proposed_amount"`
	RequiredApprovals int             `json:"required_approvals"`
}

func (in *CreateInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
}

func (in CreateInput) validate() error {
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	if err := validateDescription(in.Description); err != nil {
		return err
	}
	if err := validateAmount(in.ProposedAmount); err != nil {
		return err
	}
	return validateApprovals(in.RequiredApprovals)
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n == 0 {
		return errs.Validation("title is required")
	}
	if n < minTitleLen || n > maxTitleLen {
		return errs.Validation("title must be between %d and %d characters", minTitleLen, maxTitleLen)
	}
	return nil
}

func validateDescription(description string) error {
	n := utf8.RuneCountInString(description)
	if n == 0 {
		return errs.Validation("description is required")
	}
	if n < minDescriptionLen {
		return errs.Validation("description must be at least %d characters", minDescriptionLen)
	}
	return nil
}

// validateAmount accepts what the proposed_amount column stores exactly
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errs.Validation("proposed amount must be a positive number")
	}
	if !amount.Equal(amount.Round(amountScale)) {
		return errs.Validation("proposed amount must have at most %d decimal places", amountScale)
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return errs.Validation("proposed amount must be less than %s", maxAmount)
	}
	return nil
}

func validateApprovals(n int) error {
	if n < minApprovals || n > maxApprovals {
		return errs.Validation("required approvals must be between %d and %d", minApprovals, maxApprovals)
	}
	return nil
}

func normalizePatch(p db.ProjectPatch) db.ProjectPatch {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		p.Title = &t
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		p.Description = &d
	}
	return p
}

func validatePatch(p db.ProjectPatch) error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.ProposedAmount != nil {
		if err := validateAmount(*p.ProposedAmount); err != nil {
			return err
		}
	}
	if p.RequiredApprovals != nil {
		return validateApprovals(*p.RequiredApprovals)
	}
	return nil
}

// normalizeNotes trims the note, treating a blank one as absent
func normalizeNotes(notes *string) (*string, error) {
	if notes == nil {
		return nil, nil
	}
	n := strings.TrimSpace(*notes)
	if n == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(n) > maxNotesLen {
		return nil, errs.Validation("notes must not exceed %d characters", maxNotesLen)
	}
	return &n, nil
}
