package models

import (
	"errors"
	"fmt"
	"time"
)

// ConfirmState is the review workflow status of a sighting.
type ConfirmState string

const (
	ConfirmStateReview    ConfirmState = "Review"
	ConfirmStateConfirmed ConfirmState = "Confirmed"
	ConfirmStateDeleted   ConfirmState = "Deleted"
)

var (
	// ErrInvalidConfirmState is returned for values outside the three known states.
	ErrInvalidConfirmState = errors.New("invalid confirm state")
	// ErrIllegalTransition is returned when the workflow forbids moving between two states.
	ErrIllegalTransition = errors.New("illegal confirm state transition")
)

// Valid reports whether s is one of the known states.
func (s ConfirmState) Valid() bool {
	switch s {
	case ConfirmStateReview, ConfirmStateConfirmed, ConfirmStateDeleted:
		return true
	}
	return false
}

// ParseConfirmState converts a raw value into a ConfirmState.
func ParseConfirmState(raw string) (ConfirmState, error) {
	state := ConfirmState(raw)
	if !state.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidConfirmState, raw)
	}
	return state, nil
}

// Transition returns the state reached by moving from s to next.
// Staying in the same state is always allowed. A confirmed sighting can only
// go back to review, and a deleted sighting can only be restored to review.
func (s ConfirmState) Transition(next ConfirmState) (ConfirmState, error) {
	if !s.Valid() {
		return s, fmt.Errorf("%w: %q", ErrInvalidConfirmState, s)
	}
	if !next.Valid() {
		return s, fmt.Errorf("%w: %q", ErrInvalidConfirmState, next)
	}
	if s == next {
		return s, nil
	}
	switch s {
	case ConfirmStateReview:
		return next, nil
	case ConfirmStateConfirmed, ConfirmStateDeleted:
		if next == ConfirmStateReview {
			return next, nil
		}
	}
	return s, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, next)
}

// Sighting is a single reported whale sighting.
type Sighting struct {
	ID               int64        `db:"id" json:"id"`
	APIID            *string      `db:"api_id" json:"apiId,omitempty"`
	Species          string       `db:"species" json:"species"`
	Quantity         string       `db:"quantity" json:"quantity"`
	Location         string       `db:"location" json:"location"`
	Latitude         float64      `db:"latitude" json:"latitude"`
	Longitude        float64      `db:"longitude" json:"longitude"`
	Description      string       `db:"description" json:"description"`
	SightedAt        time.Time    `db:"sighted_at" json:"sightedAt"`
	SubmittedByName  string       `db:"submitted_by_name" json:"submittedByName"`
	SubmittedByEmail string       `db:"submitted_by_email" json:"submittedByEmail"`
	ConfirmState     ConfirmState `db:"confirm_state" json:"confirmState"`
	CreatedAt        time.Time    `db:"created_at" json:"createdAt"`
}

// FromFeed reports whether the sighting was ingested from the external feed.
func (s Sighting) FromFeed() bool {
	return s.APIID != nil
}

// SightingFilter encapsulates the public search parameters.
type SightingFilter struct {
	Species   string
	Location  string
	SightedAt *time.Time
	Page      int
	PageSize  int
	// CountAllStates makes Count ignore the confirmed-only restriction.
	CountAllStates bool
}
