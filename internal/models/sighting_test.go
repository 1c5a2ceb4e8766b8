package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmStateTransitions(t *testing.T) {
	tests := []struct {
		from    ConfirmState
		to      ConfirmState
		allowed bool
	}{
		{ConfirmStateReview, ConfirmStateReview, true},
		{ConfirmStateReview, ConfirmStateConfirmed, true},
		{ConfirmStateReview, ConfirmStateDeleted, true},
		{ConfirmStateConfirmed, ConfirmStateReview, true},
		{ConfirmStateConfirmed, ConfirmStateConfirmed, true},
		{ConfirmStateConfirmed, ConfirmStateDeleted, false},
		{ConfirmStateDeleted, ConfirmStateReview, true},
		{ConfirmStateDeleted, ConfirmStateConfirmed, false},
		{ConfirmStateDeleted, ConfirmStateDeleted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := tt.from.Transition(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got)
				return
			}
			require.ErrorIs(t, err, ErrIllegalTransition)
			assert.Equal(t, tt.from, got)
		})
	}
}

func TestConfirmStateRejectsUnknownValues(t *testing.T) {
	_, err := ConfirmState("Archived").Transition(ConfirmStateReview)
	assert.ErrorIs(t, err, ErrInvalidConfirmState)

	_, err = ConfirmStateReview.Transition("")
	assert.ErrorIs(t, err, ErrInvalidConfirmState)
}

func TestParseConfirmState(t *testing.T) {
	state, err := ParseConfirmState("Confirmed")
	require.NoError(t, err)
	assert.Equal(t, ConfirmStateConfirmed, state)

	_, err = ParseConfirmState("confirmed")
	assert.ErrorIs(t, err, ErrInvalidConfirmState)
}

func TestSightingFromFeed(t *testing.T) {
	apiID := "ext-42"
	assert.True(t, Sighting{APIID: &apiID}.FromFeed())
	assert.False(t, Sighting{}.FromFeed())
}
