package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("discharge: %w", ConcurrencyConflict("room", "42"))
	assert.True(t, IsConcurrencyConflict(err))
	assert.False(t, IsNotFound(err))

	nf := fmt.Errorf("load: %w", NotFound("admission", "7"))
	assert.True(t, IsNotFound(nf))
	assert.Equal(t, "load: admission 7 not found", nf.Error())
}

func TestExternalProviderUnwraps(t *testing.T) {
	cause := errors.New("timeout")
	err := ExternalProvider("stripe", cause)
	assert.ErrorIs(t, err, cause)

	var providerErr *ExternalProviderError
	assert.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "stripe", providerErr.Provider)
}

func TestSentinelsAreDistinct(t *testing.T) {
	assert.NotErrorIs(t, ErrRoomBusy, ErrRoomNotAvailable)
	assert.ErrorIs(t, fmt.Errorf("x: %w", ErrAlreadyDischarged), ErrAlreadyDischarged)
}
