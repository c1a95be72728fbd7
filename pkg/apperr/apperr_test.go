package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
		severity Severity
	}{
		{"offline", fmt.Errorf("save goal: %w", ErrOffline), CategoryNetwork, SeverityLow},
		{"deadline", context.DeadlineExceeded, CategoryNetwork, SeverityMedium},
		{"classified", Storage("save snapshot", errors.New("disk full")), CategoryStorage, SeverityHigh},
		{"wrapped classified", fmt.Errorf("outer: %w", Validation("import", errors.New("bad"))), CategoryValidation, SeverityLow},
		{"plain", errors.New("boom"), CategoryUnknown, SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ae := Classify(tt.err)
			require.NotNil(t, ae)
			assert.Equal(t, tt.category, ae.Category)
			assert.Equal(t, tt.severity, ae.Severity)
		})
	}

	assert.Nil(t, Classify(nil))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := Sync("save goal", base)

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "sync: save goal: connection refused", err.Error())
	assert.True(t, err.Recoverable)
	assert.False(t, New(CategoryStorage, SeverityCritical, "", base).Recoverable)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Something went wrong. Please try again.", UserMessage(errors.New("boom")))
	assert.Contains(t, UserMessage(ErrOffline), "offline")
	assert.Empty(t, UserMessage(nil))
}
