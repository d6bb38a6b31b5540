package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/budgetlog/logbook/config"
)

func TestCommandError(t *testing.T) {
	t.Run("implements error interface", func(t *testing.T) {
		err := NewCommandError(1)
		assert.Error(t, err)
	})

	t.Run("returns exit code", func(t *testing.T) {
		err := NewCommandError(42)
		assert.Equal(t, err.ExitCode(), 42)
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     int
		reported bool
	}{
		{"Success", nil, ExitOK, false},
		{"CommandError", NewCommandError(3), 3, true},
		{"WrappedCommandError", fmt.Errorf("check: %w", NewCommandError(1)), 1, true},
		{"InvalidConfig", &config.ValidationErrors{Errors: []error{errors.New("database.path is required")}}, ExitConfig, false},
		{"Other", errors.New("boom"), ExitFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
			assert.Equal(t, tt.reported, Reported(tt.err))
		})
	}
}
