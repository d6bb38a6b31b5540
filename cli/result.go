package cli

import (
	"errors"

	"github.com/budgetlog/logbook/config"
)

// Exit codes returned by the logbook command.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 2
)

// CommandError signals a command failure with a specific exit code.
// Commands return this after handling all output (printing errors/warnings to stderr).
// Main centralizes exit handling instead of commands calling os.Exit directly.
type CommandError struct {
	exitCode int
}

// NewCommandError creates a new CommandError with the given exit code.
func NewCommandError(exitCode int) *CommandError {
	return &CommandError{exitCode: exitCode}
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return "command failed"
}

// ExitCode returns the exit code associated with this error.
func (e *CommandError) ExitCode() int {
	return e.exitCode
}

// ExitCode maps the error returned by a command to the process exit code.
// Invalid configuration exits with ExitConfig.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode()
	}
	var invalid *config.ValidationErrors
	if errors.As(err, &invalid) {
		return ExitConfig
	}
	return ExitFailed
}

// Reported reports whether err was already printed by the command.
func Reported(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}
