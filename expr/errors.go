package expr

import (
	"fmt"

	"github.com/budgetlog/logbook/ast"
)

// CompileError reports a rule that parsed but does not type-check against its schema.
type CompileError struct {
	Pos     ast.Position
	Source  string // The rule text, rendered from the tree when not parsed
	Message string
}

func (e *CompileError) Error() string {
	if e.Pos.Line == 0 {
		return fmt.Sprintf("%s in rule: %s", e.Message, e.Source)
	}
	return fmt.Sprintf("%d:%d: %s in rule: %s", e.Pos.Line, e.Pos.Column, e.Message, e.Source)
}

// GetPosition returns where in the rule the error was detected.
func (e *CompileError) GetPosition() ast.Position {
	return e.Pos
}

// GetSource returns the offending rule text.
func (e *CompileError) GetSource() string {
	return e.Source
}

// RetargetError reports a rule that cannot be rewritten onto another schema.
type RetargetError struct {
	Path   string // Source member path, empty when the failure is not member related
	From   string // Source schema name
	To     string // Target schema name
	Reason string
	Err    error // Compile error of the rewritten rule, if any
}

func (e *RetargetError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("cannot retarget %s rule to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot retarget %s.%s to %s: %s", e.From, e.Path, e.To, e.Reason)
}

func (e *RetargetError) Unwrap() error {
	return e.Err
}
