// Package errors provides error formatting for rule files.
// It separates error formatting from domain logic, allowing errors to be
// rendered in multiple formats for different consumers.
//
// The package defines a Formatter interface and provides two implementations:
//   - TextFormatter: formats errors for the terminal, quoting the offending
//     rule with a caret under the error position
//   - JSONFormatter: formats errors as structured JSON for tooling
//
// Domain-specific error types remain in their respective packages (e.g.
// parser, expr, loader), while this package handles the presentation layer.
package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/budgetlog/logbook/ast"
	"github.com/budgetlog/logbook/loader"
)

// Formatter formats errors for output in different formats.
type Formatter interface {
	// Format formats a single error.
	Format(err error) string

	// FormatAll formats multiple errors.
	FormatAll(errs []error) string
}

// sourced is implemented by errors that point into rule text.
type sourced interface {
	GetPosition() ast.Position
	GetSource() string
}

// Flatten expands aggregate rule errors into their entries.
func Flatten(err error) []error {
	if err == nil {
		return nil
	}
	var ruleErrs *loader.RuleErrors
	if errors.As(err, &ruleErrs) {
		out := make([]error, len(ruleErrs.Errors))
		for i, e := range ruleErrs.Errors {
			out[i] = e
		}
		return out
	}
	return []error{err}
}

// TextFormatter formats errors for command-line output.
type TextFormatter struct {
	location lipgloss.Style
	caret    lipgloss.Style
}

// TextFormatterOption is an option for configuring TextFormatter.
type TextFormatterOption func(*TextFormatter)

// WithoutColor disables styling.
func WithoutColor() TextFormatterOption {
	return func(tf *TextFormatter) {
		tf.location = lipgloss.NewStyle()
		tf.caret = lipgloss.NewStyle()
	}
}

// NewTextFormatter creates a new text formatter.
func NewTextFormatter(opts ...TextFormatterOption) *TextFormatter {
	tf := &TextFormatter{
		location: lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		caret:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
	for _, opt := range opts {
		opt(tf)
	}
	return tf
}

// Format formats a single error. Rule errors are headed by their file and
// rule; errors inside rule text quote the rule with a caret.
func (tf *TextFormatter) Format(err error) string {
	var ruleErrs *loader.RuleErrors
	if errors.As(err, &ruleErrs) {
		return tf.FormatAll(Flatten(ruleErrs))
	}

	var buf bytes.Buffer
	var ruleErr *loader.RuleError
	if errors.As(err, &ruleErr) {
		buf.WriteString(tf.location.Render(location(ruleErr)))
		buf.WriteString(": ")
		err = ruleErr.Err
	}

	var src sourced
	if !errors.As(err, &src) || src.GetSource() == "" {
		buf.WriteString(err.Error())
		return buf.String()
	}

	pos := src.GetPosition()
	buf.WriteString(strings.TrimSuffix(err.Error(), " in rule: "+src.GetSource()))
	buf.WriteString("\n\n")
	tf.writeExcerpt(&buf, src.GetSource(), pos)
	return strings.TrimRight(buf.String(), "\n")
}

// FormatAll formats multiple errors, separating them with blank lines.
func (tf *TextFormatter) FormatAll(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	var buf bytes.Buffer
	for i, err := range errs {
		buf.WriteString(tf.Format(err))

		if i < len(errs)-1 {
			buf.WriteString("\n\n")
		}
	}

	return buf.String()
}

// writeExcerpt writes the rule line holding pos, with the line before it
// for context, and a caret under the error column.
func (tf *TextFormatter) writeExcerpt(buf *bytes.Buffer, source string, pos ast.Position) {
	lines := strings.Split(source, "\n")
	line := pos.Line
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}

	start := max(line-2, 0)
	for i := start; i < line; i++ {
		buf.WriteString("   ")
		buf.WriteString(lines[i])
		buf.WriteByte('\n')
	}

	if pos.Column > 0 {
		text := []rune(lines[line-1])
		col := min(pos.Column-1, len(text))
		buf.WriteString("   ")
		buf.WriteString(strings.Repeat(" ", runewidth.StringWidth(string(text[:col]))))
		buf.WriteString(tf.caret.Render("^"))
		buf.WriteByte('\n')
	}
}

func location(e *loader.RuleError) string {
	if e.Index < 0 {
		return fmt.Sprintf("%s %s", e.File, e.Section)
	}
	return fmt.Sprintf("%s %s[%d]", e.File, e.Section, e.Index)
}

// JSONFormatter formats errors as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// ErrorJSON represents an error in JSON format.
type ErrorJSON struct {
	Type     string        `json:"type"`
	Message  string        `json:"message"`
	File     string        `json:"file,omitempty"`
	Section  string        `json:"section,omitempty"`
	Index    *int          `json:"index,omitempty"`
	Rule     string        `json:"rule,omitempty"`
	Position *PositionJSON `json:"position,omitempty"`
}

// PositionJSON represents a position inside rule text.
type PositionJSON struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Format formats a single error as JSON.
func (jf *JSONFormatter) Format(err error) string {
	data, _ := json.Marshal(jf.toJSON(err))
	return string(data)
}

// FormatAll formats multiple errors as a JSON array.
func (jf *JSONFormatter) FormatAll(errs []error) string {
	data, _ := json.MarshalIndent(jf.FormatAllToSlice(errs), "", "  ")
	return string(data)
}

// FormatAllToSlice returns errors as a slice of ErrorJSON structs.
// Aggregate rule errors contribute one entry per rule.
func (jf *JSONFormatter) FormatAllToSlice(errs []error) []ErrorJSON {
	result := make([]ErrorJSON, 0, len(errs))
	for _, err := range errs {
		for _, e := range Flatten(err) {
			result = append(result, jf.toJSON(e))
		}
	}
	return result
}

func (jf *JSONFormatter) toJSON(err error) ErrorJSON {
	cause := err
	errJSON := ErrorJSON{}

	var ruleErr *loader.RuleError
	if errors.As(err, &ruleErr) {
		errJSON.File = ruleErr.File
		errJSON.Section = ruleErr.Section
		if ruleErr.Index >= 0 {
			index := ruleErr.Index
			errJSON.Index = &index
		}
		cause = ruleErr.Err
	}
	errJSON.Type = fmt.Sprintf("%T", cause)
	errJSON.Message = cause.Error()

	var src sourced
	if errors.As(cause, &src) {
		errJSON.Rule = src.GetSource()
		errJSON.Message = strings.TrimSuffix(errJSON.Message, " in rule: "+src.GetSource())
		if pos := src.GetPosition(); pos.Line > 0 {
			errJSON.Position = &PositionJSON{Line: pos.Line, Column: pos.Column}
		}
	}
	return errJSON
}
