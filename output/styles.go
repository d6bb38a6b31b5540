// Package output provides styling helpers for terminal output.
package output

import (
	"io"

	"github.com/muesli/termenv"
	"github.com/shopspring/decimal"
)

// Styles provides styled output helpers for the CLI.
type Styles struct {
	output *termenv.Output
}

// NewStyles creates a new Styles instance for the given writer.
func NewStyles(w io.Writer) *Styles {
	return &Styles{
		output: termenv.NewOutput(w),
	}
}

// Success returns a styled success string (green + bold).
func (s *Styles) Success(text string) string {
	return s.output.String(text).
		Foreground(s.output.Color("2")).
		Bold().
		String()
}

// Error returns a styled error string (red + bold).
func (s *Styles) Error(text string) string {
	return s.output.String(text).
		Foreground(s.output.Color("1")).
		Bold().
		String()
}

// FilePath returns a styled file path (cyan).
func (s *Styles) FilePath(text string) string {
	return s.output.String(text).
		Foreground(s.output.Color("6")).
		String()
}

// Node returns a styled logbook node or rule name (yellow).
func (s *Styles) Node(text string) string {
	return s.output.String(text).
		Foreground(s.output.Color("3")).
		String()
}

// Tag returns a styled tag (magenta).
func (s *Styles) Tag(text string) string {
	return s.output.String("#" + text).
		Foreground(s.output.Color("5")).
		String()
}

// Amount formats value with two decimals and colors it by sign: red for
// withdrawals, green for deposits. Zero is dimmed.
func (s *Styles) Amount(value decimal.Decimal, currency string) string {
	text := value.StringFixed(2)
	if currency != "" {
		text += " " + currency
	}
	switch value.Sign() {
	case -1:
		return s.output.String(text).Foreground(s.output.Color("1")).String()
	case 1:
		return s.output.String(text).Foreground(s.output.Color("2")).String()
	}
	return s.Dim(text)
}

// Change formats a relative change in percent. Missing values are shown
// as a dimmed dash.
func (s *Styles) Change(change decimal.NullDecimal) string {
	if !change.Valid {
		return s.Dim("-")
	}
	text := change.Decimal.StringFixed(2) + "%"
	if change.Decimal.IsPositive() {
		text = "+" + text
	}
	return text
}

// Keyword returns a styled keyword (bold).
func (s *Styles) Keyword(text string) string {
	return s.output.String(text).
		Bold().
		String()
}

// Dim returns dimmed text (for secondary information).
func (s *Styles) Dim(text string) string {
	return s.output.String(text).
		Faint().
		String()
}

// Warning returns a styled warning (yellow + bold).
func (s *Styles) Warning(text string) string {
	return s.output.String(text).
		Foreground(s.output.Color("3")).
		Bold().
		String()
}

// Timing returns a styled timing string. Slow operations are red, the
// rest dimmed.
func (s *Styles) Timing(text string, isSlowOperation bool) string {
	if isSlowOperation {
		return s.output.String(text).
			Foreground(s.output.Color("1")).
			String()
	}
	return s.Dim(text)
}

// Output returns the underlying termenv Output for advanced usage.
func (s *Styles) Output() *termenv.Output {
	return s.output
}
