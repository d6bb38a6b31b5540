package cli

import (
	"fmt"
	"io"

	"github.com/alecthomas/kong"
	"github.com/alecthomas/repr"

	"github.com/budgetlog/logbook/errors"
	"github.com/budgetlog/logbook/operation"
	"github.com/budgetlog/logbook/parser"
	"github.com/budgetlog/logbook/tagging"
)

// DoctorCmd provides doctor utilities for debugging rules.
type DoctorCmd struct {
	Tokens  TokensCmd  `cmd:"" help:"Show lexical tokens of a rule."`
	AST     ASTCmd     `cmd:"" name:"ast" help:"Show the syntax tree of a rule."`
	Explain ExplainCmd `cmd:"" help:"Show which tag rules match the operations of a JSON file."`
}

// TokensCmd shows lexical tokens of a rule.
type TokensCmd struct {
	Rule string `help:"Rule text, for example 'o => o.amount < 0'." arg:""`
}

// Run executes the tokens command.
func (cmd *TokensCmd) Run(ctx *kong.Context) error {
	writeTokens(ctx.Stdout, cmd.Rule)
	return nil
}

// writeTokens prints tokens in the format: TYPE line:col "content"
func writeTokens(w io.Writer, rule string) {
	for _, token := range parser.NewLexer(rule).ScanAll() {
		if token.Type == parser.EOF {
			continue
		}
		_, _ = fmt.Fprintf(w, "%-10s %d:%d    %q\n",
			token.Type.String(),
			token.Line,
			token.Column,
			token.String(rule))
	}
}

// ASTCmd shows the syntax tree of a rule.
type ASTCmd struct {
	Rule  string `help:"Rule text." arg:""`
	Arity int    `help:"Number of lambda parameters." default:"1"`
}

// Run executes the ast command.
func (cmd *ASTCmd) Run(ctx *kong.Context) error {
	lambda, err := parser.Parse(cmd.Rule, cmd.Arity)
	if err != nil {
		_, _ = fmt.Fprintln(ctx.Stderr, errors.NewTextFormatter().Format(err))
		return NewCommandError(1)
	}
	repr.New(ctx.Stdout).Println(lambda)
	return nil
}

// ExplainCmd lists the tag rules matching each operation.
type ExplainCmd struct {
	File FileOrStdin `help:"JSON file with an array of operations (use '-' for stdin, or omit for stdin)." arg:"" optional:""`
}

// Run executes the explain command.
func (cmd *ExplainCmd) Run(ctx *kong.Context, globals *Globals) error {
	if err := cmd.File.EnsureContents(); err != nil {
		return err
	}
	s, err := globals.start(ctx, "explain")
	if err != nil {
		return err
	}
	defer s.finish()

	rules, err := s.loadRules()
	if err != nil {
		return err
	}
	r, err := cmd.File.Open()
	if err != nil {
		return err
	}
	ops, err := operation.Decode(r)
	_ = r.Close()
	if err != nil {
		return fmt.Errorf("read operations from %s: %w", cmd.File.Filename, err)
	}

	for _, op := range ops {
		_, _ = fmt.Fprintln(ctx.Stdout, op)
		matches := tagging.Explain(op, rules.Tags)
		if len(matches) == 0 {
			_, _ = fmt.Fprintln(ctx.Stdout, "  no rule matches")
			continue
		}
		for _, m := range matches {
			_, _ = fmt.Fprintf(ctx.Stdout, "  %s from rule %d: %s\n", m.Tag, m.Index, m.Rule)
		}
	}
	return nil
}
