package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/budgetlog/logbook/errors"
	"github.com/budgetlog/logbook/loader"
	"github.com/budgetlog/logbook/telemetry"
)

type CheckCmd struct {
	File FileOrStdin `help:"Rules filename (use '-' for stdin, or omit for rules.path from the configuration)." arg:"" optional:""`
	JSON bool        `help:"Print rule errors as JSON." name:"json"`
}

func (cmd *CheckCmd) Run(ctx *kong.Context, globals *Globals) error {
	s, err := globals.start(ctx, "check")
	if err != nil {
		return err
	}
	defer s.finish()

	if cmd.File.Filename == "" {
		cmd.File.Filename = s.cfg.Rules.Path
	}

	_, err = checkRules(s.ctx, &cmd.File, cmd.JSON, ctx.Stdout, ctx.Stderr)
	return err
}

// checkRules loads and compiles file, reporting the outcome to stdout or
// stderr. Rule errors are printed and turned into a CommandError; other
// failures are returned as they are.
func checkRules(ctx context.Context, file *FileOrStdin, asJSON bool, stdout, stderr io.Writer) (*loader.File, error) {
	timer := telemetry.FromContext(ctx).Start(fmt.Sprintf("check %s", filepath.Base(file.Filename)))
	defer timer.End()

	ldr := loader.New(loader.WithFollowIncludes())
	f, err := file.LoadRules(ctx, ldr)
	if err != nil {
		return nil, err
	}

	compileTimer := timer.Child("compile")
	rules, err := loader.Compile(f)
	compileTimer.End()
	if err != nil {
		errs := errors.Flatten(err)
		var formatter errors.Formatter = errors.NewTextFormatter()
		if asJSON {
			formatter = errors.NewJSONFormatter()
		}
		_, _ = fmt.Fprintln(stderr, formatter.FormatAll(errs))

		_, _ = fmt.Fprintln(stderr)
		printError(stderr, fmt.Sprintf("%d rule error(s) found", len(errs)))
		return f, NewCommandError(1)
	}

	logbookRules := "no logbook"
	if rules.Logbook != nil {
		logbookRules = "a logbook"
	}
	printSuccess(stdout, fmt.Sprintf("Check passed: %d tag rule(s), %d transfer rule(s) and %s in %d file(s)",
		len(rules.Tags), len(rules.Transfers), logbookRules, len(rules.Files)))
	return f, nil
}
