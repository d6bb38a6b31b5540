package cli

import (
	"fmt"
	"io"

	"github.com/alecthomas/kong"

	"github.com/budgetlog/logbook/operation"
	"github.com/budgetlog/logbook/reconcile"
	"github.com/budgetlog/logbook/tagging"
)

type ImportCmd struct {
	File FileOrStdin `help:"JSON file with an array of operations (use '-' for stdin, or omit for stdin)." arg:"" optional:""`
	Mode string      `help:"How tag rules treat existing tags." enum:"append,from-scratch,skip" default:"append"`
}

func (cmd *ImportCmd) Run(ctx *kong.Context, globals *Globals) error {
	if err := cmd.File.EnsureContents(); err != nil {
		return err
	}
	mode, err := tagging.ParseMode(cmd.Mode)
	if err != nil {
		return err
	}

	s, err := globals.start(ctx, "import")
	if err != nil {
		return err
	}
	defer s.finish()

	r, err := cmd.File.Open()
	if err != nil {
		return err
	}
	ops, err := operation.Decode(r)
	_ = r.Close()
	if err != nil {
		return fmt.Errorf("read operations from %s: %w", cmd.File.Filename, err)
	}

	engine, _, closeAll, err := s.engine()
	if err != nil {
		return err
	}
	defer closeAll()

	res, err := engine.Run(s.ctx, ops, mode)
	if res == nil {
		return err
	}
	if err != nil {
		printWarningf(ctx.Stderr, "some events were not published: %v", err)
	}
	printResult(ctx.Stdout, res)
	return nil
}

// printResult summarizes a reconcile run.
func printResult(w io.Writer, res *reconcile.Result) {
	printSuccess(w, fmt.Sprintf("%d operation(s) reconciled", len(res.Operations)))
	printInfof(w, "%d registered, %d retagged", res.Registered, res.Retagged)
	for _, t := range res.Transfers {
		printInfof(w, "transfer %s: %s", pathStyle.Render(t.Accuracy.String()), t.Transfer)
	}
	for _, g := range res.Duplicates {
		printWarningf(w, "%d possible duplicates of %q (%s)", len(g.Operations), g.Description, g.Amount)
	}
	if len(res.Unmatched) > 0 {
		printInfof(w, "%d operation(s) without a transfer counterpart", len(res.Unmatched))
	}
}
