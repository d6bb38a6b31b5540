package cli

import (
	"fmt"
	"io"

	"github.com/alecthomas/kong"

	"github.com/budgetlog/logbook/duplicates"
	"github.com/budgetlog/logbook/output"
	"github.com/budgetlog/logbook/store"
)

type DuplicatesCmd struct {
	Where string `help:"Rule selecting the operations to compare." placeholder:"RULE"`
	Plain bool   `help:"Print a plain table without borders or colors."`
}

func (cmd *DuplicatesCmd) Run(ctx *kong.Context, globals *Globals) error {
	s, err := globals.start(ctx, "duplicates")
	if err != nil {
		return err
	}
	defer s.finish()

	engine, _, closeAll, err := s.engine()
	if err != nil {
		return err
	}
	defer closeAll()

	where, err := s.where(cmd.Where)
	if err != nil {
		return err
	}

	groups, err := engine.Duplicates(s.ctx, where)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		printSuccess(ctx.Stdout, "No duplicates found")
		return nil
	}

	printTable(ctx.Stdout, duplicatesTable(groups), cmd.Plain)
	printWarningf(ctx.Stderr, "%d group(s) of possible duplicates", len(groups))
	return nil
}

func duplicatesTable(groups []duplicates.Group) output.Table {
	t := output.Table{
		Headers: []string{"Group", "Timestamp", "Amount", "Description", "Account", "ID"},
		Align:   []output.Align{output.AlignRight, output.AlignLeft, output.AlignRight},
	}
	for i, g := range groups {
		for _, op := range g.Operations {
			t.Rows = append(t.Rows, []string{
				fmt.Sprint(i + 1),
				op.Timestamp.Format("2006-01-02 15:04"),
				op.Amount.String(),
				output.Truncate(op.Description, 40),
				op.Account.Name,
				op.ID.String(),
			})
		}
	}
	return t
}

type TransfersCmd struct {
	Plain bool `help:"Print a plain table without borders or colors."`
}

func (cmd *TransfersCmd) Run(ctx *kong.Context, globals *Globals) error {
	s, err := globals.start(ctx, "transfers")
	if err != nil {
		return err
	}
	defer s.finish()

	st, err := s.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	saved, err := st.Transfers(s.ctx)
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		printInfof(ctx.Stdout, "No transfers recorded")
		return nil
	}
	printTable(ctx.Stdout, transfersTable(saved), cmd.Plain)
	return nil
}

func transfersTable(saved []store.SavedTransfer) output.Table {
	t := output.Table{
		Headers: []string{"Date", "From", "To", "Amount", "Fee", "Accuracy", "Comment"},
		Align:   []output.Align{output.AlignLeft, output.AlignLeft, output.AlignLeft, output.AlignRight, output.AlignRight},
	}
	for _, tr := range saved {
		t.Rows = append(t.Rows, []string{
			tr.Source.Timestamp.Format("2006-01-02"),
			tr.Source.Account.Name,
			tr.Sink.Account.Name,
			tr.Source.Amount.Abs().String(),
			tr.Fee.String(),
			tr.Accuracy.String(),
			output.Truncate(tr.Comment, 30),
		})
	}
	return t
}

func printTable(w io.Writer, t output.Table, plain bool) {
	if plain || !isTerminal(w) {
		_, _ = io.WriteString(w, t.Plain())
		return
	}
	_, _ = fmt.Fprintln(w, t.Render())
}
