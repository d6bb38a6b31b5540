package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/logbook"
	"github.com/budgetlog/logbook/output"
)

type ReportCmd struct {
	From     string `help:"Start of the report, inclusive (default: twelve months before --till)." placeholder:"DATE"`
	Till     string `help:"End of the report, exclusive (default: first day of next month)." placeholder:"DATE"`
	Schedule string `help:"Cron schedule slicing the report into ranges (default: report.schedule from the configuration)."`
	Where    string `help:"Rule selecting the operations to aggregate." placeholder:"RULE"`
	Currency string `help:"Reporting currency (default: report.currency, or the currency of the first operation)."`
	Changes  bool   `help:"Show the relative change against the previous range."`
	Plain    bool   `help:"Print a plain table without borders or colors."`
}

func (cmd *ReportCmd) Run(ctx *kong.Context, globals *Globals) error {
	s, err := globals.start(ctx, "report")
	if err != nil {
		return err
	}
	defer s.finish()

	from, till, err := reportSpan(cmd.From, cmd.Till, time.Now())
	if err != nil {
		return err
	}
	schedule := cmd.Schedule
	if schedule == "" {
		schedule = s.cfg.Report.Schedule
	}
	ranges, err := logbook.GenerateRanges(from, till, schedule)
	if err != nil {
		return err
	}

	engine, _, closeAll, err := s.engine()
	if err != nil {
		return err
	}
	defer closeAll()

	where, err := s.where(cmd.Where)
	if err != nil {
		return err
	}

	var opts []logbook.Option
	currency := cmd.Currency
	if currency == "" {
		currency = s.cfg.Report.Currency
	}
	if currency != "" {
		opts = append(opts, logbook.WithCurrency(currency))
	}

	book, err := engine.Report(s.ctx, where, ranges, opts...)
	if err != nil {
		return err
	}

	plain := cmd.Plain || !isTerminal(ctx.Stdout)
	writeReport(ctx.Stdout, book, cmd.Changes, plain)
	return nil
}

// reportSpan resolves the report bounds. Without --till the span ends at
// the start of next month; without --from it covers the twelve months
// before the end.
func reportSpan(fromFlag, tillFlag string, now time.Time) (from, till time.Time, err error) {
	now = now.UTC()
	till = time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	if tillFlag != "" {
		if till, err = expr.ParseDate(tillFlag); err != nil {
			return from, till, fmt.Errorf("--till: %w", err)
		}
	}
	from = till.AddDate(0, -12, 0)
	if fromFlag != "" {
		if from, err = expr.ParseDate(fromFlag); err != nil {
			return from, till, fmt.Errorf("--from: %w", err)
		}
	}
	return from, till, nil
}

// reportPaths lists the node paths of every tree, each once, in the order
// they first appear. Trees differ when a node groups by a conversion.
func reportPaths(book *logbook.Logbook) [][]string {
	var paths [][]string
	seen := make(map[string]bool)
	for _, tree := range book.Trees {
		tree.Walk(func(path []string, _ *logbook.Node) bool {
			key := strings.Join(path, "\x00")
			if !seen[key] {
				seen[key] = true
				paths = append(paths, slices.Clone(path))
			}
			return true
		})
	}
	return paths
}

// reportTable lays book out with one row per node and one column per
// range, plus a change column after every range but the first.
func reportTable(book *logbook.Logbook, styles *output.Styles, changes bool) output.Table {
	t := output.Table{
		Headers: []string{"Node"},
		Align:   []output.Align{output.AlignLeft},
	}
	for i, r := range book.Ranges {
		t.Headers = append(t.Headers, r.Name)
		t.Align = append(t.Align, output.AlignRight)
		if changes && i > 0 {
			t.Headers = append(t.Headers, "Δ")
			t.Align = append(t.Align, output.AlignRight)
		}
	}

	for _, path := range reportPaths(book) {
		name := book.Trees[0].Name
		if len(path) > 0 {
			name = path[len(path)-1]
		}
		row := []string{strings.Repeat("  ", len(path)) + styles.Node(name)}
		sums := book.Sums(path...)
		deltas := logbook.RelativeChanges(sums)
		for i, sum := range sums {
			row = append(row, styles.Amount(sum, book.Currency))
			if changes && i > 0 {
				row = append(row, styles.Change(deltas[i]))
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func writeReport(w io.Writer, book *logbook.Logbook, changes, plain bool) {
	if len(book.Trees) == 0 {
		printInfof(w, "no ranges to report")
		return
	}
	if plain {
		styles := output.NewStyles(io.Discard)
		_, _ = io.WriteString(w, reportTable(book, styles, changes).Plain())
		return
	}
	_, _ = fmt.Fprintln(w, reportTable(book, output.NewStyles(w), changes).Render())
}
