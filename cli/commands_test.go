package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/budgetlog/logbook/duplicates"
	"github.com/budgetlog/logbook/logbook"
	"github.com/budgetlog/logbook/operation"
	"github.com/budgetlog/logbook/output"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCommandsParse(t *testing.T) {
	rules := writeFile(t, t.TempDir(), "rules.yaml", "tags: []\n")

	tests := []struct {
		name string
		args []string
	}{
		{"check", []string{"check", rules, "--json"}},
		{"import", []string{"import", rules, "--mode", "from-scratch"}},
		{"report", []string{"report", "--from", "2024-01-01", "--schedule", "@monthly", "--plain", "--changes"}},
		{"retag", []string{"retag", "--mode", "skip", "--where", "o => o.amount < 0", "-y"}},
		{"duplicates", []string{"duplicates", "--where", "o => true"}},
		{"transfers", []string{"transfers"}},
		{"watch", []string{"watch", "rules.yaml"}},
		{"tokens", []string{"doctor", "tokens", "o => o.amount < 0"}},
		{"ast", []string{"doctor", "ast", "(a, b) => a.amount == b.amount", "--arity", "2"}},
		{"globals", []string{"--telemetry", "--log-level", "debug", "-c", "logbook.yaml", "transfers"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cli Commands
			parser, err := kong.New(&cli, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
			assert.NoError(t, err)
			_, err = parser.Parse(tt.args)
			assert.NoError(t, err)
		})
	}

	t.Run("RejectsUnknownMode", func(t *testing.T) {
		var cli Commands
		parser, err := kong.New(&cli)
		assert.NoError(t, err)
		_, err = parser.Parse([]string{"retag", "--mode", "replace"})
		assert.Error(t, err)
	})
}

func TestCheckRules(t *testing.T) {
	t.Run("Passes", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", `
transfers:
  - accuracy: Exact
    when: "(a, b) => a.amount == -b.amount"
`)
		path := writeFile(t, dir, "rules.yaml", `
include: [base.yaml]
variables:
  shops: [LIDL, ALDI]
tags:
  - tag: groceries
    when: "o => shops.Any(s => o.description.Contains(s))"
logbook:
  name: all
`)
		var stdout, stderr bytes.Buffer
		f, err := checkRules(context.Background(), &FileOrStdin{Filename: path}, false, &stdout, &stderr)
		assert.NoError(t, err)
		assert.Equal(t, 2, len(f.Files))
		assert.Contains(t, stdout.String(), "Check passed: 1 tag rule(s), 1 transfer rule(s) and a logbook in 2 file(s)")
		assert.Equal(t, "", stderr.String())
	})

	t.Run("ReportsRuleErrors", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "rules.yaml", `
tags:
  - tag: ok
    when: "o => true"
  - tag: broken
    when: "o => o.amount <"
  - tag: typo
    when: "o => o.amout < 0"
`)
		var stdout, stderr bytes.Buffer
		_, err := checkRules(context.Background(), &FileOrStdin{Filename: path}, false, &stdout, &stderr)
		var cmdErr *CommandError
		assert.True(t, asCommandError(err, &cmdErr))
		assert.Equal(t, 1, cmdErr.ExitCode())
		assert.Contains(t, stderr.String(), "tags[1]")
		assert.Contains(t, stderr.String(), "tags[2]")
		assert.Contains(t, stderr.String(), "2 rule error(s) found")
		assert.Equal(t, "", stdout.String())
	})

	t.Run("ReportsJSON", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "rules.yaml", `
tags:
  - tag: broken
    when: "o => o.amount <"
`)
		var stdout, stderr bytes.Buffer
		_, err := checkRules(context.Background(), &FileOrStdin{Filename: path}, true, &stdout, &stderr)
		assert.Error(t, err)
		assert.Contains(t, stderr.String(), `"section": "tags"`)
		assert.Contains(t, stderr.String(), `"index": 0`)
	})

	t.Run("ReadsStdinContents", func(t *testing.T) {
		file := &FileOrStdin{Filename: "<stdin>", Contents: []byte("tags:\n  - tag: all\n    when: \"o => true\"\n")}
		var stdout, stderr bytes.Buffer
		_, err := checkRules(context.Background(), file, false, &stdout, &stderr)
		assert.NoError(t, err)
		assert.Contains(t, stdout.String(), "1 tag rule(s)")
	})

	t.Run("MissingFile", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		_, err := checkRules(context.Background(), &FileOrStdin{Filename: filepath.Join(t.TempDir(), "none.yaml")}, false, &stdout, &stderr)
		assert.IsError(t, err, os.ErrNotExist)
	})
}

func asCommandError(err error, target **CommandError) bool {
	e, ok := err.(*CommandError)
	if ok {
		*target = e
	}
	return ok
}

func TestReportSpan(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		from     string
		till     string
		wantFrom time.Time
		wantTill time.Time
		wantErr  string
	}{
		{
			name:     "Defaults",
			wantFrom: time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC),
			wantTill: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "ExplicitTill",
			till:     "2024-01-01",
			wantFrom: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			wantTill: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "ExplicitBoth",
			from:     "2024-02-01",
			till:     "2024-02-15T00:00:00",
			wantFrom: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			wantTill: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "InvalidFrom",
			from:    "last year",
			wantErr: "--from",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, till, err := reportSpan(tt.from, tt.till, now)
			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantFrom, from)
			assert.Equal(t, tt.wantTill, till)
		})
	}
}

func reportBook(t *testing.T) *logbook.Logbook {
	t.Helper()
	root, err := logbook.Compile(logbook.Definition{
		Name: "all",
		Children: []logbook.Definition{
			{Name: "groceries", Including: []string{"groceries"}},
			{Name: "other", Excluding: []string{"groceries"}},
		},
	})
	assert.NoError(t, err)

	account := operation.Account{ID: uuid.New(), Name: "checking"}
	op := func(month time.Month, amount string, tags ...string) operation.Operation {
		return operation.Operation{
			ID:        uuid.New(),
			Timestamp: time.Date(2024, month, 10, 0, 0, 0, 0, time.UTC),
			Amount:    operation.MustParseAmount(amount),
			Account:   account,
			Tags:      operation.NewTags(tags...),
		}
	}
	ops := []operation.Operation{
		op(time.January, "-40 EUR", "groceries"),
		op(time.January, "-10 EUR"),
		op(time.February, "-60 EUR", "groceries"),
	}
	ranges, err := logbook.GenerateRanges(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		"@monthly")
	assert.NoError(t, err)

	book, err := logbook.Aggregate(context.Background(), root, ops, ranges)
	assert.NoError(t, err)
	return book
}

func TestReportTable(t *testing.T) {
	book := reportBook(t)
	var buf bytes.Buffer
	table := reportTable(book, output.NewStyles(&buf), true)

	assert.Equal(t, 4, len(table.Headers))
	assert.Equal(t, "Δ", table.Headers[3])
	assert.Equal(t, 3, len(table.Rows))
	assert.Equal(t, []string{"all", "-50.00 EUR", "-60.00 EUR", "+20.00%"}, table.Rows[0])
	assert.Equal(t, []string{"  groceries", "-40.00 EUR", "-60.00 EUR", "+50.00%"}, table.Rows[1])
	assert.Equal(t, []string{"  other", "-10.00 EUR", "0.00 EUR", "-100.00%"}, table.Rows[2])
}

func TestWriteReportPlain(t *testing.T) {
	var buf bytes.Buffer
	writeReport(&buf, reportBook(t), false, true)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, 4, len(lines))
	assert.True(t, strings.HasPrefix(lines[0], "Node"))
	assert.Contains(t, lines[2], "groceries")
	assert.True(t, strings.HasSuffix(lines[2], "-60.00 EUR"))
}

func TestWriteTokens(t *testing.T) {
	var buf bytes.Buffer
	writeTokens(&buf, `o => o.amount < 0`)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, 7, len(lines))
	assert.Contains(t, lines[0], `1:1    "o"`)
	assert.Contains(t, lines[1], `"=>"`)
	assert.Contains(t, lines[6], `1:17    "0"`)
}

func TestDuplicatesTable(t *testing.T) {
	op := operation.Operation{
		ID:          uuid.New(),
		Timestamp:   time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC),
		Amount:      operation.MustParseAmount("-10 EUR"),
		Description: "Netflix",
		Account:     operation.Account{Name: "checking"},
	}
	later := op
	later.ID = uuid.New()
	later.Timestamp = op.Timestamp.Add(24 * time.Hour)

	table := duplicatesTable([]duplicates.Group{{
		Amount:      op.Amount,
		Description: op.Description,
		Operations:  []operation.Operation{op, later},
	}})
	assert.Equal(t, 2, len(table.Rows))
	assert.Equal(t, "1", table.Rows[1][0])
	assert.Equal(t, "2024-01-06 09:30", table.Rows[1][1])
	assert.Equal(t, later.ID.String(), table.Rows[1][5])
}

func TestFileOrStdinOpen(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ops.json", `[]`)

	tests := []struct {
		name string
		file FileOrStdin
		want string
	}{
		{"File", FileOrStdin{Filename: path}, "[]"},
		{"Stdin", FileOrStdin{Filename: "<stdin>", Contents: []byte(`[{}]`)}, "[{}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.file.Open()
			assert.NoError(t, err)
			defer r.Close()
			var buf bytes.Buffer
			_, err = buf.ReadFrom(r)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
	assert.Equal(t, "<stdin>", (&FileOrStdin{Filename: "<stdin>"}).GetAbsoluteFilename())
}
