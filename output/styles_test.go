package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"
)

func TestStylesPlainWriter(t *testing.T) {
	// A buffer is not a terminal, so every style renders as plain text.
	var buf bytes.Buffer
	styles := NewStyles(&buf)
	assert.NotZero(t, styles.Output())

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Success", styles.Success("done"), "done"},
		{"Error", styles.Error("failed"), "failed"},
		{"FilePath", styles.FilePath("/rules.yaml"), "/rules.yaml"},
		{"Node", styles.Node("groceries"), "groceries"},
		{"Tag", styles.Tag("food"), "#food"},
		{"Keyword", styles.Keyword("report"), "report"},
		{"Dim", styles.Dim("secondary"), "secondary"},
		{"Warning", styles.Warning("careful"), "careful"},
		{"TimingFast", styles.Timing("5ms", false), "5ms"},
		{"TimingSlow", styles.Timing("500ms", true), "500ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestStylesAmount(t *testing.T) {
	styles := NewStyles(&bytes.Buffer{})

	tests := []struct {
		value    string
		currency string
		want     string
	}{
		{"-30.5", "EUR", "-30.50 EUR"},
		{"1200", "EUR", "1200.00 EUR"},
		{"0", "", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, styles.Amount(decimal.RequireFromString(tt.value), tt.currency))
		})
	}
}

func TestStylesChange(t *testing.T) {
	styles := NewStyles(&bytes.Buffer{})

	assert.Equal(t, "-", styles.Change(decimal.NullDecimal{}))
	assert.Equal(t, "+12.50%", styles.Change(decimal.NewNullDecimal(decimal.RequireFromString("12.5"))))
	assert.Equal(t, "-3.00%", styles.Change(decimal.NewNullDecimal(decimal.NewFromInt(-3))))
	assert.Equal(t, "0.00%", styles.Change(decimal.NewNullDecimal(decimal.Zero)))
}

func TestTablePlain(t *testing.T) {
	tbl := Table{
		Headers: []string{"node", "jan", "feb"},
		Rows: [][]string{
			{"all", "-10.00", "-5.00"},
			{"  café", "3.00", ""},
		},
		Align: []Align{AlignLeft, AlignRight, AlignRight},
	}

	want := strings.Join([]string{
		"node       jan    feb",
		"all     -10.00  -5.00",
		"  café    3.00",
		"",
	}, "\n")
	assert.Equal(t, want, tbl.Plain())
}

func TestTableRender(t *testing.T) {
	tbl := Table{
		Headers: []string{"node", "sum"},
		Rows:    [][]string{{"groceries", "-42.00"}},
		Align:   []Align{AlignLeft, AlignRight},
	}

	out := tbl.Render()
	assert.Contains(t, out, "groceries")
	assert.Contains(t, out, "-42.00")
	assert.Contains(t, out, "╭")
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab  ", Pad("ab", 4))
	assert.Equal(t, "  ab", PadLeft("ab", 4))
	assert.Equal(t, "日本 ", Pad("日本", 5))
	assert.Equal(t, "abcdef", Pad("abcdef", 3))
	assert.Equal(t, "abc…", Truncate("abcdefgh", 4))
}
