package expr

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"
)

type owner struct {
	Name string
}

type account struct {
	Name   string
	Bank   string
	Owners []owner
}

type entry struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	Timestamp   time.Time
	Tags        []string
	Attributes  map[string]string
	Account     account
}

// row is a flattened storage shape of entry.
type row struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	Timestamp   time.Time
	Tags        []string
	AccountName string
	Bank        string
	Owners      []owner
}

var (
	ownerSchema = NewSchema[owner]("Owner").
			String("name", func(o owner) string { return o.Name })

	accountSchema = List(NewSchema[account]("Account").
			String("name", func(a account) string { return a.Name }).
			String("bank", func(a account) string { return a.Bank }),
		"owners", ownerSchema, func(a account) []owner { return a.Owners })

	entrySchema = Object(NewSchema[entry]("Entry").
			Number("amount", func(e entry) decimal.Decimal { return e.Amount }).
			String("currency", func(e entry) string { return e.Currency }).
			String("description", func(e entry) string { return e.Description }).
			Time("timestamp", func(e entry) time.Time { return e.Timestamp }).
			Strings("tags", func(e entry) []string { return e.Tags }).
			Map("attributes", func(e entry) map[string]string { return e.Attributes }).
			HostOnly("attributes"),
		"account", accountSchema, func(e entry) account { return e.Account })

	rowSchema = List(NewSchema[row]("Row").
			Number("amount", func(r row) decimal.Decimal { return r.Amount }).
			String("currency", func(r row) string { return r.Currency }).
			String("description", func(r row) string { return r.Description }).
			Time("timestamp", func(r row) time.Time { return r.Timestamp }).
			Strings("tags", func(r row) []string { return r.Tags }).
			String("account_name", func(r row) string { return r.AccountName }).
			String("bank", func(r row) string { return r.Bank }),
		"owners", ownerSchema, func(r row) []owner { return r.Owners })

	rowMapping = Mapping{
		"account.name":   "account_name",
		"account.bank":   "bank",
		"account.owners": "owners",
	}
)

func sample() entry {
	return entry{
		Amount:      decimal.RequireFromString("-42.50"),
		Currency:    "EUR",
		Description: "LIDL Berlin",
		Timestamp:   time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Tags:        []string{"food", "groceries"},
		Attributes:  map[string]string{"category": "food"},
		Account: account{
			Name:   "Checking",
			Bank:   "ING",
			Owners: []owner{{Name: "ann"}, {Name: "bob"}},
		},
	}
}

func flatten(e entry) row {
	return row{
		Amount:      e.Amount,
		Currency:    e.Currency,
		Description: e.Description,
		Timestamp:   e.Timestamp,
		Tags:        e.Tags,
		AccountName: e.Account.Name,
		Bank:        e.Account.Bank,
		Owners:      e.Account.Owners,
	}
}

func TestPredicateEval(t *testing.T) {
	tests := []struct {
		rule string
		want bool
	}{
		{`o => o.amount < 0`, true},
		{`o => o.AMOUNT.Abs() == 42.5`, true},
		{`o => o.description.Contains("LIDL") && o.currency == "EUR"`, true},
		{`o => o.description.ToLower().StartsWith("lidl")`, true},
		{`o => o.description.EndsWith("Munich")`, false},
		{`o => o.description.Matches("^LIDL\\s")`, true},
		{`o => o.tags.Contains("food")`, true},
		{`o => o.tags.Any(t => t.StartsWith("gro"))`, true},
		{`o => o.tags.All(t => t.Length() > 4)`, false},
		{`o => o.tags.Count() == 2`, true},
		{`o => o.account.owners.Any(u => u.name == "bob")`, true},
		{`o => o.account.owners.Count(u => u.name != "ann") == 1`, true},
		{`o => o.account.bank == "ING" || o.account.bank == "N26"`, true},
		{`o => o.attributes["category"] == "food"`, true},
		{`o => o.attributes["missing"] == ""`, true},
		{`o => o.attributes.ContainsKey("category")`, true},
		{`o => o.timestamp >= Date("2024-03-01") && o.timestamp < Date("2024-04-01")`, true},
		{`o => o.timestamp.Month == 3 && o.timestamp.Year == 2024`, true},
		{`o => o.timestamp.DaysTo(Date("2024-03-17T10:00:00Z")) == 2`, true},
		{`o => o.amount / 0 == 0`, true},
		{`o => o.amount * -2 == 85`, true},
		{`o => (o.amount < -100 ? "big" : "small") == "small"`, true},
		{`o => !(o.amount > 0) || false`, true},
		{`o => o.description + "!" == "LIDL Berlin!"`, true},
		{`o => true`, true},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			p, err := ParsePredicate(entrySchema, tt.rule)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, p.Eval(sample()))
		})
	}
}

func TestZeroPredicateIsTrue(t *testing.T) {
	var p Predicate[entry]
	assert.True(t, p.IsTrue())
	assert.True(t, p.Eval(sample()))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		rule    string
		vars    map[string]any
		message string
	}{
		{"not boolean", `o => o.amount`, nil, "condition must be bool, got number"},
		{"kind mismatch", `o => o.amount == "x"`, nil, "cannot compare number with string"},
		{"unknown member", `o => o.nope == 1`, nil, `Entry has no member "nope"`},
		{"unknown method", `o => o.description.Frobnicate()`, nil, "string has no method Frobnicate"},
		{"bad pattern", `o => o.description.Matches("(")`, nil, "invalid pattern"},
		{"bad date", `o => o.timestamp < Date("yesterday")`, nil, `cannot parse "yesterday"`},
		{"lambda body", `o => o.tags.Any(t => t + 1)`, nil, "body of Any must be bool, got string"},
		{"arity", `o => o.description.Contains()`, nil, "Contains takes 1 argument(s), got 0"},
		{"unsupported variable", `o => o.amount > limit`, map[string]any{"limit": struct{}{}}, `variable "limit" has unsupported type struct {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePredicate(entrySchema, tt.rule, WithVariables(tt.vars))
			assert.Error(t, err)

			var compileErr *CompileError
			assert.True(t, errors.As(err, &compileErr))
			assert.Contains(t, compileErr.Message, tt.message)
			assert.Equal(t, tt.rule, compileErr.GetSource())
		})
	}
}

func TestCapturedValuesAreFixedAtParseTime(t *testing.T) {
	wanted := []string{"food"}
	vars := map[string]any{"shop": "LIDL", "min": 40, "wanted": wanted}
	p, err := ParsePredicate(entrySchema,
		`o => o.description.StartsWith(shop) && o.amount.Abs() > min`,
		WithVariables(vars))
	assert.NoError(t, err)

	vars["shop"] = "ALDI"
	vars["min"] = 100
	assert.True(t, p.Eval(sample()))

	q, err := ParsePredicate(entrySchema, `o => wanted.Contains(o.tags.Count() == 2 ? "food" : "x")`, WithVariables(vars))
	assert.NoError(t, err)
	wanted[0] = "rent"
	assert.True(t, q.Eval(sample()))
	assert.Equal(t, `o => o.description.StartsWith(shop) && o.amount.Abs() > min`, p.String())
}

func TestCombine(t *testing.T) {
	left := MustParsePredicate(entrySchema, `o => o.description.Contains(shop)`,
		WithVariables(map[string]any{"shop": "LIDL"}))
	right := MustParsePredicate(entrySchema, `e => e.amount < limit`,
		WithVariables(map[string]any{"limit": 0}))

	both := Combine(left, right)
	assert.Equal(t, 2, len(both.Clauses()))
	assert.True(t, both.Eval(sample()))

	income := sample()
	income.Amount = decimal.NewFromInt(10)
	assert.False(t, both.Eval(income))

	assert.True(t, Combine(Predicate[entry]{}, right).Eval(sample()))
	assert.Equal(t, right.String(), Combine(Predicate[entry]{}, right).String())
}

func TestRetarget(t *testing.T) {
	rules := []string{
		`o => o.amount < 0 && o.currency == "EUR"`,
		`o => o.account.name == who`,
		`o => o.account.bank.ToLower() == "ing" && o.timestamp.Year == 2024`,
		`o => o.account.owners.Any(u => u.name == "bob")`,
		`o => o.account.owners.All(u => u.name.Length() == 3) && o.tags.Any(t => t == "food")`,
	}

	variants := []entry{sample()}
	other := sample()
	other.Amount = decimal.NewFromInt(5)
	other.Account.Name = "Savings"
	other.Account.Bank = "N26"
	other.Account.Owners = []owner{{Name: "carol"}}
	other.Tags = nil
	variants = append(variants, other)

	for _, rule := range rules {
		t.Run(rule, func(t *testing.T) {
			p := MustParsePredicate(entrySchema, rule, WithVariables(map[string]any{"who": "Checking"}))
			q, err := Retarget(p, rowSchema, rowMapping)
			assert.NoError(t, err)
			for _, v := range variants {
				assert.Equal(t, p.Eval(v), q.Eval(flatten(v)))
			}
		})
	}
}

func TestRetargetRendersMappedMembers(t *testing.T) {
	p := MustParsePredicate(entrySchema, `o => o.account.name == who && o.account.owners.Any(u => u.name == "ann")`,
		WithVariables(map[string]any{"who": "Checking"}))
	q, err := Retarget(p, rowSchema, rowMapping)
	assert.NoError(t, err)
	assert.Equal(t, `o => o.account_name == who && o.owners.Any(u => u.name == "ann")`, q.String())
}

func TestRetargetErrors(t *testing.T) {
	tests := []struct {
		name    string
		rule    string
		mapping Mapping
		path    string
	}{
		{"member without equivalent", `o => o.attributes["k"] == "v"`, rowMapping, "attributes"},
		{"unmapped nested member", `o => o.account.name == "x"`, Mapping{}, "account.name"},
		{"mapped to missing member", `o => o.currency == "EUR"`, Mapping{"currency": "ccy"}, "currency"},
		{"kind mismatch", `o => o.amount > 0`, Mapping{"amount": "description"}, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MustParsePredicate(entrySchema, tt.rule)
			_, err := Retarget(p, rowSchema, tt.mapping)
			assert.Error(t, err)

			var retargetErr *RetargetError
			assert.True(t, errors.As(err, &retargetErr))
			assert.Equal(t, tt.path, retargetErr.Path)
			assert.Equal(t, "Entry", retargetErr.From)
			assert.Equal(t, "Row", retargetErr.To)
		})
	}
}

func TestRetargetIgnoresUnreferencedMembers(t *testing.T) {
	// Row has no attributes, but the rule never touches them.
	p := MustParsePredicate(entrySchema, `o => o.description == "LIDL Berlin"`)
	q, err := Retarget(p, rowSchema, nil)
	assert.NoError(t, err)
	assert.True(t, q.Eval(flatten(sample())))
}

func TestPartition(t *testing.T) {
	p := MustParsePredicate(entrySchema,
		`o => o.amount < 0 && o.currency == "EUR" && o.description.Matches("^LIDL") && o.account.bank == "ING"`)

	storage, host := Partition(p)
	assert.Equal(t, `o => o.amount < 0 && o.currency == "EUR"`, storage.String())
	assert.Equal(t, `o => o.description.Matches("^LIDL") && o.account.bank == "ING"`, host.String())

	a := sample()
	b := sample()
	b.Description = "ALDI"
	c := sample()
	c.Currency = "USD"
	d := sample()
	d.Account.Bank = "N26"
	for _, v := range []entry{a, b, c, d} {
		assert.Equal(t, p.Eval(v), storage.Eval(v) && host.Eval(v))
	}
}

func TestPartitionEdges(t *testing.T) {
	allStorage := MustParsePredicate(entrySchema, `o => o.amount < 0`)
	storage, host := Partition(allStorage)
	assert.Equal(t, 1, len(storage.Clauses()))
	assert.True(t, host.IsTrue())

	hostFirst := MustParsePredicate(entrySchema, `o => o.attributes["k"] == "v" && o.amount < 0`)
	storage, host = Partition(hostFirst)
	assert.True(t, storage.IsTrue())
	assert.Equal(t, 2, len(host.Clauses()))

	storage, host = Partition(Predicate[entry]{})
	assert.True(t, storage.IsTrue())
	assert.True(t, host.IsTrue())
}

func TestConversion(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{`o => o.amount < 0 ? "expense" : "income"`, "expense"},
		{`o => o.attributes["category"]`, "food"},
		{`o => o.account.bank + ":" + o.account.name`, "ING:Checking"},
		{`o => o.timestamp.Format("2006-01")`, "2024-03"},
		{`o => o.description.Contains("ALDI") ? "aldi" : ""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			c, err := ParseConversion(entrySchema, tt.rule)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, c.Eval(sample()))
		})
	}

	_, err := ParseConversion(entrySchema, `o => o.amount`)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "result must be string, got number")
}

func TestBinaryPredicate(t *testing.T) {
	p, err := ParseBinaryPredicate(entrySchema, entrySchema,
		`(a, b) => a.amount == -b.amount && a.currency == b.currency && a.account.name != b.account.name`)
	assert.NoError(t, err)

	source := sample()
	sink := sample()
	sink.Amount = source.Amount.Neg()
	sink.Account.Name = "Savings"
	assert.True(t, p.Eval(source, sink))

	sink.Currency = "USD"
	assert.False(t, p.Eval(source, sink))

	_, err = ParseBinaryPredicate(entrySchema, entrySchema, `a => a.amount < 0`)
	assert.Error(t, err)
}
