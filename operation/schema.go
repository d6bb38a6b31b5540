package operation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/budgetlog/logbook/expr"
)

// OwnerSchema exposes Owner to rules as u.id and u.name.
var OwnerSchema = expr.NewSchema[Owner]("Owner").
	String("id", func(u Owner) string { return u.ID.String() }).
	String("name", func(u Owner) string { return u.Name })

// AccountSchema exposes Account to rules.
var AccountSchema = expr.List(expr.NewSchema[Account]("Account").
	String("id", func(a Account) string { return a.ID.String() }).
	String("name", func(a Account) string { return a.Name }).
	String("bank", func(a Account) string { return a.Bank }),
	"owners", OwnerSchema, func(a Account) []Owner { return a.Owners })

// Schema exposes Operation to rules:
//
//	o.id o.timestamp o.amount o.currency o.description o.tags o.attributes
//	o.account.id o.account.name o.account.bank o.account.owners
//
// The free-form attribute map has no storage representation.
var Schema = expr.Object(expr.NewSchema[Operation]("Operation").
	String("id", func(o Operation) string { return o.ID.String() }).
	Time("timestamp", func(o Operation) time.Time { return o.Timestamp }).
	Number("amount", func(o Operation) decimal.Decimal { return o.Amount.Value }).
	String("currency", func(o Operation) string { return o.Amount.Currency }).
	String("description", func(o Operation) string { return o.Description }).
	Strings("tags", func(o Operation) []string { return o.Tags }).
	Map("attributes", func(o Operation) map[string]string { return o.Attributes }),
	"account", AccountSchema, func(o Operation) Account { return o.Account }).
	HostOnly("attributes")

type (
	// Predicate is a compiled condition over one operation.
	Predicate = expr.Predicate[Operation]
	// Conversion is a compiled string expression over one operation.
	Conversion = expr.Conversion[Operation]
	// PairPredicate is a compiled condition over two operations.
	PairPredicate = expr.BinaryPredicate[Operation, Operation]
)

// ParsePredicate compiles o => condition against Schema.
func ParsePredicate(text string, opts ...expr.Option) (Predicate, error) {
	return expr.ParsePredicate(Schema, text, opts...)
}

// ParseConversion compiles o => string expression against Schema.
func ParseConversion(text string, opts ...expr.Option) (Conversion, error) {
	return expr.ParseConversion(Schema, text, opts...)
}

// ParsePairPredicate compiles (a, b) => condition against Schema.
func ParsePairPredicate(text string, opts ...expr.Option) (PairPredicate, error) {
	return expr.ParseBinaryPredicate(Schema, Schema, text, opts...)
}
