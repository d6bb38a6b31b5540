// Package operation defines the imported bank operation and the rule schema
// rules are written against.
package operation

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amount is a signed monetary value in one currency. Withdrawals are
// negative, incomes positive.
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// NewAmount creates an amount from a decimal string.
func NewAmount(value, currency string) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount value %q: %w", value, err)
	}
	return Amount{Value: d, Currency: strings.ToUpper(currency)}, nil
}

// ParseAmount parses "VALUE CURRENCY", for example "-42.50 EUR".
func ParseAmount(s string) (Amount, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Amount{}, fmt.Errorf("invalid amount %q, expected VALUE CURRENCY", s)
	}
	return NewAmount(fields[0], fields[1])
}

// MustParseAmount is like ParseAmount but panics on error.
// Use only in tests or when you're certain the amount is valid
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Equal compares magnitude, sign and currency.
func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Value.Equal(b.Value)
}

func (a Amount) IsNegative() bool { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool { return a.Value.IsPositive() }

// Abs returns the amount without its sign.
func (a Amount) Abs() Amount {
	return Amount{Value: a.Value.Abs(), Currency: a.Currency}
}

// Key returns a canonical representation usable as a map key. Amounts
// that are Equal have the same key.
func (a Amount) Key() string {
	return a.Value.String() + " " + a.Currency
}

func (a Amount) String() string {
	return a.Value.StringFixed(2) + " " + a.Currency
}

// Owner is a person an account belongs to.
type Owner struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Account is the account an operation was booked on.
type Account struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Bank   string    `json:"bank,omitempty"`
	Owners []Owner   `json:"owners,omitempty"`
}

// Operation is a single imported bank transaction.
type Operation struct {
	// ID is assigned on registration; the zero UUID marks an unregistered operation.
	ID uuid.UUID `json:"id"`
	// Version is the optimistic concurrency token maintained by the store.
	Version     int64             `json:"version,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Amount      Amount            `json:"amount"`
	Description string            `json:"description"`
	Account     Account           `json:"account"`
	Tags        Tags              `json:"tags,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// IsRegistered reports whether the operation was assigned an id.
func (o Operation) IsRegistered() bool {
	return o.ID != uuid.Nil
}

// Register assigns a fresh id to an unregistered operation.
func (o *Operation) Register() {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
}

// SameAs reports whether a and b denote the same operation. Registered
// operations are compared by id, unregistered ones by content.
func (o Operation) SameAs(other Operation) bool {
	if o.IsRegistered() || other.IsRegistered() {
		return o.ID == other.ID
	}
	return o.Timestamp.Equal(other.Timestamp) &&
		o.Amount.Equal(other.Amount) &&
		o.Description == other.Description &&
		o.Account.ID == other.Account.ID &&
		o.Account.Name == other.Account.Name
}

// Clone returns a deep copy.
func (o Operation) Clone() Operation {
	c := o
	c.Tags = append(Tags(nil), o.Tags...)
	c.Account.Owners = append([]Owner(nil), o.Account.Owners...)
	if o.Attributes != nil {
		c.Attributes = make(map[string]string, len(o.Attributes))
		for k, v := range o.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}

// Attribute returns the named attribute, or "" when it is not set.
func (o Operation) Attribute(name string) string {
	return o.Attributes[name]
}

// SetAttribute sets an attribute, allocating the map on first use.
func (o *Operation) SetAttribute(name, value string) {
	if o.Attributes == nil {
		o.Attributes = make(map[string]string)
	}
	o.Attributes[name] = value
}

func (o Operation) String() string {
	return fmt.Sprintf("%s %s %q", o.Timestamp.Format("2006-01-02"), o.Amount, o.Description)
}

// Compare orders operations by timestamp, then id.
func Compare(a, b Operation) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.String(), b.ID.String())
}
