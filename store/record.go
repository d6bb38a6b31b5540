package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/operation"
)

// timeLayout is fixed width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Record is one row of the operations table. The account is flattened
// into columns and the owners are kept as a JSON document.
type Record struct {
	ID          string
	Version     int64
	Timestamp   time.Time
	Amount      decimal.Decimal
	Currency    string
	Description string
	AccountID   string
	AccountName string
	AccountBank string
	Owners      []operation.Owner
	Tags        []string
	Attributes  map[string]string
	TransferID  string
}

// RecordSchema exposes the columns of the operations table to rules. The
// owners document cannot be queried in SQL.
var RecordSchema = expr.List(expr.NewSchema[Record]("Record").
	String("id", func(r Record) string { return r.ID }).
	Time("timestamp", func(r Record) time.Time { return r.Timestamp }).
	Number("amount", func(r Record) decimal.Decimal { return r.Amount }).
	String("currency", func(r Record) string { return r.Currency }).
	String("description", func(r Record) string { return r.Description }).
	String("account_id", func(r Record) string { return r.AccountID }).
	String("account_name", func(r Record) string { return r.AccountName }).
	String("account_bank", func(r Record) string { return r.AccountBank }).
	Strings("tags", func(r Record) []string { return r.Tags }),
	"owners", operation.OwnerSchema, func(r Record) []operation.Owner { return r.Owners }).
	HostOnly("owners")

// Mapping rewrites operation members onto RecordSchema. Members not listed
// keep their name.
var Mapping = expr.Mapping{
	"account.id":     "account_id",
	"account.name":   "account_name",
	"account.bank":   "account_bank",
	"account.owners": "owners",
}

func newRecord(op operation.Operation) Record {
	return Record{
		ID:          op.ID.String(),
		Version:     op.Version,
		Timestamp:   op.Timestamp,
		Amount:      op.Amount.Value,
		Currency:    op.Amount.Currency,
		Description: op.Description,
		AccountID:   op.Account.ID.String(),
		AccountName: op.Account.Name,
		AccountBank: op.Account.Bank,
		Owners:      op.Account.Owners,
		Tags:        op.Tags,
		Attributes:  op.Attributes,
	}
}

// Operation converts the row back into an operation.
func (r Record) Operation() (operation.Operation, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return operation.Operation{}, fmt.Errorf("invalid operation id %q: %w", r.ID, err)
	}
	accountID, err := uuid.Parse(r.AccountID)
	if err != nil {
		return operation.Operation{}, fmt.Errorf("operation %s: invalid account id %q: %w", r.ID, r.AccountID, err)
	}
	return operation.Operation{
		ID:          id,
		Version:     r.Version,
		Timestamp:   r.Timestamp,
		Amount:      operation.Amount{Value: r.Amount, Currency: r.Currency},
		Description: r.Description,
		Account: operation.Account{
			ID:     accountID,
			Name:   r.AccountName,
			Bank:   r.AccountBank,
			Owners: r.Owners,
		},
		Tags:       operation.NewTags(r.Tags...),
		Attributes: r.Attributes,
	}, nil
}

const recordColumns = `id, version, timestamp, amount, currency, description, account_id, account_name, account_bank, owners, tags, attributes, transfer_id`

// args returns the column values in recordColumns order.
func (r Record) args() ([]any, error) {
	owners := r.Owners
	if owners == nil {
		owners = []operation.Owner{}
	}
	ownersJSON, err := json.Marshal(owners)
	if err != nil {
		return nil, fmt.Errorf("encode owners: %w", err)
	}
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	var transfer sql.NullString
	if r.TransferID != "" {
		transfer = sql.NullString{String: r.TransferID, Valid: true}
	}
	return []any{
		r.ID, r.Version, formatTime(r.Timestamp), r.Amount.String(), r.Currency, r.Description,
		r.AccountID, r.AccountName, r.AccountBank, string(ownersJSON), encodeTags(r.Tags), string(attrsJSON), transfer,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r                        Record
		timestamp, amount        string
		owners, tags, attributes string
		transfer                 sql.NullString
	)
	err := row.Scan(&r.ID, &r.Version, &timestamp, &amount, &r.Currency, &r.Description,
		&r.AccountID, &r.AccountName, &r.AccountBank, &owners, &tags, &attributes, &transfer)
	if err != nil {
		return Record{}, err
	}
	if r.Timestamp, err = parseTime(timestamp); err != nil {
		return Record{}, fmt.Errorf("operation %s: invalid timestamp: %w", r.ID, err)
	}
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return Record{}, fmt.Errorf("operation %s: invalid amount: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(owners), &r.Owners); err != nil {
		return Record{}, fmt.Errorf("operation %s: invalid owners: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(attributes), &r.Attributes); err != nil {
		return Record{}, fmt.Errorf("operation %s: invalid attributes: %w", r.ID, err)
	}
	if len(r.Owners) == 0 {
		r.Owners = nil
	}
	if len(r.Attributes) == 0 {
		r.Attributes = nil
	}
	r.Tags = decodeTags(tags)
	r.TransferID = transfer.String
	return r, nil
}

// Tags are stored delimited on both sides, |a|b|, so that a single tag can
// be matched with instr.
const tagSeparator = "|"

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return tagSeparator + strings.Join(tags, tagSeparator) + tagSeparator
}

func decodeTags(s string) []string {
	s = strings.Trim(s, tagSeparator)
	if s == "" {
		return nil
	}
	return strings.Split(s, tagSeparator)
}
