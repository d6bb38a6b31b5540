// Operations Generator
//
// This tool generates a large JSON batch of bank operations for performance
// testing and profiling of `logbook import`. It mixes card payments, salary
// deposits, transfers between own accounts (some with a fee) and repeated
// payments that the duplicate pass should group.
//
// Usage:
//
//	go run main.go > operations.json
//	go run main.go 500000 > operations.json  # Specify the number of operations
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/budgetlog/logbook/operation"
)

const (
	defaultCount = 100_000
)

var (
	owner = operation.Owner{ID: uuid.New(), Name: "Alex"}

	accounts = []operation.Account{
		{ID: uuid.New(), Name: "Checking", Bank: "N26", Owners: []operation.Owner{owner}},
		{ID: uuid.New(), Name: "Savings", Bank: "N26", Owners: []operation.Owner{owner}},
		{ID: uuid.New(), Name: "Credit card", Bank: "Amex", Owners: []operation.Owner{owner}},
		{ID: uuid.New(), Name: "Brokerage", Bank: "Degiro", Owners: []operation.Owner{owner}},
	}

	merchants = []string{
		"LIDL", "ALDI", "REWE", "EDEKA",
		"Shell", "Aral", "BVG", "Uber",
		"Vattenfall", "Telekom", "Amazon", "MediaMarkt",
		"Netflix", "Spotify", "Apotheke", "Restaurant Roma",
	}

	cities = []string{"Berlin", "Hamburg", "Munich", "Cologne"}
)

func main() {
	count := defaultCount
	if len(os.Args) > 1 {
		if n, err := strconv.Atoi(os.Args[1]); err == nil {
			count = n
		}
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	enc := json.NewEncoder(w)

	current := time.Date(2020, 1, 1, 8, 0, 0, 0, time.UTC)
	written := 0
	transfers := 0

	_, _ = w.WriteString("[\n")
	emit := func(op operation.Operation) {
		if written > 0 {
			_, _ = w.WriteString(",")
		}
		if err := enc.Encode(op); err != nil {
			fmt.Fprintf(os.Stderr, "encode operation: %v\n", err)
			os.Exit(1)
		}
		written++
	}

	for written < count {
		switch rand.Intn(10) {
		case 0, 1, 2, 3, 4: // 50% - Card payment
			emit(payment(current))

		case 5: // 10% - Salary or refund
			emit(deposit(current))

		case 6, 7: // 20% - Transfer between own accounts
			source, sink := transfer(current)
			emit(source)
			emit(sink)
			transfers++

		case 8: // 10% - Payment repeated within a day
			op := payment(current)
			emit(op)
			again := op
			again.ID = uuid.New()
			again.Timestamp = op.Timestamp.Add(time.Duration(rand.Intn(20)+1) * time.Hour)
			emit(again)

		case 9: // 10% - Subscription
			emit(subscription(current))
		}

		// Advance by up to half a day
		current = current.Add(time.Duration(rand.Intn(12*60)+1) * time.Minute)
	}
	_, _ = w.WriteString("]\n")

	fmt.Fprintf(os.Stderr, "\nGenerated %d operations with %d transfers\n", written, transfers)
}

func newOperation(at time.Time, amount decimal.Decimal, description string, account operation.Account) operation.Operation {
	return operation.Operation{
		ID:          uuid.New(),
		Timestamp:   at,
		Amount:      operation.Amount{Value: amount, Currency: "EUR"},
		Description: description,
		Account:     account,
	}
}

func payment(at time.Time) operation.Operation {
	merchant := merchants[rand.Intn(len(merchants))]
	city := cities[rand.Intn(len(cities))]
	account := accounts[rand.Intn(len(accounts)-1)]
	return newOperation(at, randAmount(2, 250).Neg(), fmt.Sprintf("%s %s", merchant, city), account)
}

func deposit(at time.Time) operation.Operation {
	if rand.Intn(4) == 0 {
		merchant := merchants[rand.Intn(len(merchants))]
		return newOperation(at, randAmount(5, 80), "Refund "+merchant, accounts[0])
	}
	return newOperation(at, randAmount(2500, 4000), "Salary Employer GmbH", accounts[0])
}

// transfer returns both legs of a move between two own accounts. One in
// five carries a fee and arrives later.
func transfer(at time.Time) (source, sink operation.Operation) {
	from := rand.Intn(len(accounts))
	to := (from + 1 + rand.Intn(len(accounts)-1)) % len(accounts)
	amount := randAmount(50, 1500)

	source = newOperation(at, amount.Neg(), "Transfer to "+accounts[to].Name, accounts[from])
	received := amount
	arrival := at
	if rand.Intn(5) == 0 {
		received = amount.Sub(decimal.RequireFromString("1.50"))
		arrival = at.Add(time.Duration(rand.Intn(48)+1) * time.Hour)
	}
	sink = newOperation(arrival, received, "Transfer from "+accounts[from].Name, accounts[to])
	return source, sink
}

func subscription(at time.Time) operation.Operation {
	name := []string{"Netflix", "Spotify", "Telekom"}[rand.Intn(3)]
	return newOperation(at, decimal.RequireFromString("-12.99"), name+" subscription", accounts[2])
}

// Helper functions

func randAmount(min, max float64) decimal.Decimal {
	return decimal.NewFromFloat(min + rand.Float64()*(max-min)).Round(2)
}
