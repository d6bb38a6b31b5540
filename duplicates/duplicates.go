// Package duplicates finds operations recorded more than once.
//
// Two operations are near-identical when they have the same amount and
// currency, the same description, and timestamps at most an offset apart.
// Groups are the connected components of that relation, so a chain of
// near-identical operations forms one group even when its ends are further
// apart than the offset.
package duplicates

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/budgetlog/logbook/operation"
)

// Group is a set of at least two operations believed to be the same event.
type Group struct {
	Amount      operation.Amount
	Description string
	// Operations are ordered by timestamp, then id, then input order.
	Operations []operation.Operation
}

// Earliest returns the first operation of the group.
func (g Group) Earliest() operation.Operation {
	return g.Operations[0]
}

// Span returns the time between the first and last operation.
func (g Group) Span() time.Duration {
	return g.Operations[len(g.Operations)-1].Timestamp.Sub(g.Operations[0].Timestamp)
}

type item struct {
	op    operation.Operation
	index int
}

func compareItems(a, b item) int {
	if c := operation.Compare(a.op, b.op); c != 0 {
		return c
	}
	return cmp.Compare(a.index, b.index)
}

type bucketKey struct {
	amount      string
	description string
}

// Detect groups ops by the near-identical relation. Singletons are omitted
// and an operation belongs to at most one group. The result does not
// depend on the order of ops; groups are ordered by their earliest member.
func Detect(ops []operation.Operation, offset time.Duration) []Group {
	if offset < 0 {
		return nil
	}

	buckets := make(map[bucketKey][]item)
	for i, op := range ops {
		k := bucketKey{amount: op.Amount.Key(), description: op.Description}
		buckets[k] = append(buckets[k], item{op: op, index: i})
	}

	var groups [][]item
	for _, bucket := range buckets {
		if len(bucket) < 2 {
			continue
		}
		slices.SortFunc(bucket, compareItems)

		// In time order, components are the maximal runs whose consecutive
		// gaps stay within the offset.
		start := 0
		for i := 1; i <= len(bucket); i++ {
			if i < len(bucket) && bucket[i].op.Timestamp.Sub(bucket[i-1].op.Timestamp) <= offset {
				continue
			}
			if i-start >= 2 {
				groups = append(groups, bucket[start:i])
			}
			start = i
		}
	}

	slices.SortFunc(groups, func(a, b []item) int {
		return compareItems(a[0], b[0])
	})

	out := make([]Group, len(groups))
	for i, members := range groups {
		g := Group{
			Amount:      members[0].op.Amount,
			Description: members[0].op.Description,
			Operations:  make([]operation.Operation, len(members)),
		}
		for j, m := range members {
			g.Operations[j] = m.op
		}
		out[i] = g
	}
	return out
}

// DetectStream drains seq and groups its operations. Cancellation is
// checked before each operation is taken.
func DetectStream(ctx context.Context, seq operation.Seq, offset time.Duration) ([]Group, error) {
	ops, err := operation.Collect(ctx, seq)
	if err != nil {
		return nil, err
	}
	return Detect(ops, offset), nil
}
