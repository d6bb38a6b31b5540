package logbook

import (
	"sync"

	"github.com/budgetlog/logbook/operation"
)

// Pools for commonly allocated objects to reduce GC pressure

var (
	// groupMapPool provides pooled maps for substitution grouping
	groupMapPool = sync.Pool{
		New: func() any {
			return make(map[string][]operation.Operation, 8)
		},
	}
)

// getGroupMap retrieves a pooled grouping map
func getGroupMap() map[string][]operation.Operation {
	return groupMapPool.Get().(map[string][]operation.Operation)
}

// putGroupMap clears and returns a grouping map to the pool
func putGroupMap(m map[string][]operation.Operation) {
	clear(m)
	groupMapPool.Put(m)
}
