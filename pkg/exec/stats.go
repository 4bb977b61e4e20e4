package exec

import "sync/atomic"

// ResourceStats tracks what an execution consumed. Counters are updated
// atomically so a Stats snapshot can be taken from another goroutine while
// the cursor is being drained.
type ResourceStats struct {
	RowsScanned     int64 // rows pulled from sources
	RowsReturned    int64 // rows handed to the caller
	OperatorsOpened int64
	OperatorsClosed int64
}

type statsCounters struct {
	rowsScanned     atomic.Int64
	rowsReturned    atomic.Int64
	operatorsOpened atomic.Int64
	operatorsClosed atomic.Int64
}

func (s *statsCounters) snapshot() ResourceStats {
	return ResourceStats{
		RowsScanned:     s.rowsScanned.Load(),
		RowsReturned:    s.rowsReturned.Load(),
		OperatorsOpened: s.operatorsOpened.Load(),
		OperatorsClosed: s.operatorsClosed.Load(),
	}
}
