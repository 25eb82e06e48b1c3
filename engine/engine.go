// Package engine implements the catalog (table schemas, rows, secondary
// indices) on top of the MVCC key space: it is the layer that knows what a
// "table" and a "row" mean, translating them into mvcc.Transaction
// operations over keycode-encoded keys.
package engine

import (
	"github.com/clstatham/veris/mvcc"
)

// Engine opens transactions against the catalog.
type Engine struct {
	mv *mvcc.Mvcc
}

// New wraps an MVCC store as a catalog engine.
func New(mv *mvcc.Mvcc) *Engine {
	return &Engine{mv: mv}
}

// Begin starts a new catalog transaction.
func (e *Engine) Begin(readOnly bool) (*Transaction, error) {
	txn, err := e.mv.Begin(readOnly)
	if err != nil {
		return nil, err
	}
	return &Transaction{txn: txn}, nil
}
