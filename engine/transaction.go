package engine

import (
	"github.com/clstatham/veris/exec/expr"
	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/mvcc"
	"github.com/clstatham/veris/types"
)

// Transaction maps catalog-level operations (tables, rows, secondary
// indices) onto an underlying mvcc.Transaction's key/value operations.
// Grounded on engine/local.rs's LocalTransaction.
type Transaction struct {
	txn *mvcc.Transaction
}

// Commit finalizes the underlying MVCC transaction.
func (t *Transaction) Commit() error { return t.txn.Commit() }

// Rollback discards the underlying MVCC transaction's writes.
func (t *Transaction) Rollback() error { return t.txn.Rollback() }

// CreateTable writes a new table schema, failing if one already exists under
// the same name.
func (t *Transaction) CreateTable(table *types.Table) error {
	key := tableKey(table.Name)
	if _, ok, err := t.txn.Get(key); err != nil {
		return err
	} else if ok {
		return verrors.New(verrors.TableAlreadyExists, "%s", table.Name)
	}
	value, err := encodeTable(table)
	if err != nil {
		return err
	}
	return t.txn.Set(key, value)
}

// DropTable removes a table's schema, every row, and every secondary-index
// bucket belonging to it.
func (t *Transaction) DropTable(name string) error {
	table, err := t.GetTable(name)
	if err != nil {
		return err
	}
	if table == nil {
		return verrors.New(verrors.TableDoesNotExist, "%s", name)
	}

	if err := t.txn.Delete(tableKey(name)); err != nil {
		return err
	}

	if err := t.deleteAllPrefixed(rowPrefix(name)); err != nil {
		return err
	}

	for _, col := range table.Columns {
		if !col.HasSecondaryIndex {
			continue
		}
		if err := t.deleteAllPrefixed(indexPrefix(name, col.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transaction) deleteAllPrefixed(prefix []byte) error {
	it := t.txn.ScanPrefix(prefix)
	var keys [][]byte
	for {
		kv, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keys = append(keys, append([]byte(nil), kv.Key...))
	}
	for _, key := range keys {
		if err := t.txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// GetTable returns a table's schema, or nil if no such table exists.
func (t *Transaction) GetTable(name string) (*types.Table, error) {
	raw, ok, err := t.txn.Get(tableKey(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return decodeTable(raw)
}

// ListTables returns every table's schema, in name order.
func (t *Transaction) ListTables() ([]*types.Table, error) {
	it := t.txn.ScanPrefix(tablePrefix())
	var tables []*types.Table
	for {
		kv, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		table, err := decodeTable(kv.Value)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (t *Transaction) getIndex(table, column string, value types.Value) (*idSet, error) {
	raw, ok, err := t.txn.Get(indexKey(table, column, value))
	if err != nil {
		return nil, err
	}
	if !ok {
		return newIDSet(), nil
	}
	return decodeIDSet(raw)
}

func (t *Transaction) setIndex(table, column string, value types.Value, set *idSet) error {
	key := indexKey(table, column, value)
	if set.Empty() {
		return t.txn.Delete(key)
	}
	raw, err := encodeIDSet(set)
	if err != nil {
		return err
	}
	return t.txn.Set(key, raw)
}

func (t *Transaction) getRow(name string, id types.Value) (types.Row, bool, error) {
	raw, ok, err := t.txn.Get(rowKey(name, id))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	row, err := decodeRow(raw)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func hasAnySecondaryIndex(table *types.Table) bool {
	for _, col := range table.Columns {
		if col.HasSecondaryIndex {
			return true
		}
	}
	return false
}

// Insert validates and writes each row, maintaining every secondary index
// affected by the columns it holds values for.
func (t *Transaction) Insert(name string, rows []types.Row) error {
	table, err := t.GetTable(name)
	if err != nil {
		return err
	}
	if table == nil {
		return verrors.New(verrors.TableDoesNotExist, "%s", name)
	}

	for _, row := range rows {
		if !table.ValidateRow(row) {
			return verrors.New(verrors.InvalidRow, "%s", name)
		}
		id := table.PrimaryKey(row)

		value, err := encodeRow(row)
		if err != nil {
			return err
		}
		if err := t.txn.Set(rowKey(name, id), value); err != nil {
			return err
		}

		for i, col := range table.Columns {
			if !col.HasSecondaryIndex {
				continue
			}
			set, err := t.getIndex(name, col.Name, row[i])
			if err != nil {
				return err
			}
			set.Add(id)
			if err := t.setIndex(name, col.Name, row[i], set); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get point-gets every id, skipping any that don't exist.
func (t *Transaction) Get(name string, ids []types.Value) ([]types.Row, error) {
	var rows []types.Row
	for _, id := range ids {
		row, ok, err := t.getRow(name, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LookupIndex returns the union of the index buckets for every value.
func (t *Transaction) LookupIndex(name, column string, values []types.Value) (*idSet, error) {
	result := newIDSet()
	for _, v := range values {
		set, err := t.getIndex(name, column, v)
		if err != nil {
			return nil, err
		}
		for _, id := range set.Values() {
			result.Add(id)
		}
	}
	return result, nil
}

// Delete removes the given primary keys from name, after checking that no
// other table's row references any of them. The check runs before any
// deletion so the statement is all-or-nothing.
func (t *Transaction) Delete(name string, ids []types.Value) error {
	table, err := t.GetTable(name)
	if err != nil {
		return err
	}
	if table == nil {
		return verrors.New(verrors.TableDoesNotExist, "%s", name)
	}

	tables, err := t.ListTables()
	if err != nil {
		return err
	}

	for _, source := range tables {
		for i, col := range source.Columns {
			if col.References == nil || col.References.Table != name {
				continue
			}
			selfReference := source.Name == name

			var sourceIDs *idSet
			if i == source.PrimaryKeyIndex {
				rows, err := t.Get(source.Name, ids)
				if err != nil {
					return err
				}
				sourceIDs = newIDSet()
				for _, row := range rows {
					sourceIDs.Add(row[i])
				}
			} else {
				sourceIDs, err = t.LookupIndex(source.Name, col.Name, ids)
				if err != nil {
					return err
				}
			}

			if selfReference {
				for _, id := range ids {
					sourceIDs.Remove(id)
				}
			}

			if !sourceIDs.Empty() {
				sourceID := sourceIDs.Values()[0]
				pkColumn := source.Columns[source.PrimaryKeyIndex].Name
				return verrors.ReferentialIntegrityErr(source.Name, pkColumn, sourceID.String())
			}
		}
	}

	hasIndex := hasAnySecondaryIndex(table)
	for _, id := range ids {
		if hasIndex {
			row, ok, err := t.getRow(name, id)
			if err != nil {
				return err
			}
			if ok {
				for i, col := range table.Columns {
					if !col.HasSecondaryIndex {
						continue
					}
					set, err := t.getIndex(name, col.Name, row[i])
					if err != nil {
						return err
					}
					set.Remove(id)
					if err := t.setIndex(name, col.Name, row[i], set); err != nil {
						return err
					}
				}
			}
		}
		if err := t.txn.Delete(rowKey(name, id)); err != nil {
			return err
		}
	}
	return nil
}

// rowScanIter adapts an mvcc.ScanIterator over Row(table,*) keys into a
// types.RowIter, optionally filtering by a scalar predicate.
type rowScanIter struct {
	it     *mvcc.ScanIterator
	filter expr.Expr
}

func (r *rowScanIter) Next() (types.Row, bool, error) {
	for {
		kv, ok, err := r.it.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		row, err := decodeRow(kv.Value)
		if err != nil {
			return nil, false, err
		}
		if r.filter == nil {
			return row, true, nil
		}
		v, err := r.filter.Eval(row)
		if err != nil {
			return nil, false, err
		}
		if v.Kind != types.BooleanValue {
			return nil, false, verrors.New(verrors.InvalidFilterResult, "%s", v)
		}
		if !v.Bool {
			continue
		}
		return row, true, nil
	}
}

// Scan streams every row of table name, in primary-key order, applying
// filter (if any) lazily as each row is decoded.
func (t *Transaction) Scan(name string, filter expr.Expr) (types.RowIter, error) {
	table, err := t.GetTable(name)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, verrors.New(verrors.TableDoesNotExist, "%s", name)
	}
	it := t.txn.ScanPrefix(rowPrefix(name))
	return &rowScanIter{it: it, filter: filter}, nil
}
