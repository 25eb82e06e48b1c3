package engine

import (
	"github.com/clstatham/veris/keycode"
	"github.com/clstatham/veris/types"
)

// Key space tags, numbered so tag order groups the schema key before any
// secondary-index entry, which sorts before any row.
const (
	tagTable = 0
	tagIndex = 1
	tagRow   = 2
)

const (
	valueNull   = 0
	valueBool   = 1
	valueInt    = 2
	valueFloat  = 3
	valueString = 4
	valueDate   = 5
)

// encodeValueKey renders v as an order-preserving key fragment. Used only
// for building point lookup keys (row IDs, index entries); never decoded
// back into a Value.
func encodeValueKey(v types.Value) []byte {
	e := keycode.NewEncoder()
	switch v.Kind {
	case types.Null:
		e.Tag(valueNull)
	case types.BooleanValue:
		e.Tag(valueBool).Bool(v.Bool)
	case types.IntegerValue:
		e.Tag(valueInt).Int64(v.Int)
	case types.FloatValue:
		e.Tag(valueFloat).Float64(v.Flt)
	case types.StringValue:
		e.Tag(valueString).String(v.Str)
	case types.DateValue:
		e.Tag(valueDate).String(v.Dt.Format("2006-01-02"))
	}
	return e.Bytes()
}

func tableKey(table string) []byte {
	return keycode.NewEncoder().Tag(tagTable).String(table).Bytes()
}

func tablePrefix() []byte {
	return []byte{tagTable}
}

func rowKey(table string, id types.Value) []byte {
	return append(keycode.NewEncoder().Tag(tagRow).String(table).Bytes(), encodeValueKey(id)...)
}

func rowPrefix(table string) []byte {
	return keycode.NewEncoder().Tag(tagRow).String(table).Bytes()
}

func indexKey(table, column string, value types.Value) []byte {
	prefix := keycode.NewEncoder().Tag(tagIndex).String(table).String(column).Bytes()
	return append(prefix, encodeValueKey(value)...)
}

func indexPrefix(table, column string) []byte {
	return keycode.NewEncoder().Tag(tagIndex).String(table).String(column).Bytes()
}
