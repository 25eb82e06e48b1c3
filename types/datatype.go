// Package types defines the value domain, data types, and row/table schema
// shared by the expression evaluator, planner, and catalog.
package types

import "fmt"

// DataTypeKind identifies the shape of a DataType.
type DataTypeKind int

const (
	Boolean DataTypeKind = iota
	Integer
	Float
	Decimal
	String
	Date
)

// DataType describes the declared type of a column or a cast target.
// Precision/Scale apply only to Decimal; Length applies only to String.
// A nil pointer means "unspecified" for that parameter.
type DataType struct {
	Kind      DataTypeKind
	Precision *uint64
	Scale     *uint64
	Length    *uint64
}

func NewBoolean() DataType { return DataType{Kind: Boolean} }
func NewInteger() DataType { return DataType{Kind: Integer} }
func NewFloat() DataType   { return DataType{Kind: Float} }
func NewDate() DataType    { return DataType{Kind: Date} }

func NewString(length *uint64) DataType {
	return DataType{Kind: String, Length: length}
}

func NewDecimal(precision, scale *uint64) DataType {
	return DataType{Kind: Decimal, Precision: precision, Scale: scale}
}

func (d DataType) String() string {
	switch d.Kind {
	case Boolean:
		return "BOOLEAN"
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case Decimal:
		switch {
		case d.Precision != nil && d.Scale != nil:
			return fmt.Sprintf("DECIMAL(%d,%d)", *d.Precision, *d.Scale)
		case d.Precision != nil:
			return fmt.Sprintf("DECIMAL(%d)", *d.Precision)
		case d.Scale != nil:
			return fmt.Sprintf("DECIMAL(0,%d)", *d.Scale)
		default:
			return "DECIMAL"
		}
	case String:
		if d.Length != nil {
			return fmt.Sprintf("VARCHAR(%d)", *d.Length)
		}
		return "VARCHAR"
	case Date:
		return "DATE"
	default:
		return "UNKNOWN"
	}
}
