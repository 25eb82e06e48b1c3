package types

import (
	"hash/fnv"
	"math"
	"strconv"
	"time"

	"github.com/clstatham/veris/internal/verrors"
)

// ValueKind identifies which variant of Value is populated.
type ValueKind int

const (
	Null ValueKind = iota
	BooleanValue
	IntegerValue
	FloatValue
	StringValue
	DateValue
)

const dateLayout = "2006-01-02"

// Value is a single datum in the database. Exactly one of the typed fields
// is meaningful, selected by Kind.
type Value struct {
	Kind ValueKind
	Bool bool
	Int  int64
	Flt  float64
	Str  string
	Dt   time.Time
}

func NewNull() Value           { return Value{Kind: Null} }
func NewBool(v bool) Value     { return Value{Kind: BooleanValue, Bool: v} }
func NewInt(v int64) Value     { return Value{Kind: IntegerValue, Int: v} }
func NewFloatVal(v float64) Value { return Value{Kind: FloatValue, Flt: v} }
func NewString_(v string) Value { return Value{Kind: StringValue, Str: v} }
func NewDateVal(v time.Time) Value { return Value{Kind: DateValue, Dt: v} }

// IsTruthy reports whether the value is the boolean true.
func (v Value) IsTruthy() bool {
	return v.Kind == BooleanValue && v.Bool
}

// IsUndefined reports whether the value is NULL or NaN.
func (v Value) IsUndefined() bool {
	if v.Kind == Null {
		return true
	}
	return v.Kind == FloatValue && math.IsNaN(v.Flt)
}

func (v Value) String() string {
	switch v.Kind {
	case Null:
		return "NULL"
	case BooleanValue:
		return strconv.FormatBool(v.Bool)
	case IntegerValue:
		return strconv.FormatInt(v.Int, 10)
	case FloatValue:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64)
	case StringValue:
		return "'" + v.Str + "'"
	case DateValue:
		return "'" + v.Dt.Format(dateLayout) + "'"
	default:
		return "?"
	}
}

// IsCompatible reports whether v could be stored in a column of the given
// data type, without performing any coercion.
func (v Value) IsCompatible(dt DataType) bool {
	switch {
	case v.Kind == Null:
		return true
	case v.Kind == BooleanValue && dt.Kind == Boolean:
		return true
	case v.Kind == IntegerValue && dt.Kind == Integer:
		return true
	case v.Kind == FloatValue && dt.Kind == Float:
		return true
	case v.Kind == FloatValue && dt.Kind == Decimal:
		return decimalFits(v.Flt, dt)
	case v.Kind == StringValue && dt.Kind == String:
		return dt.Length == nil || uint64(len(v.Str)) <= *dt.Length
	case v.Kind == DateValue && dt.Kind == Date:
		return true
	case v.Kind == StringValue && dt.Kind == Integer:
		_, err := strconv.ParseInt(v.Str, 10, 64)
		return err == nil
	case v.Kind == StringValue && dt.Kind == Float:
		_, err := strconv.ParseFloat(v.Str, 64)
		return err == nil
	case v.Kind == StringValue && dt.Kind == Date:
		_, err := time.Parse(dateLayout, v.Str)
		return err == nil
	default:
		return false
	}
}

func decimalFits(f float64, dt DataType) bool {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if dt.Precision != nil && uint64(len(s)) > *dt.Precision {
		return false
	}
	if dt.Scale != nil {
		if dot := indexByte(s, '.'); dot >= 0 {
			if uint64(len(s)-dot-1) > *dt.Scale {
				return false
			}
		}
	}
	return true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// TryCast attempts to coerce v into the given data type.
func (v Value) TryCast(dt DataType) (Value, error) {
	switch {
	case v.Kind == Null:
		return NewNull(), nil
	case v.Kind == BooleanValue && dt.Kind == Boolean:
		return v, nil
	case v.Kind == IntegerValue && dt.Kind == Integer:
		return v, nil
	case v.Kind == FloatValue && dt.Kind == Float:
		return v, nil
	case v.Kind == StringValue && dt.Kind == String:
		if dt.Length == nil || uint64(len(v.Str)) <= *dt.Length {
			return v, nil
		}
		return Value{}, verrors.InvalidCastErr(v.String(), dt.String())
	case v.Kind == DateValue && dt.Kind == Date:
		return v, nil
	case v.Kind == FloatValue && dt.Kind == Decimal:
		if !decimalFits(v.Flt, dt) {
			return Value{}, verrors.InvalidCastErr(v.String(), dt.String())
		}
		return v, nil
	case v.Kind == StringValue && dt.Kind == Integer:
		i, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return Value{}, verrors.InvalidCastErr(v.String(), dt.String())
		}
		return NewInt(i), nil
	case v.Kind == StringValue && dt.Kind == Float:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return Value{}, verrors.InvalidCastErr(v.String(), dt.String())
		}
		return NewFloatVal(f), nil
	case v.Kind == StringValue && dt.Kind == Date:
		d, err := time.Parse(dateLayout, v.Str)
		if err != nil {
			return Value{}, verrors.New(verrors.InvalidDate, "%s", v.Str)
		}
		return NewDateVal(d), nil
	default:
		return Value{}, verrors.InvalidCastErr(v.String(), dt.String())
	}
}

// Equal implements value equality, treating NaN == NaN (unlike IEEE-754) so
// values can be used as map/group keys.
func (v Value) Equal(other Value) bool {
	switch {
	case v.Kind == Null && other.Kind == Null:
		return true
	case v.Kind == BooleanValue && other.Kind == BooleanValue:
		return v.Bool == other.Bool
	case v.Kind == IntegerValue && other.Kind == IntegerValue:
		return v.Int == other.Int
	case v.Kind == IntegerValue && other.Kind == FloatValue:
		return float64(v.Int) == other.Flt
	case v.Kind == FloatValue && other.Kind == IntegerValue:
		return v.Flt == float64(other.Int)
	case v.Kind == FloatValue && other.Kind == FloatValue:
		return v.Flt == other.Flt || (math.IsNaN(v.Flt) && math.IsNaN(other.Flt))
	case v.Kind == StringValue && other.Kind == StringValue:
		return v.Str == other.Str
	case v.Kind == DateValue && other.Kind == DateValue:
		return v.Dt.Equal(other.Dt)
	default:
		return false
	}
}

// kindRank totally orders distinct kinds when comparing mismatched values.
func kindRank(k ValueKind) int {
	switch k {
	case Null:
		return 0
	case BooleanValue:
		return 1
	case IntegerValue:
		return 2
	case FloatValue:
		return 3
	case StringValue:
		return 4
	case DateValue:
		return 5
	default:
		return 6
	}
}

// Compare orders values the same way ORDER BY / index scans would: by kind
// first for mismatched kinds (Null < Boolean < Integer < Float < String <
// Date), then by value.
func (v Value) Compare(other Value) int {
	switch {
	case v.Kind == Null && other.Kind == Null:
		return 0
	case v.Kind == BooleanValue && other.Kind == BooleanValue:
		return boolCompare(v.Bool, other.Bool)
	case v.Kind == IntegerValue && other.Kind == IntegerValue:
		return int64Compare(v.Int, other.Int)
	case v.Kind == IntegerValue && other.Kind == FloatValue:
		return floatCompare(float64(v.Int), other.Flt)
	case v.Kind == FloatValue && other.Kind == IntegerValue:
		return floatCompare(v.Flt, float64(other.Int))
	case v.Kind == FloatValue && other.Kind == FloatValue:
		return floatCompare(v.Flt, other.Flt)
	case v.Kind == StringValue && other.Kind == StringValue:
		switch {
		case v.Str < other.Str:
			return -1
		case v.Str > other.Str:
			return 1
		default:
			return 0
		}
	case v.Kind == DateValue && other.Kind == DateValue:
		switch {
		case v.Dt.Before(other.Dt):
			return -1
		case v.Dt.After(other.Dt):
			return 1
		default:
			return 0
		}
	default:
		return kindRank(v.Kind) - kindRank(other.Kind)
	}
}

func boolCompare(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// floatCompare is a total order over floats, including NaN, so values sort
// consistently for GROUP BY/ORDER BY regardless of IEEE-754 unordered NaN.
func floatCompare(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Hash produces a stable hash for use as a GROUP BY / hash-join key.
// Negative zero and NaN are normalized first so that -0.0 hashes the same
// as 0.0, and every NaN hashes the same regardless of its bit pattern.
func (v Value) Hash() uint64 {
	h := fnv.New64a()
	var kb [1]byte
	kb[0] = byte(v.Kind)
	_, _ = h.Write(kb[:])
	switch v.Kind {
	case Null:
	case BooleanValue:
		if v.Bool {
			_, _ = h.Write([]byte{1})
		} else {
			_, _ = h.Write([]byte{0})
		}
	case IntegerValue:
		_, _ = h.Write([]byte(strconv.FormatInt(v.Int, 10)))
	case FloatValue:
		f := v.Flt
		if math.IsNaN(f) {
			f = math.NaN()
		} else if f == 0 {
			f = 0 // normalizes -0.0 to +0.0
		}
		_, _ = h.Write([]byte(strconv.FormatUint(math.Float64bits(f), 16)))
	case StringValue:
		_, _ = h.Write([]byte(v.Str))
	case DateValue:
		_, _ = h.Write([]byte(v.Dt.Format(dateLayout)))
	}
	return h.Sum64()
}

// CheckedAdd adds two values, promoting Integer+Float to Float.
func (v Value) CheckedAdd(other Value) (Value, error) {
	return arith(v, other, "+",
		func(a, b int64) (int64, bool) { return addOverflow(a, b) },
		func(a, b float64) float64 { return a + b },
	)
}

// CheckedSub subtracts two values, promoting Integer-Float to Float.
func (v Value) CheckedSub(other Value) (Value, error) {
	return arith(v, other, "-",
		func(a, b int64) (int64, bool) { return subOverflow(a, b) },
		func(a, b float64) float64 { return a - b },
	)
}

// CheckedMul multiplies two values, promoting Integer*Float to Float.
func (v Value) CheckedMul(other Value) (Value, error) {
	return arith(v, other, "*",
		func(a, b int64) (int64, bool) { return mulOverflow(a, b) },
		func(a, b float64) float64 { return a * b },
	)
}

// CheckedDiv divides two values, promoting Integer/Float to Float.
func (v Value) CheckedDiv(other Value) (Value, error) {
	if v.Kind == IntegerValue && other.Kind == IntegerValue {
		if other.Int == 0 {
			return Value{}, verrors.New(verrors.IntegerOverflow, "")
		}
		return NewInt(v.Int / other.Int), nil
	}
	return arith(v, other, "/",
		func(a, b int64) (int64, bool) { return 0, false },
		func(a, b float64) float64 { return a / b },
	)
}

// CheckedMod computes the remainder of Integer % Integer using Go's
// truncating semantics; divide-by-zero reuses IntegerOverflow rather than a
// new code.
func (v Value) CheckedMod(other Value) (Value, error) {
	if v.Kind == IntegerValue && other.Kind == IntegerValue {
		if other.Int == 0 {
			return Value{}, verrors.New(verrors.IntegerOverflow, "")
		}
		return NewInt(v.Int % other.Int), nil
	}
	return Value{}, verrors.New(verrors.NotYetSupported, "%s %% %s", v, other)
}

func arith(v, other Value, op string, intOp func(a, b int64) (int64, bool), floatOp func(a, b float64) float64) (Value, error) {
	switch {
	case v.Kind == IntegerValue && other.Kind == IntegerValue:
		r, ok := intOp(v.Int, other.Int)
		if !ok {
			return Value{}, verrors.New(verrors.IntegerOverflow, "")
		}
		return NewInt(r), nil
	case v.Kind == IntegerValue && other.Kind == FloatValue:
		return NewFloatVal(floatOp(float64(v.Int), other.Flt)), nil
	case v.Kind == FloatValue && other.Kind == IntegerValue:
		return NewFloatVal(floatOp(v.Flt, float64(other.Int))), nil
	case v.Kind == FloatValue && other.Kind == FloatValue:
		return NewFloatVal(floatOp(v.Flt, other.Flt)), nil
	default:
		return Value{}, verrors.New(verrors.NotYetSupported, "%s %s %s", v, op, other)
	}
}

func addOverflow(a, b int64) (int64, bool) {
	r := a + b
	if (b > 0 && r < a) || (b < 0 && r > a) {
		return 0, false
	}
	return r, true
}

func subOverflow(a, b int64) (int64, bool) {
	r := a - b
	if (b < 0 && r < a) || (b > 0 && r > a) {
		return 0, false
	}
	return r, true
}

func mulOverflow(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if r/b != a {
		return 0, false
	}
	return r, true
}
