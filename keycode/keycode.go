// Package keycode implements the order-preserving binary key encoding
// shared by the storage, MVCC, and catalog layers. Encoded byte strings sort
// lexicographically in the same order as the logical values they encode, and
// concatenate without ambiguity so composite keys sort field-by-field.
package keycode

import (
	"encoding/binary"
	"math"

	"github.com/clstatham/veris/internal/verrors"
)

// Encoder appends order-preserving field encodings to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Bool encodes a boolean as a single 0x00/0x01 byte.
func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return e
}

// Int64 encodes a signed integer as 8 big-endian bytes with the sign bit
// flipped, so negative values sort before positive ones.
func (e *Encoder) Int64(v int64) *Encoder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	tmp[0] ^= 1 << 7
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// Uint64 encodes an unsigned integer (used for MVCC version tags).
func (e *Encoder) Uint64(v uint64) *Encoder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// Uint32 encodes a 32-bit unsigned integer.
func (e *Encoder) Uint32(v uint32) *Encoder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// Float64 encodes a float as 8 big-endian bytes: if negative, every bit is
// inverted; otherwise only the sign bit is flipped. This makes the
// bit-pattern order match IEEE-754 total order for both signs.
func (e *Encoder) Float64(v float64) *Encoder {
	bits := math.Float64bits(v)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], bits)
	if math.Signbit(v) {
		for i := range tmp {
			tmp[i] = ^tmp[i]
		}
	} else {
		tmp[0] ^= 1 << 7
	}
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// BytesField encodes an arbitrary byte string, escaping every 0x00 as 0x00 0xff
// and terminating with 0x00 0x00 so it can be followed by another field.
func (e *Encoder) BytesField(v []byte) *Encoder {
	for _, b := range v {
		if b == 0x00 {
			e.buf = append(e.buf, 0x00, 0xff)
		} else {
			e.buf = append(e.buf, b)
		}
	}
	e.buf = append(e.buf, 0x00, 0x00)
	return e
}

// String encodes a string using the same escaping as BytesField.
func (e *Encoder) String(v string) *Encoder {
	return e.BytesField([]byte(v))
}

// Tag encodes an enum variant index as a single byte. Variants must be
// numbered so that tag order matches the intended sort order for mixed
// variant scans.
func (e *Encoder) Tag(variant uint8) *Encoder {
	e.buf = append(e.buf, variant)
	return e
}

// Decoder reads order-preserving field encodings from a byte slice cursor.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential field decoding.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the unconsumed tail of the buffer.
func (d *Decoder) Remaining() []byte {
	return d.buf[d.pos:]
}

func (d *Decoder) take(n int) ([]byte, error) {
	if d.pos+n > len(d.buf) {
		return nil, verrors.New(verrors.Serialization, "truncated key encoding")
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// Bool decodes a boolean.
func (d *Decoder) Bool() (bool, error) {
	b, err := d.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, verrors.New(verrors.Serialization, "invalid bool byte %x", b[0])
	}
}

// Int64 decodes a signed integer.
func (d *Decoder) Int64() (int64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	var tmp [8]byte
	copy(tmp[:], b)
	tmp[0] ^= 1 << 7
	return int64(binary.BigEndian.Uint64(tmp[:])), nil
}

// Uint64 decodes an unsigned 64-bit integer.
func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Uint32 decodes an unsigned 32-bit integer.
func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Float64 decodes a float encoded by Encoder.Float64.
func (d *Decoder) Float64() (float64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	var tmp [8]byte
	copy(tmp[:], b)
	if tmp[0]&(1<<7) == 0 {
		// sign bit clear in the encoded form means the original was negative
		// (all bits were inverted), so invert back.
		for i := range tmp {
			tmp[i] = ^tmp[i]
		}
	} else {
		tmp[0] ^= 1 << 7
	}
	bits := binary.BigEndian.Uint64(tmp[:])
	return math.Float64frombits(bits), nil
}

// BytesField decodes an escaped byte string terminated by 0x00 0x00.
func (d *Decoder) BytesField() ([]byte, error) {
	var out []byte
	for {
		if d.pos >= len(d.buf) {
			return nil, verrors.New(verrors.Serialization, "truncated byte string")
		}
		b := d.buf[d.pos]
		if b == 0x00 {
			if d.pos+1 >= len(d.buf) {
				return nil, verrors.New(verrors.Serialization, "truncated escape sequence")
			}
			next := d.buf[d.pos+1]
			switch next {
			case 0x00:
				d.pos += 2
				return out, nil
			case 0xff:
				out = append(out, 0x00)
				d.pos += 2
			default:
				return nil, verrors.New(verrors.Serialization, "invalid escape sequence %x %x", b, next)
			}
		} else {
			out = append(out, b)
			d.pos++
		}
	}
}

// String decodes a string encoded by Encoder.String.
func (d *Decoder) String() (string, error) {
	b, err := d.BytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Tag decodes an enum variant index.
func (d *Decoder) Tag() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// PrefixRange computes the half-open byte range [prefix, succ(prefix)) that
// contains exactly the keys whose encoding starts with prefix. A nil end
// means the range is unbounded above (prefix is all 0xff bytes).
func PrefixRange(prefix []byte) (start []byte, end []byte) {
	start = append([]byte(nil), prefix...)
	i := len(prefix) - 1
	for i >= 0 && prefix[i] == 0xff {
		i--
	}
	if i < 0 {
		return start, nil
	}
	end = make([]byte, i+1)
	copy(end, prefix[:i+1])
	end[i]++
	return start, end
}
