package binfmt

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/albertocavalcante/go-bundlestate/version"
)

// Reader decodes values from a byte slice. The first error is sticky:
// later reads return zero values and Err reports it.
type Reader struct {
	data []byte
	off  int
	base int64
	err  error
}

// NewReader returns a Reader over data. base is added to offsets in
// errors, for readers over a segment of a larger stream.
func NewReader(data []byte, base int64) *Reader {
	return &Reader{data: data, base: base}
}

// Err returns the first decoding error.
func (r *Reader) Err() error { return r.err }

// Offset returns the absolute offset of the next byte.
func (r *Reader) Offset() int64 { return r.base + int64(r.off) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Fail records err at the current offset unless an error is already set.
func (r *Reader) Fail(reason string, err error) {
	if r.err == nil {
		r.err = &FormatError{Offset: r.Offset(), Reason: reason, Err: err}
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.Remaining() {
		r.Fail(fmt.Sprintf("need %d bytes", n), ErrTruncated)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// Byte reads one byte.
func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bool reads a boolean.
func (r *Reader) Bool() bool { return r.Byte() != 0 }

// Int32 reads a fixed-width integer.
func (r *Reader) Int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

// Int64 reads a fixed-width integer.
func (r *Reader) Int64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// Len reads a collection length and checks it is plausible.
func (r *Reader) Len() int {
	n := r.Int32()
	if n < 0 || int(n) > r.Remaining() {
		r.Fail(fmt.Sprintf("invalid length %d", n), nil)
		return 0
	}
	return int(n)
}

// String reads a length-prefixed string.
func (r *Reader) String() string {
	if r.err != nil {
		return ""
	}
	n, size := binary.Uvarint(r.data[r.off:])
	if size <= 0 {
		r.Fail("invalid string length", ErrTruncated)
		return ""
	}
	r.off += size
	if n > uint64(r.Remaining()) {
		r.Fail(fmt.Sprintf("string length %d", n), ErrTruncated)
		return ""
	}
	return string(r.take(int(n)))
}

// Strings reads a string list. An empty list decodes as nil.
func (r *Reader) Strings() []string {
	n := r.Len()
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for range n {
		out = append(out, r.String())
	}
	return out
}

// StringMap reads a string map. An empty map decodes as nil.
func (r *Reader) StringMap() map[string]string {
	n := r.Len()
	if n == 0 {
		return nil
	}
	out := make(map[string]string, n)
	for range n {
		k := r.String()
		out[k] = r.String()
	}
	return out
}

// Version reads an inline version.
func (r *Reader) Version() version.Version {
	major, minor, micro := r.Int32(), r.Int32(), r.Int32()
	return version.New(int(major), int(minor), int(micro), r.String())
}

// Value reads a typed attribute value.
func (r *Reader) Value() any {
	switch t := r.Byte(); t {
	case TagNull:
		return nil
	case typeString:
		return r.String()
	case typeStrings:
		list := r.Strings()
		if list == nil {
			list = []string{}
		}
		return list
	case typeInt:
		return r.Int64()
	case typeInts:
		n := r.Len()
		out := make([]int64, 0, n)
		for range n {
			out = append(out, r.Int64())
		}
		return out
	case typeFloat:
		return math.Float64frombits(uint64(r.Int64()))
	case typeBool:
		return r.Bool()
	case typeVersion:
		return r.Version()
	case typeVersions:
		n := r.Len()
		out := make([]version.Version, 0, n)
		for range n {
			out = append(out, r.Version())
		}
		return out
	default:
		r.Fail(fmt.Sprintf("unknown value type %d", t), nil)
		return nil
	}
}

// Attributes reads an attribute map. An empty map decodes as nil.
func (r *Reader) Attributes() map[string]any {
	n := r.Len()
	if n == 0 {
		return nil
	}
	out := make(map[string]any, n)
	for range n {
		k := r.String()
		out[k] = r.Value()
	}
	return out
}

// Range reads an inline version range.
func (r *Reader) Range() version.Range {
	out := version.Range{Floor: r.Version(), FloorInclusive: r.Bool()}
	switch tag := r.Byte(); tag {
	case TagNull:
	case TagObject:
		c := r.Version()
		out.Ceiling = &c
		out.CeilingInclusive = r.Bool()
	default:
		r.Fail(fmt.Sprintf("unexpected range tag %d", tag), nil)
	}
	return out
}
