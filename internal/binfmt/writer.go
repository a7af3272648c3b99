package binfmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/albertocavalcante/go-bundlestate/version"
)

// Value type codes of typed attribute values.
const (
	typeString byte = iota + 1
	typeStrings
	typeInt
	typeInts
	typeFloat
	typeBool
	typeVersion
	typeVersions
)

// Writer encodes values into an in-memory buffer. The first error is
// sticky: later writes are ignored and Err reports it.
type Writer struct {
	buf bytes.Buffer
	err error
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 { return int64(w.buf.Len()) }

// Err returns the first encoding error.
func (w *Writer) Err() error { return w.err }

// Fail records an encoding error unless one is already set.
func (w *Writer) Fail(reason string) {
	w.fail("%s", reason)
}

func (w *Writer) fail(format string, args ...any) {
	if w.err == nil {
		w.err = &FormatError{Offset: w.Offset(), Reason: fmt.Sprintf(format, args...)}
	}
}

// Byte writes one byte.
func (w *Writer) Byte(b byte) {
	if w.err == nil {
		w.buf.WriteByte(b)
	}
}

// Bool writes a boolean as one byte.
func (w *Writer) Bool(b bool) {
	if b {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

// Int32 writes a fixed-width integer.
func (w *Writer) Int32(n int32) {
	if w.err == nil {
		w.buf.Write(binary.BigEndian.AppendUint32(nil, uint32(n)))
	}
}

// Int64 writes a fixed-width integer.
func (w *Writer) Int64(n int64) {
	if w.err == nil {
		w.buf.Write(binary.BigEndian.AppendUint64(nil, uint64(n)))
	}
}

// Len writes a collection length.
func (w *Writer) Len(n int) {
	if n > math.MaxInt32 {
		w.fail("length %d too large", n)
		return
	}
	w.Int32(int32(n))
}

// String writes a length-prefixed UTF-8 string.
func (w *Writer) String(s string) {
	if w.err != nil {
		return
	}
	w.buf.Write(binary.AppendUvarint(nil, uint64(len(s))))
	w.buf.WriteString(s)
}

// Strings writes a string list.
func (w *Writer) Strings(list []string) {
	w.Len(len(list))
	for _, s := range list {
		w.String(s)
	}
}

// StringMap writes a string map with sorted keys.
func (w *Writer) StringMap(m map[string]string) {
	w.Len(len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		w.String(k)
		w.String(m[k])
	}
}

// Version writes a version inline.
func (w *Writer) Version(v version.Version) {
	w.Int32(int32(v.Major))
	w.Int32(int32(v.Minor))
	w.Int32(int32(v.Micro))
	w.String(v.Qualifier)
}

// Value writes a typed attribute value. A nil value is written as TagNull.
func (w *Writer) Value(v any) {
	switch x := v.(type) {
	case nil:
		w.Byte(TagNull)
	case string:
		w.Byte(typeString)
		w.String(x)
	case []string:
		w.Byte(typeStrings)
		w.Strings(x)
	case int64:
		w.Byte(typeInt)
		w.Int64(x)
	case []int64:
		w.Byte(typeInts)
		w.Len(len(x))
		for _, n := range x {
			w.Int64(n)
		}
	case float64:
		w.Byte(typeFloat)
		w.Int64(int64(math.Float64bits(x)))
	case bool:
		w.Byte(typeBool)
		w.Bool(x)
	case version.Version:
		w.Byte(typeVersion)
		w.Version(x)
	case []version.Version:
		w.Byte(typeVersions)
		w.Len(len(x))
		for _, vv := range x {
			w.Version(vv)
		}
	default:
		w.fail("unsupported value type %T", v)
	}
}

// Attributes writes an attribute map with sorted keys.
func (w *Writer) Attributes(m map[string]any) {
	w.Len(len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		w.String(k)
		w.Value(m[k])
	}
}

// Range writes a version range inline.
func (w *Writer) Range(r version.Range) {
	w.Version(r.Floor)
	w.Bool(r.FloorInclusive)
	if r.Ceiling == nil {
		w.Byte(TagNull)
		return
	}
	w.Byte(TagObject)
	w.Version(*r.Ceiling)
	w.Bool(r.CeilingInclusive)
}
