// Package binfmt implements the primitive encoding of state cache files:
// fixed-width big-endian integers, length-prefixed strings, typed
// attribute values, and object tables that turn repeated references into
// small indexes.
//
// A reference is encoded as a one-byte tag. TagNull marks an absent
// reference, TagObject is followed by a fresh table index and the object's
// fields, and TagIndex is followed by the index of an object written
// earlier.
package binfmt

import (
	"errors"
	"fmt"
)

// Reference tags.
const (
	TagNull   byte = 0
	TagObject byte = 1
	TagIndex  byte = 2
)

// ErrUnknownIndex indicates a reference to an object that was never written.
var ErrUnknownIndex = errors.New("unknown object index")

// ErrTruncated indicates the input ended in the middle of a value.
var ErrTruncated = errors.New("truncated input")

// FormatError reports malformed encoded data.
type FormatError struct {
	Offset int64
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("offset %d: %s", e.Offset, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// IndexTable assigns table indexes to keys in first-seen order.
type IndexTable[K comparable] struct {
	idx  map[K]int32
	keys []K
}

// NewIndexTable returns an empty table.
func NewIndexTable[K comparable]() *IndexTable[K] {
	return &IndexTable[K]{idx: make(map[K]int32)}
}

// Ref returns the index of k, assigning the next free index when k is new.
// first reports whether the index was assigned by this call.
func (t *IndexTable[K]) Ref(k K) (idx int32, first bool) {
	if i, ok := t.idx[k]; ok {
		return i, false
	}
	i := int32(len(t.keys))
	t.idx[k] = i
	t.keys = append(t.keys, k)
	return i, true
}

// Lookup returns the index of k if one was assigned.
func (t *IndexTable[K]) Lookup(k K) (int32, bool) {
	i, ok := t.idx[k]
	return i, ok
}

// Keys returns the keys in index order.
func (t *IndexTable[K]) Keys() []K { return t.keys }

// Len returns the number of assigned indexes.
func (t *IndexTable[K]) Len() int { return len(t.keys) }

// ObjectTable maps indexes read from a stream back to decoded objects.
type ObjectTable[V any] struct {
	objs map[int32]V
}

// NewObjectTable returns an empty table.
func NewObjectTable[V any]() *ObjectTable[V] {
	return &ObjectTable[V]{objs: make(map[int32]V)}
}

// Put records v under idx. Indexes are assigned once.
func (t *ObjectTable[V]) Put(idx int32, v V) error {
	if _, ok := t.objs[idx]; ok {
		return fmt.Errorf("object index %d defined twice", idx)
	}
	t.objs[idx] = v
	return nil
}

// Get returns the object recorded under idx.
func (t *ObjectTable[V]) Get(idx int32) (V, error) {
	v, ok := t.objs[idx]
	if !ok {
		return v, fmt.Errorf("index %d: %w", idx, ErrUnknownIndex)
	}
	return v, nil
}

// Len returns the number of recorded objects.
func (t *ObjectTable[V]) Len() int { return len(t.objs) }
